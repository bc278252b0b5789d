package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"

	"github.com/softwareheritage/provenance/internal/query"
)

const (
	defaultMaxRecvMsgSize = 32 << 20
	defaultMaxSendMsgSize = 32 << 20
	defaultKeepaliveTime  = 30 * time.Second
	defaultKeepaliveGrace = 5 * time.Second
)

// gRPC disconnects clients that ping too aggressively by default; a
// long-lived batch client (WhereAreOne over tens of thousands of SWHIDs)
// legitimately wants to ping often, so the server is configured to be as
// permissive as the reference stack this facade is grounded on.
var serverEnforcement = keepalive.EnforcementPolicy{
	MinTime:             time.Second,
	PermitWithoutStream: true,
}

// Options configures NewServer. Zero value is invalid; start from
// DefaultOptions.
type Options struct {
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultOptions mirrors the message-size and keepalive posture spec.md §6.1
// expects of the facade: generous enough for a 10k-SWHID WhereAreOne batch,
// tolerant of chatty long-lived streams.
func DefaultOptions() Options {
	return Options{
		MaxRecvMsgSize:   defaultMaxRecvMsgSize,
		MaxSendMsgSize:   defaultMaxSendMsgSize,
		KeepaliveTime:    defaultKeepaliveTime,
		KeepaliveTimeout: defaultKeepaliveGrace,
	}
}

// NewServer builds a *grpc.Server with the ProvenanceService registered
// against engine, wired to the hand-written JSON codec (see codec.go)
// instead of protobuf.
func NewServer(engine *query.Engine, opts Options) *grpc.Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.MaxRecvMsgSize(opts.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(opts.MaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    opts.KeepaliveTime,
			Timeout: opts.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(serverEnforcement),
	)
	RegisterProvenanceServiceServer(s, &Service{Engine: engine})
	return s
}

// Serve listens on addr and blocks serving the ProvenanceService until ctx
// is cancelled, at which point it gracefully stops the server. This is the
// entry point the `grpc-serve` CLI subcommand drives.
func Serve(ctx context.Context, addr string, engine *query.Engine, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcserver: listen on %s: %w", addr, err)
	}

	s := NewServer(engine, DefaultOptions())

	errCh := make(chan error, 1)
	go func() {
		log.Info("grpc server listening", "addr", addr, "codec", jsonCodec{}.Name())
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func init() {
	// The hand-written codec is installed per-server via
	// grpc.ForceServerCodec, but registering it globally too lets any
	// client built against this package (e.g. tests) dial without having
	// to know the codec name out of band.
	encoding.RegisterCodec(jsonCodec{})
}
