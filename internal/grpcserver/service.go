package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/query"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// Service adapts a *query.Engine to ProvenanceServiceServer.
type Service struct {
	Engine *query.Engine
}

var _ ProvenanceServiceServer = (*Service)(nil)

func (s *Service) WhereIsOne(ctx context.Context, req *WhereIsOneRequest) (*WhereIsOneResult, error) {
	id, err := swhid.Parse(req.SWHID)
	if err != nil {
		return nil, grpcStatus(provenanceerr.Input("grpcserver.WhereIsOne", err))
	}
	mask, err := query.ParseFieldMask(req.Mask)
	if err != nil {
		return nil, grpcStatus(provenanceerr.Input("grpcserver.WhereIsOne", err))
	}

	res, err := s.Engine.WhereIsOne(ctx, id, mask)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return resultToWire(res), nil
}

func (s *Service) WhereAreOne(req *WhereAreOneRequest, stream ProvenanceService_WhereAreOneServer) error {
	mask, err := query.ParseFieldMask(req.Mask)
	if err != nil {
		return grpcStatus(provenanceerr.Input("grpcserver.WhereAreOne", err))
	}

	ids := make([]swhid.SWHID, 0, len(req.SWHIDs))
	for _, raw := range req.SWHIDs {
		id, err := swhid.Parse(raw)
		if err != nil {
			// A malformed SWHID in a batch does not fail the whole
			// stream: it is reported back as an empty, unresolved
			// result for that element.
			if sendErr := stream.Send(&WhereIsOneResult{SWHID: raw}); sendErr != nil {
				return sendErr
			}
			continue
		}
		ids = append(ids, id)
	}

	for res := range s.Engine.WhereAreOne(stream.Context(), ids, mask) {
		if err := stream.Send(resultToWire(res)); err != nil {
			return err
		}
	}
	return nil
}

func resultToWire(res query.Result) *WhereIsOneResult {
	out := &WhereIsOneResult{SWHID: res.SWHID.String()}
	if res.HasAnchor {
		anchor := res.Anchor.String()
		out.Anchor = &anchor
	}
	if res.HasOrigin {
		origin := res.Origin
		out.Origin = &origin
	}
	return out
}

// grpcStatus maps the provenance error taxonomy onto gRPC status codes.
func grpcStatus(err error) error {
	if err == nil {
		return nil
	}
	switch provenanceerr.KindOf(err) {
	case provenanceerr.KindInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case provenanceerr.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case provenanceerr.KindDeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case provenanceerr.KindCancelled:
		return status.Error(codes.Canceled, err.Error())
	case provenanceerr.KindTransient:
		return status.Error(codes.Unavailable, err.Error())
	case provenanceerr.KindCorruption, provenanceerr.KindInternal:
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
