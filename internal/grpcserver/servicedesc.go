package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ProvenanceServiceServer is the interface a WhereIsOne/WhereAreOne
// implementation must satisfy, in the shape protoc-gen-go-grpc would
// generate from spec.md §6.1's service definition.
type ProvenanceServiceServer interface {
	WhereIsOne(context.Context, *WhereIsOneRequest) (*WhereIsOneResult, error)
	WhereAreOne(*WhereAreOneRequest, ProvenanceService_WhereAreOneServer) error
}

// ProvenanceService_WhereAreOneServer is the server-side handle for the
// streaming WhereAreOne RPC.
type ProvenanceService_WhereAreOneServer interface {
	Send(*WhereIsOneResult) error
	grpc.ServerStream
}

type provenanceServiceWhereAreOneServer struct {
	grpc.ServerStream
}

func (s *provenanceServiceWhereAreOneServer) Send(m *WhereIsOneResult) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterProvenanceServiceServer registers srv against a *grpc.Server,
// mirroring the generated `Register<Service>Server` helper.
func RegisterProvenanceServiceServer(s *grpc.Server, srv ProvenanceServiceServer) {
	s.RegisterService(&provenanceServiceDesc, srv)
}

func whereIsOneHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WhereIsOneRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProvenanceServiceServer).WhereIsOne(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/provenance.ProvenanceService/WhereIsOne"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProvenanceServiceServer).WhereIsOne(ctx, req.(*WhereIsOneRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func whereAreOneHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WhereAreOneRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ProvenanceServiceServer).WhereAreOne(m, &provenanceServiceWhereAreOneServer{stream})
}

var provenanceServiceDesc = grpc.ServiceDesc{
	ServiceName: "provenance.ProvenanceService",
	HandlerType: (*ProvenanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhereIsOne", Handler: whereIsOneHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WhereAreOne", Handler: whereAreOneHandler, ServerStreams: true},
	},
	Metadata: "provenance.proto",
}
