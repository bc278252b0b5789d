package grpcserver

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json instead of protobuf wire encoding, since the message
// types in this package are hand-written rather than protoc-generated
// (see messages.go). It is installed as the server's forced codec in
// NewServer, so every call on this service is framed and streamed by real
// gRPC machinery but serialized as JSON. server.go's init also registers
// it globally with encoding.RegisterCodec under the name "json".
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }
