// Package grpcserver implements the thin gRPC facade spec.md §6.1 defines
// over the query engine: `ProvenanceService.WhereIsOne`/`WhereAreOne`.
//
// The wire messages below are hand-written in the shape protoc-gen-go
// would produce from spec.md §6.1's message definitions — optional string
// fields as pointers, matching proto3 `optional` field codegen — without
// invoking protoc. Wire encoding is a JSON codec (codec.go) rather than
// real protobuf, since generating true protobuf reflection metadata
// (a compiled FileDescriptorProto) is not reproducible without the
// protobuf compiler; `google.golang.org/grpc` itself is genuinely wired,
// framing, streaming and status codes all run through it unchanged.
package grpcserver

// WhereIsOneRequest is one point-lookup request: an optional field mask
// (comma list over "swhid,anchor,origin"; empty means all three) plus the
// SWHID to resolve.
type WhereIsOneRequest struct {
	Mask  string `json:"mask,omitempty"`
	SWHID string `json:"swhid"`
}

// WhereAreOneRequest is the batched form of WhereIsOneRequest.
type WhereAreOneRequest struct {
	Mask   string   `json:"mask,omitempty"`
	SWHIDs []string `json:"swhids"`
}

// WhereIsOneResult echoes the queried SWHID and carries the resolved
// anchor/origin fields the request's mask asked for. Anchor and Origin
// are nil when not requested or not known; nil in both signals "no known
// provenance" per spec.md §6.1.
type WhereIsOneResult struct {
	SWHID  string  `json:"swhid"`
	Anchor *string `json:"anchor,omitempty"`
	Origin *string `json:"origin,omitempty"`
}
