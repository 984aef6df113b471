// Package rpcwire defines the content-store RPC wire types (spec section
// 6) and a grpc codec for them. Origins are serialized as length-prefixed
// message-pack per spec; the envelope itself is carried as a grpc codec so
// the same message shapes serve both the Unix-socket JSON-RPC daemon
// (internal/daemon) and the gRPC-remote content provider
// (internal/content's grpc backend).
package rpcwire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// Origin describes where served bytes came from, msgpack-encoded on the
// wire as spec section 6 requires ("Origins serialized as length-prefixed
// message-pack").
type Origin struct {
	Kind   string `msgpack:"kind" json:"kind"`
	Detail string `msgpack:"detail" json:"detail,omitempty"`
}

// EncodeOrigin length-prefixes a msgpack-encoded Origin (the "length
// prefix" is msgpack's own array/map framing, which already self-delimits
// — no additional envelope is needed to merge into a larger message).
func EncodeOrigin(o Origin) ([]byte, error) {
	return msgpack.Marshal(o)
}

// DecodeOrigin reverses EncodeOrigin.
func DecodeOrigin(b []byte) (Origin, error) {
	var o Origin
	err := msgpack.Unmarshal(b, &o)
	return o, err
}

// ReadContentRequest / ReadContentResponse implement "ReadContent {
// data_space, id } -> { content: Data(origin, bytes) | Url(origin, url) |
// None }".
type ReadContentRequest struct {
	DataSpace string `msgpack:"data_space" json:"data_space"`
	ID        string `msgpack:"id" json:"id"`
}

type ReadContentResponse struct {
	Found  bool   `msgpack:"found" json:"found"`
	Origin Origin `msgpack:"origin" json:"origin"`
	Bytes  []byte `msgpack:"bytes,omitempty" json:"bytes,omitempty"`
	URL    string `msgpack:"url,omitempty" json:"url,omitempty"`
}

// WriteContentRequest / WriteContentResponse implement "WriteContent {
// data_space, data } -> { id }".
type WriteContentRequest struct {
	DataSpace string `msgpack:"data_space" json:"data_space"`
	Data      []byte `msgpack:"data" json:"data"`
}

type WriteContentResponse struct {
	ID string `msgpack:"id" json:"id"`
}

// GetContentWriterRequest / GetContentWriterResponse implement
// "GetContentWriter { data_space, id } -> { Url(url) | InlineOk |
// AlreadyExists }".
type GetContentWriterRequest struct {
	DataSpace string `msgpack:"data_space" json:"data_space"`
	ID        string `msgpack:"id" json:"id"`
}

type GetContentWriterResponse struct {
	URL           string `msgpack:"url,omitempty" json:"url,omitempty"`
	InlineOK      bool   `msgpack:"inline_ok,omitempty" json:"inline_ok,omitempty"`
	AlreadyExists bool   `msgpack:"already_exists,omitempty" json:"already_exists,omitempty"`
}

// RegisterAliasRequest / ResolveAliasRequest implement the alias RPCs.
type RegisterAliasRequest struct {
	KeySpace string `msgpack:"key_space" json:"key_space"`
	Key      string `msgpack:"key" json:"key"`
	ID       string `msgpack:"id" json:"id"`
}

type ResolveAliasRequest struct {
	KeySpace string `msgpack:"key_space" json:"key_space"`
	Key      string `msgpack:"key" json:"key"`
}

type ResolveAliasResponse struct {
	Found bool   `msgpack:"found" json:"found"`
	ID    string `msgpack:"id" json:"id"`
}

// msgpackCodec is a grpc codec.Codec backed by msgpack instead of
// protobuf, so the RPC message shapes above can ride real grpc transport
// (HTTP/2 framing, deadlines, streaming) without a protoc code-generation
// step.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// RegisterCodec installs the msgpack codec as a grpc named codec. Call
// once at process startup before dialing or serving.
func RegisterCodec() {
	encoding.RegisterCodec(msgpackCodec{})
}

// CodecName is passed as grpc.CallContentSubtype / used by the server's
// codec registration.
const CodecName = "msgpack"

// MethodName builds the full gRPC method name for the content-store
// service, e.g. "/forge.contentstore.v1.ContentStore/ReadContent".
func MethodName(rpc string) string {
	return fmt.Sprintf("/forge.contentstore.v1.ContentStore/%s", rpc)
}
