package authv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype the auth services speak ("application/grpc+json").
const CodecName = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec marshals messages as JSON. Every message in this package is a plain struct.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (codec) Name() string                       { return CodecName }
