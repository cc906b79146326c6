package endpoint

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content-subtype the gRPC codec registers under.
const CodecName = "protokit"

// GRPCCodec carries described Go values as gRPC message payloads. Generated
// proto.Message values fall through to the protobuf runtime, so one client
// can mix both.
type GRPCCodec struct {
	Options Options
}

var _ encoding.Codec = GRPCCodec{}

func (c GRPCCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	b, err := c.Options.Marshal.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpc codec %s: %w", CodecName, err)
	}
	return b, nil
}

func (c GRPCCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	if err := c.Options.Unmarshal.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpc codec %s: %w", CodecName, err)
	}
	return nil
}

func (GRPCCodec) Name() string { return CodecName }

// RegisterGRPCCodec installs the codec globally. Like encoding.RegisterCodec
// it must run during initialization.
func RegisterGRPCCodec(opts Options) {
	encoding.RegisterCodec(GRPCCodec{Options: opts})
}
