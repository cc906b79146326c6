package config

import (
	"github.com/danmuck/protokit/internal/logging"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/endpoint"
	"github.com/danmuck/protokit/internal/protocol/frame"
	"github.com/danmuck/protokit/internal/protocol/schema"
)

func (c Config) SchemaOptions() schema.Options {
	return schema.Options{
		DefaultPackage: c.Schema.DefaultPackage,
		Syntax:         c.Schema.Syntax,
		EmitReserved:   c.Schema.EmitReserved,
	}
}

func (c Config) MarshalOptions() codec.MarshalOptions {
	return codec.MarshalOptions{MaxDepth: c.Codec.MaxDepth}
}

func (c Config) UnmarshalOptions() codec.UnmarshalOptions {
	return codec.UnmarshalOptions{MaxDepth: c.Codec.MaxDepth}
}

func (c Config) EndpointOptions() endpoint.Options {
	return endpoint.Options{Marshal: c.MarshalOptions(), Unmarshal: c.UnmarshalOptions()}
}

func (c Config) FrameLimits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.Codec.MaxMessageBytes}
}

// ApplyLogging sets the configured level on the global logger.
func (c Config) ApplyLogging() {
	logging.SetLevel(c.Log.Level)
}
