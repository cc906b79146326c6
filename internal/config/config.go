package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/danmuck/protokit/internal/logging"
	"github.com/danmuck/protokit/internal/protocol/codec"
)

// Config is the resolved protokit tool configuration.
type Config struct {
	Schema SchemaConfig
	Codec  CodecConfig
	Log    LogConfig
}

type SchemaConfig struct {
	DefaultPackage string
	Syntax         codec.Syntax
	EmitReserved   bool
	OutputDir      string
}

type CodecConfig struct {
	MaxDepth        int
	MaxMessageBytes uint64
}

type LogConfig struct {
	Level zerolog.Level
}

type fileConfig struct {
	Schema struct {
		DefaultPackage string `toml:"default_package"`
		Syntax         string `toml:"syntax"`
		EmitReserved   bool   `toml:"emit_reserved"`
		OutputDir      string `toml:"output_dir"`
	} `toml:"schema"`
	Codec struct {
		MaxDepth        int   `toml:"max_depth"`
		MaxMessageBytes int64 `toml:"max_message_bytes"`
	} `toml:"codec"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func DefaultConfig() Config {
	return Config{
		Schema: SchemaConfig{
			Syntax:       codec.Proto3,
			EmitReserved: true,
			OutputDir:    "proto",
		},
		Codec: CodecConfig{
			MaxDepth:        codec.DefaultMaxDepth,
			MaxMessageBytes: 8 * 1024 * 1024,
		},
		Log: LogConfig{Level: zerolog.InfoLevel},
	}
}

// Load reads path over DefaultConfig. Keys missing from the file keep their
// defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load protokit config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load protokit config: unknown key %s", undecoded[0])
	}
	return resolve(raw, meta)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse protokit config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("parse protokit config: unknown key %s", undecoded[0])
	}
	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := DefaultConfig()

	if meta.IsDefined("schema", "default_package") {
		cfg.Schema.DefaultPackage = strings.TrimSpace(raw.Schema.DefaultPackage)
	}
	if meta.IsDefined("schema", "syntax") {
		syntax, err := ParseSyntax(raw.Schema.Syntax)
		if err != nil {
			return Config{}, err
		}
		cfg.Schema.Syntax = syntax
	}
	if meta.IsDefined("schema", "emit_reserved") {
		cfg.Schema.EmitReserved = raw.Schema.EmitReserved
	}
	if meta.IsDefined("schema", "output_dir") {
		cfg.Schema.OutputDir = strings.TrimSpace(raw.Schema.OutputDir)
	}

	if meta.IsDefined("codec", "max_depth") {
		cfg.Codec.MaxDepth = raw.Codec.MaxDepth
	}
	if meta.IsDefined("codec", "max_message_bytes") {
		if raw.Codec.MaxMessageBytes < 0 {
			return Config{}, fmt.Errorf("codec.max_message_bytes must not be negative")
		}
		cfg.Codec.MaxMessageBytes = uint64(raw.Codec.MaxMessageBytes)
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("log.level: unknown level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Codec.MaxDepth <= 0 {
		return fmt.Errorf("codec.max_depth must be positive")
	}
	if pkg := cfg.Schema.DefaultPackage; pkg != "" {
		for _, seg := range strings.Split(pkg, ".") {
			if !codec.ValidName(seg) || strings.ContainsAny(seg, "[]") {
				return fmt.Errorf("schema.default_package %q is not a proto package", pkg)
			}
		}
	}
	return nil
}

// ParseSyntax accepts "proto2" and "proto3".
func ParseSyntax(raw string) (codec.Syntax, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "proto3":
		return codec.Proto3, nil
	case "proto2":
		return codec.Proto2, nil
	default:
		return 0, fmt.Errorf("schema.syntax: unknown syntax %q", raw)
	}
}
