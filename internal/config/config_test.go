package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/frame"
	"github.com/danmuck/protokit/internal/testutil/testlog"
)

func TestTemplateLoadsToDefaults(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "protokit.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("template differs from defaults: got %+v want %+v", cfg, DefaultConfig())
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite existing config")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	cfg, err := Parse(`
[schema]
default_package = " shop.v1 "
syntax = "proto2"

[codec]
max_message_bytes = 0

[log]
level = "debug"
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Schema.DefaultPackage != "shop.v1" {
		t.Fatalf("unexpected package: %q", cfg.Schema.DefaultPackage)
	}
	if cfg.Schema.Syntax != codec.Proto2 {
		t.Fatalf("unexpected syntax: %v", cfg.Schema.Syntax)
	}
	if !cfg.Schema.EmitReserved || cfg.Schema.OutputDir != "proto" {
		t.Fatalf("undefined schema keys lost their defaults: %+v", cfg.Schema)
	}
	if cfg.Codec.MaxDepth != codec.DefaultMaxDepth {
		t.Fatalf("unexpected max depth: %d", cfg.Codec.MaxDepth)
	}
	if cfg.Codec.MaxMessageBytes != 0 {
		t.Fatalf("explicit zero should disable the cap, got %d", cfg.Codec.MaxMessageBytes)
	}
	if cfg.Log.Level != zerolog.DebugLevel {
		t.Fatalf("unexpected level: %v", cfg.Log.Level)
	}

	opts := cfg.SchemaOptions()
	if opts.DefaultPackage != "shop.v1" || opts.Syntax != codec.Proto2 || !opts.EmitReserved {
		t.Fatalf("unexpected schema options: %+v", opts)
	}
	if cfg.FrameLimits() != (frame.Limits{}) {
		t.Fatalf("unexpected frame limits: %+v", cfg.FrameLimits())
	}
	if got := cfg.UnmarshalOptions().MaxDepth; got != codec.DefaultMaxDepth {
		t.Fatalf("unexpected unmarshal depth: %d", got)
	}
	if got := cfg.EndpointOptions().Marshal.MaxDepth; got != codec.DefaultMaxDepth {
		t.Fatalf("unexpected endpoint marshal depth: %d", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"syntax":        "[schema]\nsyntax = \"proto4\"\n",
		"level":         "[log]\nlevel = \"loud\"\n",
		"depth":         "[codec]\nmax_depth = 0\n",
		"negative size": "[codec]\nmax_message_bytes = -1\n",
		"package":       "[schema]\ndefault_package = \"shop..v1\"\n",
		"unknown key":   "[schema]\nflavor = \"x\"\n",
		"malformed":     "[schema\n",
	}
	for name, data := range cases {
		if _, err := Parse(data); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "load protokit config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
