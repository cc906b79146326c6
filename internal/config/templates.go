package config

import (
	"fmt"
	"os"
)

func Template() string {
	return protokitTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(protokitTemplate), 0o600)
}

const protokitTemplate = `# protokit configuration

[schema]
# package for types that declare none; empty writes default.proto
default_package = ""
# syntax of synthetic wrapper messages: proto3 | proto2
syntax = "proto3"
emit_reserved = true
output_dir = "proto"

[codec]
max_depth = 100
# frame payload cap for delimited streams, 0 disables it
max_message_bytes = 8388608

[log]
# trace | debug | info | warn | error
level = "info"
`
