package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protokit/internal/config"
	"github.com/danmuck/protokit/internal/logging"
)

const defaultPath = "protokit.toml"

func main() {
	logging.ConfigureRuntime()

	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal().Err(err).Str("path", *input).Msg("invalid config")
		}
		log.Info().
			Str("path", *input).
			Str("default_package", cfg.Schema.DefaultPackage).
			Str("syntax", cfg.Schema.Syntax.String()).
			Int("max_depth", cfg.Codec.MaxDepth).
			Msg("validated config")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("write config template")
	}
	log.Info().Str("path", *output).Msg("wrote config template")
}
