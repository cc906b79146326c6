package main

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protokit/internal/config"
	"github.com/danmuck/protokit/internal/logging"
	"github.com/danmuck/protokit/internal/protocol/frame"
)

func main() {
	logging.ConfigureRuntime()

	input := flag.String("input", "-", "binary message file, - for stdin")
	delimited := flag.Bool("delimited", false, "input is a stream of length-prefixed messages")
	maxNest := flag.Int("max-nest", 16, "deepest payload level expanded as a nested message")
	configPath := flag.String("config", "", "protokit config for frame limits and log level")
	flag.Parse()

	limits := frame.DefaultLimits()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg.ApplyLogging()
		limits = cfg.FrameLimits()
	}

	data, err := readInput(*input)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("read input")
	}
	log.Debug().Str("input", *input).Int("bytes", len(data)).Bool("delimited", *delimited).Msg("protodump")

	opts := dumpOptions{delimited: *delimited, maxNest: *maxNest, limits: limits}
	if err := dump(os.Stdout, data, opts); err != nil {
		log.Fatal().Err(err).Msg("dump failed")
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
