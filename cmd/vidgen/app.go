package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/skyreel/vidgen/enhance"
	"github.com/skyreel/vidgen/genconfig"
	"github.com/skyreel/vidgen/history"
	"github.com/skyreel/vidgen/jobs"
	"github.com/skyreel/vidgen/models"
	"github.com/skyreel/vidgen/output"
	"github.com/skyreel/vidgen/pipeline"
)

// appFlags are the persistent flags shared by every subcommand.
type appFlags struct {
	configDir string
	outputDir string
	verbose   bool
}

// app is the wired pipeline behind each subcommand.
type app struct {
	logger   zerolog.Logger
	configs  *genconfig.Store
	registry *models.Registry
	history  *history.Store
	gen      *pipeline.Generator
}

// newApp wires the pipeline. Commands that never touch the network
// (preview, configs, show, ...) work without an API token; generate and
// resume fail early without one.
func newApp(flags *appFlags, needsToken bool) (*app, error) {
	logger := newLogger(flags.verbose)

	token := os.Getenv("REPLICATE_API_TOKEN")
	if needsToken && token == "" {
		return nil, fmt.Errorf("REPLICATE_API_TOKEN is not set")
	}

	var transportOpts []jobs.TransportOption
	if ua := os.Getenv("VIDGEN_USER_AGENT"); ua != "" {
		transportOpts = append(transportOpts, jobs.WithUserAgent(ua))
	}
	if base := os.Getenv("VIDGEN_API_BASE_URL"); base != "" {
		transportOpts = append(transportOpts, jobs.WithBaseURL(base))
	}
	transport := jobs.NewHTTPTransport(token, transportOpts...)
	client := jobs.NewClient(transport, jobs.WithLogger(logger))

	enhancer, err := enhance.FromEnv()
	if err != nil {
		logger.Warn().Err(err).Msg("prompt enhancer unavailable, continuing without it")
		enhancer = enhance.Noop{}
	}

	configs := genconfig.NewStore(flags.configDir)
	registry := models.DefaultRegistry()
	hist := history.NewStore(flags.outputDir)
	manager := output.NewManager(flags.outputDir, output.WithLogger(logger))

	gen := pipeline.NewGenerator(configs, registry, client, manager, hist,
		pipeline.WithLogger(logger),
		pipeline.WithEnhancer(enhancer),
	)

	return &app{
		logger:   logger,
		configs:  configs,
		registry: registry,
		history:  hist,
		gen:      gen,
	}, nil
}
