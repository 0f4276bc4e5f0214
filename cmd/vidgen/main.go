// Command vidgen drives the generation pipeline from the terminal:
// resolve a config, submit it to the remote model, wait, and persist the
// artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &appFlags{}

	root := &cobra.Command{
		Use:           "vidgen",
		Short:         "Configuration-driven generation against remote AI models",
		Long:          "vidgen resolves layered generation configs into prompts, runs them\nagainst a remote model API and persists artifacts with full history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&app.configDir, "configs", "c", "configs", "directory holding configuration documents")
	root.PersistentFlags().StringVarP(&app.outputDir, "output", "o", "outputs", "root directory for generated artifacts")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newGenerateCmd(app),
		newPreviewCmd(app),
		newResumeCmd(app),
		newCancelCmd(app),
		newModelsCmd(app),
		newConfigsCmd(app),
		newShowCmd(app),
		newHistoryCmd(app),
		newStatsCmd(app),
	)
	return root
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
