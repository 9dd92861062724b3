package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/cli"
	"github.com/haivivi/genxstream/pkg/genx/generators"
	"github.com/haivivi/genxstream/pkg/genx/modelcontexts"
	"github.com/haivivi/genxstream/pkg/genx/modelloader"
	"github.com/haivivi/genxstream/pkg/genx/profilers"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
	"github.com/haivivi/genxstream/pkg/genx/transformers"
)

var (
	// Global flags
	verbose      bool
	configDir    string
	outputFormat string

	// testLoaderHook, when set, runs on every freshly loaded Loader.
	testLoaderHook func(*modelloader.Loader)
)

var rootCmd = &cobra.Command{
	Use:   "genx",
	Short: "Streaming generation toolkit",
	Long: `genx - drive generators, segmentors, profilers and realtime
transformers from the command line.

Backends are registered from YAML/JSON files in the config directory
(default ~/.genx/models). Values starting with $ are read from the
environment; files whose credentials are missing are skipped.

Examples:
  # List what the config directory registers
  genx models

  # Stream a chat completion and record it
  genx chat --model openai/gpt-4o --record hello.msgpack "Say hello"

  # Render the recording again
  genx replay hello.msgpack`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		_, err := cli.ParseOutputFormat(outputFormat)
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory with model config files (default ~/.genx/models)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "output format: yaml, json or raw")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// loadModels builds a Loader over fresh muxes and registers every config
// in the config directory. A missing default directory is not an error.
func loadModels() (*modelloader.Loader, error) {
	l := &modelloader.Loader{
		Generators:    generators.NewMux(),
		Segmentors:    segmentors.NewMux(),
		Profilers:     profilers.NewMux(),
		ModelContexts: modelcontexts.NewMux(),
		Transformers:  transformers.NewMux(),
		Verbose:       verbose,
	}

	dir := configDir
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.ModelsDir()
	}
	switch _, err := os.Stat(dir); {
	case err == nil:
		names, err := l.LoadFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load models: %w", err)
		}
		slog.Debug("loaded models", "dir", dir, "names", names)
	case errors.Is(err, fs.ErrNotExist) && configDir == "":
	default:
		return nil, err
	}

	if testLoaderHook != nil {
		testLoaderHook(l)
	}
	return l, nil
}

func output(cmd *cobra.Command, v any) error {
	p, err := cli.NewPrinter(cmd.OutOrStdout(), outputFormat)
	if err != nil {
		return err
	}
	return p.Print(v)
}
