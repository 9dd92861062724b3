package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/cli"
	"github.com/haivivi/genxstream/pkg/genx/modelloader"
	"github.com/haivivi/genxstream/pkg/genx/profilers"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

var (
	profModel      string
	profSchemaFile string
	profExtracted  string
	profProfiles   string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update entity profiles from a conversation and its segment",
	Long: `Read conversation lines from stdin and run a profiler with the
segmentor's output for the same conversation.

The profiler produces schema changes, profile updates and additional
relations. --model names a registered profiler or a generator.

Examples:
  cat conversation.txt | genx segment --model openai/gpt-4o -o json > extracted.json
  cat conversation.txt | genx profile --model openai/gpt-4o --extracted extracted.json \
    --schema schema.yaml --profiles profiles.json`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	if profModel == "" {
		return fmt.Errorf("--model is required (e.g., openai/gpt-4o)")
	}
	if profExtracted == "" {
		return fmt.Errorf("--extracted is required (path to segmentor output)")
	}
	messages, err := readLines(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(messages) == 0 {
		return errors.New("no input messages (pipe conversation text to stdin)")
	}

	var extracted segmentors.Result
	if err := cli.LoadRequest(profExtracted, &extracted); err != nil {
		return fmt.Errorf("load extracted: %w", err)
	}
	input := profilers.Input{Messages: messages, Extracted: &extracted}
	if profSchemaFile != "" {
		var schema segmentors.Schema
		if err := cli.LoadRequest(profSchemaFile, &schema); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		input.Schema = &schema
	}
	if profProfiles != "" {
		if err := cli.LoadRequest(profProfiles, &input.Profiles); err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
	}

	l, err := loadModels()
	if err != nil {
		return err
	}
	result, err := profilerFor(l, profModel).Process(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	return output(cmd, result)
}

func profilerFor(l *modelloader.Loader, pattern string) profilers.Profiler {
	if prof, err := l.Profilers.Get(pattern); err == nil {
		return prof
	}
	return profilers.NewGenXWithMux(profilers.Config{Generator: pattern}, l.Generators)
}

func init() {
	profileCmd.Flags().StringVarP(&profModel, "model", "m", "", "profiler or generator pattern")
	profileCmd.Flags().StringVar(&profSchemaFile, "schema", "", "path to entity schema YAML/JSON file")
	profileCmd.Flags().StringVar(&profExtracted, "extracted", "", "path to segmentor output (JSON or YAML)")
	profileCmd.Flags().StringVar(&profProfiles, "profiles", "", "path to existing profiles (JSON or YAML)")

	rootCmd.AddCommand(profileCmd)
}
