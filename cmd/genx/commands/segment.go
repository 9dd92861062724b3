package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/cli"
	"github.com/haivivi/genxstream/pkg/genx/modelloader"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

var (
	segModel      string
	segSchemaFile string
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Compress a conversation into a segment with entities and relations",
	Long: `Read conversation lines from stdin and run a segmentor on them.

--model names either a registered segmentor or a generator; for a generator
a segmentor is built on the fly. The result is printed in the --output
format.

Examples:
  echo -e "user: Tom loves dinosaurs\nmodel: His favorite is the T-Rex" | genx segment --model openai/gpt-4o
  genx segment --model seg/default --schema schema.yaml < conversation.txt`,
	Args: cobra.NoArgs,
	RunE: runSegment,
}

func runSegment(cmd *cobra.Command, args []string) error {
	if segModel == "" {
		return fmt.Errorf("--model is required (e.g., openai/gpt-4o)")
	}
	messages, err := readLines(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(messages) == 0 {
		return errors.New("no input messages (pipe conversation text to stdin)")
	}

	l, err := loadModels()
	if err != nil {
		return err
	}
	input := segmentors.Input{Messages: messages}
	if segSchemaFile != "" {
		var schema segmentors.Schema
		if err := cli.LoadRequest(segSchemaFile, &schema); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		input.Schema = &schema
	}

	result, err := segmentorFor(l, segModel).Process(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("segmentor: %w", err)
	}
	return output(cmd, result)
}

func segmentorFor(l *modelloader.Loader, pattern string) segmentors.Segmentor {
	if seg, err := l.Segmentors.Get(pattern); err == nil {
		return seg
	}
	return segmentors.NewGenXWithMux(segmentors.Config{Generator: pattern}, l.Generators)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func init() {
	segmentCmd.Flags().StringVarP(&segModel, "model", "m", "", "segmentor or generator pattern")
	segmentCmd.Flags().StringVar(&segSchemaFile, "schema", "", "path to entity schema YAML/JSON file")

	rootCmd.AddCommand(segmentCmd)
}
