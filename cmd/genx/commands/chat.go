package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/cli"
	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/wire"
)

var (
	chatModel     string
	chatContexts  []string
	chatSystem    string
	chatRecord    string
	chatTransform string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Stream a generation from a registered generator",
	Long: `Send one user message to a generator and render the streamed reply.

The message is taken from the arguments, or from stdin when there are none.
Registered model contexts can be prepended with --context. The output
stream can be passed through a registered transformer with --transform and
recorded with --record; bare file names are stored in ~/.genx/recordings.

Examples:
  genx chat --model openai/gpt-4o "What is a jitter buffer?"
  echo "Tell me a joke" | genx chat --model gemini/flash --context persona/pirate
  genx chat --model openai/gpt-4o --transform tts/cancan --record joke.msgpack "A joke"`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatModel == "" {
		return fmt.Errorf("--model is required (e.g., openai/gpt-4o)")
	}
	text := strings.Join(args, " ")
	if text == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return errors.New("no input message (pass it as arguments or pipe it to stdin)")
	}

	l, err := loadModels()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var mctxs []genx.ModelContext
	for _, pattern := range chatContexts {
		mctx, err := l.ModelContexts.ModelContext(ctx, pattern)
		if err != nil {
			return err
		}
		mctxs = append(mctxs, mctx)
	}
	var mcb genx.ModelContextBuilder
	if chatSystem != "" {
		mcb.PromptText("", chatSystem)
	}
	mcb.UserText("", text)
	mctxs = append(mctxs, mcb.Build())

	stream, err := l.Generators.GenerateStream(ctx, chatModel, genx.ModelContexts(mctxs...))
	if err != nil {
		return err
	}
	if chatTransform != "" {
		out, err := l.Transformers.Transform(ctx, chatTransform, stream)
		if err != nil {
			stream.CloseWithError(err)
			return err
		}
		stream = out
	}
	if chatRecord != "" {
		f, err := createRecording(chatRecord)
		if err != nil {
			stream.CloseWithError(err)
			return err
		}
		defer f.Close()
		stream = wire.Record(f, stream)
	}
	return renderStream(cmd, stream)
}

func recordingPath(name string) (string, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return "", err
	}
	return paths.RecordingPath(name), nil
}

func createRecording(name string) (*os.File, error) {
	path, err := recordingPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return f, nil
}

// renderStream renders s until its terminal error. Done and truncated
// streams are not command failures.
func renderStream(cmd *cobra.Command, s genx.Stream) error {
	defer s.Close()
	r := cli.NewRenderer(cmd.OutOrStdout())
	for {
		chunk, err := s.Next()
		if err != nil {
			if rerr := r.End(err); rerr != nil {
				return rerr
			}
			switch genx.ResultOf(err).Status {
			case genx.StatusDone, genx.StatusTruncated:
				return nil
			}
			return err
		}
		if err := r.Chunk(chunk); err != nil {
			return err
		}
	}
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "generator pattern (e.g., openai/gpt-4o)")
	chatCmd.Flags().StringArrayVar(&chatContexts, "context", nil, "registered model context to prepend (repeatable)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt")
	chatCmd.Flags().StringVar(&chatRecord, "record", "", "record the output stream to this file")
	chatCmd.Flags().StringVar(&chatTransform, "transform", "", "transformer pattern applied to the output stream")

	rootCmd.AddCommand(chatCmd)
}
