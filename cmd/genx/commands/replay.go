package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/wire"
)

var replayFrames bool

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Render a recorded stream",
	Long: `Read a stream recorded with 'genx chat --record' and render it the same
way it was rendered live, including its terminal state.

With --frames the decoded wire frames are printed in the --output format
instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	path, err := recordingPath(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	if replayFrames {
		defer f.Close()
		var frames []*wire.Frame
		dec := wire.NewDecoder(f)
		for {
			fr, err := dec.Decode()
			if err != nil {
				if genx.IsEOF(err) {
					break
				}
				return err
			}
			frames = append(frames, fr)
		}
		return output(cmd, frames)
	}
	return renderStream(cmd, wire.Replay(f))
}

func init() {
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "print decoded frames instead of rendering")
	rootCmd.AddCommand(replayCmd)
}
