package commands

import (
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered backends",
	Long: `Load the config directory and list the registered patterns by kind:
generators, segmentors, profilers, model contexts and transformers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadModels()
		if err != nil {
			return err
		}
		return output(cmd, map[string][]string{
			"generators":    l.Generators.Patterns(),
			"segmentors":    l.Segmentors.Patterns(),
			"profilers":     l.Profilers.Patterns(),
			"modelcontexts": l.ModelContexts.Patterns(),
			"transformers":  l.Transformers.Patterns(),
		})
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
