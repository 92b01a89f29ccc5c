package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/report"
)

var compareCmd = &cobra.Command{
	Use:   "compare <prompt>",
	Short: "Compare output stability across models",
	Long: `Review the same prompt with several models and rank them by confidence.

Examples:
  gate compare "Implement quicksort" -M gpt-4o-mini -M gpt-4o`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

var (
	compareModels []string
	compareJSON   bool
)

func init() {
	rootCmd.AddCommand(compareCmd)
	addSamplingFlags(compareCmd, false)
	compareCmd.Flags().StringArrayVarP(&compareModels, "models", "M", []string{"gpt-4o-mini", "gpt-4o"},
		"models to compare (repeatable)")
	compareCmd.Flags().BoolVarP(&compareJSON, "json", "j", false, "print the ranking as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{sampling: true})
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := reviewOptions(cmd, a)
	if err != nil {
		return err
	}

	progressf(cmd.ErrOrStderr(), "Comparing %d models...", len(compareModels))
	entries, err := a.guard.Compare(cmd.Context(), prompt, compareModels, opts)
	if err != nil {
		return err
	}
	if compareJSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	printMarkdown(cmd, report.Comparison(prompt, entries))
	return nil
}
