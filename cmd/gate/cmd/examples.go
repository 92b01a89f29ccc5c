package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Show prompts that demonstrate unstable output",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		printMarkdown(cmd, examplesMarkdown())
	},
}

func init() {
	rootCmd.AddCommand(examplesCmd)
}

type examplePrompt struct {
	level  string
	prompt string
	reason string
}

var examplePrompts = []examplePrompt{
	{"High instability (security)", "Write JWT authentication middleware", "Key storage and expiration times often vary"},
	{"High instability (algorithms)", "Implement consistent hashing", "Multiple valid approaches with trade-offs"},
	{"Medium instability", "Create a REST API rate limiter", "Implementation details may differ"},
	{"Low instability", "Write a function to reverse a string", "Simple, well-defined task"},
}

func examplesMarkdown() string {
	var b strings.Builder
	b.WriteString("# Example prompts\n\n")
	for _, ex := range examplePrompts {
		fmt.Fprintf(&b, "## %s\n\n- Prompt: `%s`\n- Why: %s\n\n", ex.level, ex.prompt, ex.reason)
	}
	fmt.Fprintf(&b, "Try: `gate review %q`\n", examplePrompts[0].prompt)
	return b.String()
}
