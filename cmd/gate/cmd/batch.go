package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/report"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Review every prompt in a file and summarize",
	Long: `Review prompts from a file and print a summary.

Text files hold one prompt per line; blank lines and lines starting with
"#" are skipped. YAML files hold a list of prompts, or a mapping with a
"prompts" list.

Examples:
  gate batch prompts.txt
  gate batch -n 3 --json prompts.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	batchJSON   bool
	batchOutput string
)

func init() {
	rootCmd.AddCommand(batchCmd)
	addSamplingFlags(batchCmd, true)
	batchCmd.Flags().BoolVarP(&batchJSON, "json", "j", false, "print results and summary as JSON")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "also save results as JSON to this file")
}

type batchResult struct {
	Items   []service.BatchItem `json:"items"`
	Summary service.Summary     `json:"summary"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	prompts, err := readPrompts(args[0])
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

	stderr := cmd.ErrOrStderr()
	progressf(stderr, "Found %d prompts to analyze", len(prompts))
	items, summary, err := a.guard.Batch(cmd.Context(), prompts, opts, func(i, total int, prompt string) {
		progressf(stderr, "[%d/%d] %s", i, total, firstLine(prompt))
	})
	if err != nil {
		return err
	}

	result := batchResult{Items: items, Summary: summary}
	if batchOutput != "" {
		if err := writeJSONFile(batchOutput, result); err != nil {
			return err
		}
		progressf(stderr, "Results saved to %s", batchOutput)
	}
	if batchJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printMarkdown(cmd, report.Batch(items, summary))
	return nil
}

// readPrompts loads prompts from a text or YAML file.
func readPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts: %w", err)
	}

	var prompts []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		prompts, err = parseYAMLPrompts(data)
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("parsing %s: %v", path, err))
		}
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), core.MaxPromptLength+1)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			prompts = append(prompts, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading prompts: %w", err)
		}
	}

	if len(prompts) == 0 {
		return nil, core.ErrValidation(core.CodeEmptyPrompt, fmt.Sprintf("no prompts found in %s", path))
	}
	return prompts, nil
}

func parseYAMLPrompts(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var raw []string
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&raw); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc struct {
			Prompts []string `yaml:"prompts"`
		}
		if err := root.Decode(&doc); err != nil {
			return nil, err
		}
		raw = doc.Prompts
	default:
		return nil, fmt.Errorf("expected a list of prompts")
	}

	prompts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return line
}
