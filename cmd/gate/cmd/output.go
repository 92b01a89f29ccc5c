package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/clip"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/report"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// newCopier exists for testability.
var newCopier = func() interface{ Copy(string) (clip.Result, error) } { return clip.New() }

// outputFlags are shared by commands that print an evaluation.
type outputFlags struct {
	json          bool
	output        string
	showResponses bool
	copy          bool
	exitCode      bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.json, "json", "j", false, "print the evaluation as JSON")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "also save the evaluation as JSON to this file")
	cmd.Flags().BoolVarP(&o.showResponses, "show-responses", "r", false, "include every generation and the widest diff")
	cmd.Flags().BoolVar(&o.copy, "copy", false, "copy the markdown report to the clipboard")
	cmd.Flags().BoolVar(&o.exitCode, "exit-code", false, "exit with status 2 when the output is rejected")
}

// emit prints eval and applies the output flags.
func (o *outputFlags) emit(cmd *cobra.Command, eval *service.Evaluation) error {
	w := cmd.OutOrStdout()

	if o.output != "" {
		if err := writeJSONFile(o.output, eval); err != nil {
			return err
		}
		progressf(cmd.ErrOrStderr(), "Evaluation saved to %s", o.output)
	}

	markdown := report.Evaluation(eval, report.Options{ShowResponses: o.showResponses})
	if o.json {
		if err := writeJSON(w, eval); err != nil {
			return err
		}
	} else {
		r := report.NewRenderer(w, noColor)
		fmt.Fprintln(w, r.Badge(eval.Decision.Passed))
		fmt.Fprint(w, r.Render(markdown))
	}

	if o.copy {
		res, err := newCopier().Copy(markdown)
		if err != nil {
			return fmt.Errorf("copying report: %w", err)
		}
		progressf(cmd.ErrOrStderr(), "%s", res)
	}

	if o.exitCode && !eval.Decision.Passed {
		return ErrRejected
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding evaluation: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// printMarkdown renders markdown to the command's stdout.
func printMarkdown(cmd *cobra.Command, markdown string) {
	w := cmd.OutOrStdout()
	fmt.Fprint(w, report.NewRenderer(w, noColor).Render(markdown))
}
