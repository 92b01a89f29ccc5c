package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <file>",
	Short: "Gate generations collected elsewhere",
	Long: `Evaluate a YAML or JSON file of generations without calling a provider.

File format:

  prompt: Implement JWT authentication
  model: gpt-4o-mini          # optional, recorded in the report
  generations:
    - "..."
    - "..."
  policy:                     # optional, overlays the configured policy
    min_confidence: 0.7
    num_samples: 3
    hard_reject:
      - {category: security-parameter, severity: high}
    severity_overrides:
      style: medium

Use "-" to read the file from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var evaluateFlags outputFlags

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateFlags.register(evaluateCmd)
}

// evaluationInput is the evaluate file format. yaml.v3 also reads JSON.
type evaluationInput struct {
	Prompt      string       `yaml:"prompt"`
	Model       string       `yaml:"model"`
	Generations []string     `yaml:"generations"`
	Policy      *policyInput `yaml:"policy"`
}

type policyInput struct {
	MinConfidence     *float64          `yaml:"min_confidence"`
	NumSamples        *int              `yaml:"num_samples"`
	HardReject        []hardRejectInput `yaml:"hard_reject"`
	SeverityOverrides map[string]string `yaml:"severity_overrides"`
}

type hardRejectInput struct {
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	in, err := readEvaluationInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{keepGenerations: evaluateFlags.showResponses})
	if err != nil {
		return err
	}
	defer a.Close()

	policy, err := in.Policy.apply(a.guard.Policy())
	if err != nil {
		return err
	}

	eval, err := a.guard.Evaluate(cmd.Context(), in.Prompt, in.Generations, &policy, in.Model)
	if err != nil {
		return err
	}
	return evaluateFlags.emit(cmd, eval)
}

func readEvaluationInput(stdin io.Reader, path string) (*evaluationInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading generations: %w", err)
	}

	var in evaluationInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("parsing %s: %v", path, err))
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, core.ErrValidation(core.CodeEmptyPrompt, "input file has no prompt")
	}
	return &in, nil
}

// apply overlays the file's policy on base. Hard-reject rules and severity
// overrides replace the base values when present.
func (p *policyInput) apply(base core.PolicyConfig) (core.PolicyConfig, error) {
	if p == nil {
		return base, nil
	}
	out := base
	if p.MinConfidence != nil {
		out.MinConfidence = *p.MinConfidence
	}
	if p.NumSamples != nil {
		out.NumSamples = *p.NumSamples
	}
	if p.HardReject != nil {
		out.HardReject = make([]core.HardRejectRule, 0, len(p.HardReject))
		for i, r := range p.HardReject {
			sev, err := core.ParseSeverity(r.Severity)
			if err != nil {
				return base, core.InvalidPolicy(fmt.Sprintf("hard_reject[%d]: %v", i, err))
			}
			out.HardReject = append(out.HardReject, core.HardRejectRule{Category: r.Category, Severity: sev})
		}
	}
	if p.SeverityOverrides != nil {
		out.SeverityOverrides = make(map[string]core.Severity, len(p.SeverityOverrides))
		for category, raw := range p.SeverityOverrides {
			sev, err := core.ParseSeverity(raw)
			if err != nil {
				return base, core.InvalidPolicy(fmt.Sprintf("severity_overrides[%s]: %v", category, err))
			}
			out.SeverityOverrides[category] = sev
		}
	}
	return out, nil
}
