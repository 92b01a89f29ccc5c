package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

var reviewCmd = &cobra.Command{
	Use:   "review <prompt>",
	Short: "Sample a prompt and gate the output on its stability",
	Long: `Sample a prompt several times through the configured provider,
cluster the answers, extract divergences and apply the policy.

Use "-" as the prompt to read it from stdin.

Examples:
  gate review "Write JWT authentication middleware"
  gate review -n 8 --model gpt-4o --show-responses "Implement consistent hashing"
  cat prompt.txt | gate review --json --exit-code -`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

var reviewFlags outputFlags

// Sampling flags are shared by review, batch and compare.
var (
	sampleCount    int
	sampleModel    string
	sampleSystem   string
	sampleTemp     float32
	sampleMaxTok   int
	sampleMinConf  float64
	sampleMinValid int
)

func init() {
	rootCmd.AddCommand(reviewCmd)
	addSamplingFlags(reviewCmd, true)
	reviewFlags.register(reviewCmd)
}

func addSamplingFlags(cmd *cobra.Command, withModel bool) {
	cmd.Flags().IntVarP(&sampleCount, "samples", "n", 0,
		fmt.Sprintf("generations to request (%d-%d, default policy.num_samples)", core.MinSampleRequest, core.MaxSampleRequest))
	if withModel {
		cmd.Flags().StringVarP(&sampleModel, "model", "m", "", "model to sample (default generation.model)")
	}
	cmd.Flags().StringVar(&sampleSystem, "system", "", "system prompt (default generation.system_prompt)")
	cmd.Flags().Float32VarP(&sampleTemp, "temperature", "t", 0, "sampling temperature (default generation.temperature)")
	cmd.Flags().IntVar(&sampleMaxTok, "max-tokens", 0, "completion token limit (default generation.max_tokens)")
	cmd.Flags().Float64Var(&sampleMinConf, "min-confidence", 0, "override policy.min_confidence")
	cmd.Flags().IntVar(&sampleMinValid, "min-valid", 0, "override policy.num_samples")
}

func runReview(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{sampling: true, keepGenerations: reviewFlags.showResponses})
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := reviewOptions(cmd, a)
	if err != nil {
		return err
	}

	progressf(cmd.ErrOrStderr(), "Sampling %s...", describeSamples(opts, a))
	eval, err := a.guard.Review(cmd.Context(), prompt, opts)
	if err != nil {
		return err
	}
	return reviewFlags.emit(cmd, eval)
}

// reviewOptions merges sampling flags over the configuration.
func reviewOptions(cmd *cobra.Command, a *app) (service.ReviewOptions, error) {
	gen := a.cfg.Generation
	opts := service.ReviewOptions{
		Samples:      sampleCount,
		Model:        sampleModel,
		SystemPrompt: gen.SystemPrompt,
		Temperature:  a.cfg.Temperature(),
		MaxTokens:    gen.MaxTokens,
	}
	flags := cmd.Flags()
	if flags.Changed("system") {
		opts.SystemPrompt = sampleSystem
	}
	if flags.Changed("temperature") {
		t := sampleTemp
		opts.Temperature = &t
	}
	if flags.Changed("max-tokens") {
		opts.MaxTokens = sampleMaxTok
	}

	if flags.Changed("min-confidence") || flags.Changed("min-valid") {
		policy := a.guard.Policy()
		if flags.Changed("min-confidence") {
			policy.MinConfidence = sampleMinConf
		}
		if flags.Changed("min-valid") {
			policy.NumSamples = sampleMinValid
		}
		if err := policy.Validate(a.engine.KnownCategories()); err != nil {
			return opts, err
		}
		opts.Policy = &policy
	}
	return opts, nil
}

func describeSamples(opts service.ReviewOptions, a *app) string {
	n := opts.Samples
	if n == 0 {
		n = a.guard.Policy().NumSamples
	}
	model := opts.Model
	if model == "" {
		model = a.cfg.Generation.Model
	}
	return fmt.Sprintf("%d generations from %s", n, model)
}

// readPrompt returns arg, or stdin when arg is "-".
func readPrompt(stdin io.Reader, arg string) (string, error) {
	prompt := arg
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if err := service.ValidatePrompt(prompt); err != nil {
		return "", err
	}
	return prompt, nil
}
