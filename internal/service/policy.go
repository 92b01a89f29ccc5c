package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// PolicyEvaluator applies an admission policy to a scored generation set.
type PolicyEvaluator struct {
	policy core.PolicyConfig
}

// NewPolicyEvaluator creates an evaluator. The policy is assumed validated.
func NewPolicyEvaluator(policy core.PolicyConfig) *PolicyEvaluator {
	return &PolicyEvaluator{policy: policy}
}

// Decide returns the accept/reject decision for n generations. Rules apply in
// order: sample count, hard-reject rules, then the inclusive confidence
// threshold.
func (p *PolicyEvaluator) Decide(n int, score float64, divergences []core.DivergencePoint) (core.Decision, error) {
	if n < p.policy.NumSamples {
		return core.Decision{}, core.InsufficientSamples(n, p.policy.NumSamples)
	}

	decision := core.Decision{
		ConfidenceScore: score,
		Divergences:     divergences,
	}
	if decision.Divergences == nil {
		decision.Divergences = []core.DivergencePoint{}
	}

	if rule, d, ok := p.policy.MatchingRule(divergences); ok {
		decision.Reason = hardRejectReason(rule, d)
		return decision, nil
	}

	if score < p.policy.MinConfidence {
		decision.Reason = fmt.Sprintf("Output confidence %.4f is below required threshold %s",
			score, formatThreshold(p.policy.MinConfidence))
		return decision, nil
	}

	decision.Passed = true
	return decision, nil
}

func hardRejectReason(rule core.HardRejectRule, d core.DivergencePoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hard-reject rule matched: %s", rule)
	if d.Aspect != "" {
		fmt.Fprintf(&b, " (%s: %s)", d.Aspect, d.VariantSummary())
	} else {
		fmt.Fprintf(&b, " (%s)", d.VariantSummary())
	}
	return b.String()
}

// formatThreshold renders at least two decimals without losing precision:
// 0.7 -> "0.70", 0.725 -> "0.725".
func formatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s + ".00"
	}
	if decimals := len(s) - dot - 1; decimals < 2 {
		s += strings.Repeat("0", 2-decimals)
	}
	return s
}
