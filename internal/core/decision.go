package core

// Outcome is the terminal state of a policy evaluation.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Decision is the result of applying a policy to a scored generation set.
// It serializes to the report shape consumed by downstream tooling:
//
//	{confidence_score, passed, reason?, divergences: [{category, severity, variants}]}
type Decision struct {
	Passed          bool              `json:"passed"`
	ConfidenceScore float64           `json:"confidence_score"`
	Reason          string            `json:"reason,omitempty"`
	Divergences     []DivergencePoint `json:"divergences"`
}

// Outcome returns the terminal state the decision represents.
func (d Decision) Outcome() Outcome {
	if d.Passed {
		return OutcomeAccepted
	}
	return OutcomeRejected
}

// HighestSeverity returns the most severe divergence, or 0 when there is none.
func (d Decision) HighestSeverity() Severity {
	var max Severity
	for _, div := range d.Divergences {
		if div.Severity > max {
			max = div.Severity
		}
	}
	return max
}

// CountBySeverity tallies divergences per severity.
func (d Decision) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, div := range d.Divergences {
		counts[div.Severity]++
	}
	return counts
}
