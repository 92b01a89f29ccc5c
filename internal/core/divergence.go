package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity is the ordered importance of a divergence.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// Severities lists all severities in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityHigh
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (want low, medium or high)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Cluster is a group of generations judged mutually equivalent.
type Cluster struct {
	// Representative is the text other generations are compared against.
	Representative      string `json:"representative"`
	RepresentativeIndex int    `json:"representative_index"`
	// Members holds original generation indexes in arrival order.
	Members []int `json:"members"`
}

// Size returns the number of generations in the cluster.
func (c Cluster) Size() int {
	return len(c.Members)
}

// ClusterSizes returns the size of every cluster, in cluster order.
func ClusterSizes(clusters []Cluster) []int {
	sizes := make([]int, len(clusters))
	for i, c := range clusters {
		sizes[i] = c.Size()
	}
	return sizes
}

// DivergencePoint records one aspect on which generations disagree.
type DivergencePoint struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Aspect      string   `json:"aspect,omitempty"`
	Description string   `json:"description,omitempty"`
	// Variants maps each observed value to the number of generations reporting it.
	Variants map[string]int `json:"variants"`
	// Members maps each observed value to the generations reporting it.
	Members map[string][]int `json:"members,omitempty"`
}

// Total returns the number of generations that reported any variant.
func (d DivergencePoint) Total() int {
	total := 0
	for _, n := range d.Variants {
		total += n
	}
	return total
}

// SortedVariants returns variant values ordered by descending support, then name.
func (d DivergencePoint) SortedVariants() []string {
	keys := make([]string, 0, len(d.Variants))
	for k := range d.Variants {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if d.Variants[keys[i]] != d.Variants[keys[j]] {
			return d.Variants[keys[i]] > d.Variants[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// VariantSummary renders variants as `"1h"x3, "24h"x2`.
func (d DivergencePoint) VariantSummary() string {
	parts := make([]string, 0, len(d.Variants))
	for _, v := range d.SortedVariants() {
		parts = append(parts, fmt.Sprintf("%q x%d", v, d.Variants[v]))
	}
	return strings.Join(parts, ", ")
}

// divergenceJSON guards the wire shape against accidental field renames.
type divergenceJSON struct {
	Category    string           `json:"category"`
	Severity    Severity         `json:"severity"`
	Aspect      string           `json:"aspect,omitempty"`
	Description string           `json:"description,omitempty"`
	Variants    map[string]int   `json:"variants"`
	Members     map[string][]int `json:"members,omitempty"`
}

// UnmarshalJSON rejects divergences without a category or variants.
func (d *DivergencePoint) UnmarshalJSON(data []byte) error {
	var raw divergenceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Category == "" {
		return fmt.Errorf("divergence: missing category")
	}
	if raw.Variants == nil {
		raw.Variants = map[string]int{}
	}
	*d = DivergencePoint(raw)
	return nil
}
