package service

import (
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// Scan modes for the divergence extractor.
const (
	ScanMembers         = "members"
	ScanRepresentatives = "representatives"
)

// SeverityResolver maps a divergence category to its severity.
type SeverityResolver func(category string) core.Severity

// DefaultSeverity resolves categories with the built-in severity table.
func DefaultSeverity(category string) core.Severity {
	return core.DefaultPolicy().SeverityFor(category)
}

// DivergenceExtractor turns clusters into structured disagreement points.
// It holds no state between calls.
type DivergenceExtractor struct {
	extractors []core.Extractor
	scanMode   string
}

// NewDivergenceExtractor creates an extractor over the given aspect
// extractors. An empty scan mode selects ScanMembers.
func NewDivergenceExtractor(extractors []core.Extractor, scanMode string) (*DivergenceExtractor, error) {
	switch scanMode {
	case "":
		scanMode = ScanMembers
	case ScanMembers, ScanRepresentatives:
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown scan mode %q (want %s or %s)", scanMode, ScanMembers, ScanRepresentatives))
	}

	seen := make(map[string]bool, len(extractors))
	for _, e := range extractors {
		if seen[e.Name()] {
			return nil, core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("duplicate extractor %q", e.Name()))
		}
		seen[e.Name()] = true
	}
	return &DivergenceExtractor{extractors: extractors, scanMode: scanMode}, nil
}

// Categories returns the categories this extractor can emit.
func (d *DivergenceExtractor) Categories() []string {
	return ExtractorCategories(d.extractors)
}

// Extract reports divergences using the default severity table.
func (d *DivergenceExtractor) Extract(clusters []core.Cluster, set core.GenerationSet) ([]core.DivergencePoint, error) {
	return d.ExtractWith(clusters, set, DefaultSeverity)
}

// ExtractWith reports every aspect on which generations disagree. An aspect
// diverges when classified generations report more than one variant;
// generations the extractor cannot classify are left out of the tally.
// The result is sorted by category, then aspect.
func (d *DivergenceExtractor) ExtractWith(clusters []core.Cluster, set core.GenerationSet, severity SeverityResolver) ([]core.DivergencePoint, error) {
	if err := checkPartition(clusters, set); err != nil {
		return nil, err
	}
	if severity == nil {
		severity = DefaultSeverity
	}

	points := make([]core.DivergencePoint, 0)
	for _, ex := range d.extractors {
		variants, members, err := d.tally(ex, clusters, set)
		if err != nil {
			return nil, err
		}
		if len(variants) < 2 {
			continue
		}
		point := core.DivergencePoint{
			Category: ex.Category(),
			Severity: severity(ex.Category()),
			Aspect:   ex.Name(),
			Variants: variants,
			Members:  members,
		}
		point.Description = fmt.Sprintf("%s differs across %d generations: %s",
			ex.Name(), point.Total(), point.VariantSummary())
		points = append(points, point)
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Category != points[j].Category {
			return points[i].Category < points[j].Category
		}
		return points[i].Aspect < points[j].Aspect
	})
	return points, nil
}

func (d *DivergenceExtractor) tally(ex core.Extractor, clusters []core.Cluster, set core.GenerationSet) (variants map[string]int, members map[string][]int, err error) {
	variants = make(map[string]int)
	members = make(map[string][]int)

	if sc, ok := ex.(SetClassifier); ok {
		d.tallySet(sc, clusters, set, variants, members)
	} else if d.scanMode == ScanRepresentatives {
		for _, c := range clusters {
			v, ok, err := classify(ex, c.Representative)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			variants[v] += c.Size()
			members[v] = append(members[v], c.Members...)
		}
	} else {
		for _, g := range set.Items {
			v, ok, err := classify(ex, g.Text)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			variants[v]++
			members[v] = append(members[v], g.Index)
		}
	}

	for v := range members {
		sort.Ints(members[v])
	}
	return variants, members, nil
}

// tallySet classifies the scanned texts together. In representative mode
// each representative carries its cluster's size.
func (d *DivergenceExtractor) tallySet(sc SetClassifier, clusters []core.Cluster, set core.GenerationSet, variants map[string]int, members map[string][]int) {
	if d.scanMode == ScanRepresentatives {
		texts := make([]string, len(clusters))
		for i, c := range clusters {
			texts[i] = c.Representative
		}
		for i, v := range sc.ClassifySet(texts) {
			if v == "" || i >= len(clusters) {
				continue
			}
			variants[v] += clusters[i].Size()
			members[v] = append(members[v], clusters[i].Members...)
		}
		return
	}
	for i, v := range sc.ClassifySet(set.Texts()) {
		if v == "" || i >= len(set.Items) {
			continue
		}
		variants[v]++
		members[v] = append(members[v], set.Items[i].Index)
	}
}

// classify turns an extractor panic into an execution error so a faulty
// custom extractor aborts the evaluation instead of the process.
func classify(ex core.Extractor, text string) (variant string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.DomainError{
				Category: core.ErrCatExecution,
				Code:     core.CodeExtractorFailed,
				Message:  fmt.Sprintf("extractor %s panicked: %v", ex.Name(), r),
			}
		}
	}()
	variant, ok = ex.Classify(text)
	return variant, ok, nil
}

// checkPartition verifies that clusters cover every generation exactly once.
func checkPartition(clusters []core.Cluster, set core.GenerationSet) error {
	want := make(map[int]bool, set.Len())
	for _, g := range set.Items {
		want[g.Index] = true
	}
	seen := make(map[int]bool, set.Len())
	for _, c := range clusters {
		for _, m := range c.Members {
			if !want[m] || seen[m] {
				return &core.DomainError{
					Category: core.ErrCatInternal,
					Code:     core.CodeInvalidClustering,
					Message:  fmt.Sprintf("generation index %d is unknown or assigned to more than one cluster", m),
				}
			}
			seen[m] = true
		}
	}
	if len(seen) != len(want) {
		return &core.DomainError{
			Category: core.ErrCatInternal,
			Code:     core.CodeInvalidClustering,
			Message:  fmt.Sprintf("clusters cover %d of %d generations", len(seen), len(want)),
		}
	}
	return nil
}
