package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// Preparer is implemented by oracles that benefit from seeing every text
// before pairwise comparisons start (e.g. batching embedding calls).
type Preparer interface {
	Prepare(ctx context.Context, texts []string) error
}

// Clusterer partitions a generation set into equivalence clusters.
//
// Two strategies exist and they differ near the equivalence threshold:
//
//   - greedy (default): each generation is compared, in arrival order, with the
//     representative of every existing cluster and joins the first equivalent
//     one. This is order dependent and not transitive: if A~B and B~C but not
//     A~C, arrival order decides whether C joins A's cluster. Earlier arrivals
//     take precedence.
//   - components: every pair is compared and equivalent pairs are merged with
//     union-find. Clusters are the connected components, so A~B and B~C puts all
//     three together whatever the order.
type Clusterer struct {
	strategy string
}

// NewClusterer creates a clusterer for the given strategy. An empty strategy
// selects greedy.
func NewClusterer(strategy string) (*Clusterer, error) {
	switch strategy {
	case "", core.ClusterGreedy:
		return &Clusterer{strategy: core.ClusterGreedy}, nil
	case core.ClusterComponents:
		return &Clusterer{strategy: core.ClusterComponents}, nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown clustering strategy %q (want %s or %s)", strategy, core.ClusterGreedy, core.ClusterComponents))
	}
}

// Strategy returns the configured strategy name.
func (c *Clusterer) Strategy() string {
	return c.strategy
}

// Cluster partitions set. Every generation ends up in exactly one cluster and
// clusters are ordered by their first member. Oracle failures and context
// cancellation abort with OracleUnavailable.
func (c *Clusterer) Cluster(ctx context.Context, set core.GenerationSet, oracle core.SimilarityOracle) ([]core.Cluster, error) {
	if set.Len() == 0 {
		return nil, core.InsufficientSamples(0, 1)
	}
	if oracle == nil {
		return nil, core.OracleUnavailable("none", errors.New("no similarity oracle configured"))
	}

	if p, ok := oracle.(Preparer); ok && set.Len() > 1 {
		if err := p.Prepare(ctx, set.Texts()); err != nil {
			return nil, asOracleError(oracle, err)
		}
	}

	if c.strategy == core.ClusterComponents {
		return c.components(ctx, set, oracle)
	}
	return c.greedy(ctx, set, oracle)
}

func (c *Clusterer) greedy(ctx context.Context, set core.GenerationSet, oracle core.SimilarityOracle) ([]core.Cluster, error) {
	clusters := make([]core.Cluster, 0, set.Len())

	for _, g := range set.Items {
		joined := false
		for i := range clusters {
			same, err := compare(ctx, oracle, clusters[i].Representative, g.Text)
			if err != nil {
				return nil, err
			}
			if same {
				clusters[i].Members = append(clusters[i].Members, g.Index)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, core.Cluster{
				Representative:      g.Text,
				RepresentativeIndex: g.Index,
				Members:             []int{g.Index},
			})
		}
	}
	return clusters, nil
}

func (c *Clusterer) components(ctx context.Context, set core.GenerationSet, oracle core.SimilarityOracle) ([]core.Cluster, error) {
	n := set.Len()
	uf := newUnionFind(n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			same, err := compare(ctx, oracle, set.Items[i].Text, set.Items[j].Text)
			if err != nil {
				return nil, err
			}
			if same {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int]*core.Cluster)
	order := make([]int, 0)
	for pos, g := range set.Items {
		root := uf.find(pos)
		cl, ok := byRoot[root]
		if !ok {
			cl = &core.Cluster{Representative: g.Text, RepresentativeIndex: g.Index}
			byRoot[root] = cl
			order = append(order, root)
		}
		cl.Members = append(cl.Members, g.Index)
	}

	clusters := make([]core.Cluster, 0, len(order))
	for _, root := range order {
		clusters = append(clusters, *byRoot[root])
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Members[0] < clusters[j].Members[0]
	})
	return clusters, nil
}

func compare(ctx context.Context, oracle core.SimilarityOracle, a, b string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, core.OracleUnavailable(oracle.Name(), err)
	}
	same, err := oracle.Equivalent(ctx, a, b)
	if err != nil {
		return false, asOracleError(oracle, err)
	}
	return same, nil
}

func asOracleError(oracle core.SimilarityOracle, err error) error {
	if core.IsOracleUnavailable(err) {
		return err
	}
	return core.OracleUnavailable(oracle.Name(), err)
}

// unionFind is a disjoint-set forest with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller index as root so representatives are first-seen.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
