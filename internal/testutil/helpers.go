package testutil

import (
	"math"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// AssertNoError fails if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertCode fails unless err carries the given domain error code.
func AssertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := core.GetCode(err); got != code {
		t.Fatalf("code = %q, want %q (err: %v)", got, code, err)
	}
}

// AssertEqual fails if got != want.
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertScore fails unless got is within 1e-9 of want.
func AssertScore(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %.12f, want %.12f", got, want)
	}
}

// AssertContains fails if s does not contain substr.
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("expected %q to contain %q", s, substr)
	}
}

// AssertLen fails if len(s) != want.
func AssertLen[T any](t *testing.T, s []T, want int) {
	t.Helper()
	if len(s) != want {
		t.Fatalf("len() = %d, want %d", len(s), want)
	}
}

// AssertTrue fails if b is false.
func AssertTrue(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Fatalf("expected true: %s", msg)
	}
}

// AssertFalse fails if b is true.
func AssertFalse(t *testing.T, b bool, msg string) {
	t.Helper()
	if b {
		t.Fatalf("expected false: %s", msg)
	}
}

// AssertPartition fails unless clusters cover indexes 0..n-1 exactly once
// and every cluster is non-empty.
func AssertPartition(t *testing.T, clusters []core.Cluster, n int) {
	t.Helper()
	seen := make([]bool, n)
	for ci, c := range clusters {
		if c.Size() == 0 {
			t.Fatalf("cluster %d is empty", ci)
		}
		for _, idx := range c.Members {
			if idx < 0 || idx >= n {
				t.Fatalf("cluster %d holds index %d outside [0,%d)", ci, idx, n)
			}
			if seen[idx] {
				t.Fatalf("index %d appears in more than one cluster", idx)
			}
			seen[idx] = true
		}
	}
	for idx, ok := range seen {
		if !ok {
			t.Fatalf("index %d is in no cluster", idx)
		}
	}
}
