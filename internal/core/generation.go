package core

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Generation is one candidate output produced for a prompt.
type Generation struct {
	// Index is the position of the generation in the original set (0-based).
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Label renders the generation position the way reports refer to it.
func (g Generation) Label() string {
	return "solution #" + strconv.Itoa(g.Index+1)
}

// GenerationSet is the ordered batch of generations sampled for one prompt.
// Order is arrival order; it only matters for clustering tie-breaks and reports.
type GenerationSet struct {
	Prompt string       `json:"prompt"`
	Items  []Generation `json:"generations"`
}

// NewGenerationSet indexes raw texts in the order given.
func NewGenerationSet(prompt string, texts []string) GenerationSet {
	items := make([]Generation, len(texts))
	for i, t := range texts {
		items[i] = Generation{Index: i, Text: t}
	}
	return GenerationSet{Prompt: prompt, Items: items}
}

// Len returns the number of generations.
func (s GenerationSet) Len() int {
	return len(s.Items)
}

// Texts returns the generation texts in order.
func (s GenerationSet) Texts() []string {
	out := make([]string, len(s.Items))
	for i, g := range s.Items {
		out[i] = g.Text
	}
	return out
}

// ByIndex returns the generation with the given original index.
func (s GenerationSet) ByIndex(index int) (Generation, bool) {
	for _, g := range s.Items {
		if g.Index == index {
			return g, true
		}
	}
	return Generation{}, false
}

// Sanitize returns a copy of the set without malformed generations, together
// with one MalformedGeneration warning per excluded entry. Original indexes are
// preserved so reports still point at the right solution.
func (s GenerationSet) Sanitize() (GenerationSet, []*DomainError) {
	clean := GenerationSet{Prompt: s.Prompt, Items: make([]Generation, 0, len(s.Items))}
	var warnings []*DomainError
	for _, g := range s.Items {
		if why := malformedReason(g.Text); why != "" {
			warnings = append(warnings, MalformedGeneration(g.Index, why))
			continue
		}
		clean.Items = append(clean.Items, g)
	}
	return clean, warnings
}

func malformedReason(text string) string {
	switch {
	case text == "":
		return "empty text"
	case strings.TrimSpace(text) == "":
		return "whitespace only"
	case !utf8.ValidString(text):
		return "not valid UTF-8 text"
	case strings.ContainsRune(text, 0):
		return "contains NUL bytes"
	}
	return ""
}
