package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// PatternExtractor classifies text with the first matching regular expression.
// The variant is the first capture group (or the whole match when the
// pattern has no groups), passed through an optional normalizer.
type PatternExtractor struct {
	name      string
	category  string
	patterns  []*regexp.Regexp
	normalize func(string) string
}

// NewPatternExtractor compiles a pattern extractor.
func NewPatternExtractor(name, category string, patterns ...string) (*PatternExtractor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("extractor name required")
	}
	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("extractor %s: category required", name)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("extractor %s: at least one pattern required", name)
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("extractor %s: compiling %q: %w", name, p, err)
		}
		if re.NumSubexp() > 1 {
			return nil, fmt.Errorf("extractor %s: pattern %q has %d capture groups, want at most 1", name, p, re.NumSubexp())
		}
		compiled = append(compiled, re)
	}
	return &PatternExtractor{
		name:      name,
		category:  category,
		patterns:  compiled,
		normalize: normalizeToken,
	}, nil
}

func mustPattern(name, category string, normalize func(string) string, patterns ...string) *PatternExtractor {
	e, err := NewPatternExtractor(name, category, patterns...)
	if err != nil {
		panic(err)
	}
	if normalize != nil {
		e.normalize = normalize
	}
	return e
}

// Name implements core.Extractor.
func (e *PatternExtractor) Name() string { return e.name }

// Category implements core.Extractor.
func (e *PatternExtractor) Category() string { return e.category }

// Classify implements core.Extractor.
func (e *PatternExtractor) Classify(text string) (string, bool) {
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		if v := e.normalize(raw); v != "" {
			return v, true
		}
	}
	return "", false
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeCompact(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
}

func normalizeKebab(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	}), "-")
}

// FuncExtractor adapts a classification function to core.Extractor.
type FuncExtractor struct {
	name     string
	category string
	classify func(string) (string, bool)
}

// NewFuncExtractor wraps fn as an extractor.
func NewFuncExtractor(name, category string, fn func(string) (string, bool)) *FuncExtractor {
	return &FuncExtractor{name: name, category: category, classify: fn}
}

// Name implements core.Extractor.
func (e *FuncExtractor) Name() string { return e.name }

// Category implements core.Extractor.
func (e *FuncExtractor) Category() string { return e.category }

// Classify implements core.Extractor.
func (e *FuncExtractor) Classify(text string) (string, bool) { return e.classify(text) }

// DurationExtractor finds a duration assigned to one of its keys and renders
// it canonically, so "1h", "60m", "3600" and timedelta(hours=1) agree.
type DurationExtractor struct {
	name     string
	category string
	keyLine  *regexp.Regexp
	assign   *regexp.Regexp
}

var (
	reTimedelta  = regexp.MustCompile(`(?i)timedelta\(\s*(days|hours|minutes|seconds)\s*=\s*(\d+)`)
	reGoMulLeft  = regexp.MustCompile(`(\d+)\s*\*\s*time\.(Hour|Minute|Second|Millisecond)`)
	reGoMulRight = regexp.MustCompile(`time\.(Hour|Minute|Second|Millisecond)\s*\*\s*(\d+)`)
)

// NewDurationExtractor builds an extractor for durations assigned to keys
// matching keyPattern (a regular expression fragment without groups).
func NewDurationExtractor(name, category, keyPattern string) *DurationExtractor {
	return &DurationExtractor{
		name:     name,
		category: category,
		keyLine:  regexp.MustCompile(`(?i)` + keyPattern),
		assign: regexp.MustCompile(`(?i)(?:` + keyPattern + `)["']?\s*[:=]\s*["']?` +
			`(\d+(?:\.\d+)?\s*(?:ms|milliseconds?|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d)?)\b`),
	}
}

// Name implements core.Extractor.
func (e *DurationExtractor) Name() string { return e.name }

// Category implements core.Extractor.
func (e *DurationExtractor) Category() string { return e.category }

// Classify implements core.Extractor.
func (e *DurationExtractor) Classify(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !e.keyLine.MatchString(line) {
			continue
		}
		if m := e.assign.FindStringSubmatch(line); m != nil {
			if v, ok := canonicalDuration(m[1]); ok {
				return v, true
			}
		}
		if m := reTimedelta.FindStringSubmatch(line); m != nil {
			if v, ok := canonicalDuration(m[2] + m[1]); ok {
				return v, true
			}
		}
		if m := reGoMulLeft.FindStringSubmatch(line); m != nil {
			if v, ok := canonicalDuration(m[1] + goUnit(m[2])); ok {
				return v, true
			}
		}
		if m := reGoMulRight.FindStringSubmatch(line); m != nil {
			if v, ok := canonicalDuration(m[2] + goUnit(m[1])); ok {
				return v, true
			}
		}
	}
	return "", false
}

func goUnit(u string) string {
	switch u {
	case "Hour":
		return "h"
	case "Minute":
		return "m"
	case "Millisecond":
		return "ms"
	default:
		return "s"
	}
}

var reDurationParts = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)$`)

// canonicalDuration converts "90 minutes", "5400s" or "5400" (seconds) to the
// largest of h, m, s that represents the value exactly, e.g. "90m".
func canonicalDuration(raw string) (string, bool) {
	m := reDurationParts.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return "", false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}

	var ms float64
	switch unit := m[2]; {
	case unit == "ms" || strings.HasPrefix(unit, "milli"):
		ms = value
	case unit == "" || unit == "s" || strings.HasPrefix(unit, "sec"):
		ms = value * 1000
	case unit == "m" || strings.HasPrefix(unit, "min"):
		ms = value * 60 * 1000
	case unit == "h" || strings.HasPrefix(unit, "hour") || strings.HasPrefix(unit, "hr"):
		ms = value * 3600 * 1000
	case unit == "d" || strings.HasPrefix(unit, "day"):
		ms = value * 24 * 3600 * 1000
	default:
		return "", false
	}

	total := int64(ms)
	if total <= 0 || float64(total) != ms {
		return "", false
	}
	switch {
	case total%3_600_000 == 0:
		return strconv.FormatInt(total/3_600_000, 10) + "h", true
	case total%60_000 == 0:
		return strconv.FormatInt(total/60_000, 10) + "m", true
	case total%1000 == 0:
		return strconv.FormatInt(total/1000, 10) + "s", true
	default:
		return strconv.FormatInt(total, 10) + "ms", true
	}
}

var (
	reRaise      = regexp.MustCompile(`\b(?:raise|throw)\b|\bpanic\(`)
	reReturnErr  = regexp.MustCompile(`return\s+(?:[\w.]+,\s*)?(?:err\b|fmt\.Errorf|errors\.New|Err\()`)
	reSentinel   = regexp.MustCompile(`return\s+(?:None|null|nil|-1|false|undefined)\b`)
	reCodeMarker = regexp.MustCompile("(?m)^```|\\b(?:def|func|function|class|fn)\\s+\\w+")
	reEmptyGuard = regexp.MustCompile(`if\s+not\s+\w+\s*:|len\(\w+\)\s*==\s*0|\.length\s*===?\s*0|\.is_empty\(\)|\.isEmpty\(\)|if\s*\(?\s*!\s*\w+\s*\)|==\s*""|is\s+None|===?\s*null|==\s*nil`)
	reFenceLang  = regexp.MustCompile("(?m)^```\\s*([A-Za-z0-9+#_-]+)")
	reFuncName   = regexp.MustCompile(`\b(?:def|func|function|fn)\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)`)
)

// classifyErrorStrategy reports how the code signals failure: raising,
// returning an error value, or returning a sentinel. The most frequent style
// wins; ties prefer raise, then return-error.
func classifyErrorStrategy(text string) (string, bool) {
	counts := []struct {
		name string
		n    int
	}{
		{"raise", len(reRaise.FindAllStringIndex(text, -1))},
		{"return-error", len(reReturnErr.FindAllStringIndex(text, -1))},
		{"sentinel", len(reSentinel.FindAllStringIndex(text, -1))},
	}
	best := -1
	for i, c := range counts {
		if c.n > 0 && (best < 0 || c.n > counts[best].n) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return counts[best].name, true
}

// classifyEmptyInput reports whether code guards against empty input. Prose
// without code is not classified.
func classifyEmptyInput(text string) (string, bool) {
	if !reCodeMarker.MatchString(text) {
		return "", false
	}
	if reEmptyGuard.MatchString(text) {
		return "guarded", true
	}
	return "unguarded", true
}

var languageAliases = map[string]string{
	"py":         "python",
	"python3":    "python",
	"js":         "javascript",
	"node":       "javascript",
	"ts":         "typescript",
	"golang":     "go",
	"rs":         "rust",
	"c++":        "cpp",
	"cs":         "csharp",
	"c#":         "csharp",
	"sh":         "bash",
	"shell":      "bash",
	"kt":         "kotlin",
	"rb":         "ruby",
	"typescript": "typescript",
}

func classifyLanguage(text string) (string, bool) {
	m := reFenceLang.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	lang := strings.ToLower(m[1])
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	return lang, true
}

// classifyNamingStyle inspects the first declared function name.
func classifyNamingStyle(text string) (string, bool) {
	m := reFuncName.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := strings.Trim(m[1], "_")
	hasUnderscore := strings.Contains(name, "_")
	hasUpper := strings.IndexFunc(name, unicode.IsUpper) >= 0
	switch {
	case name == "":
		return "", false
	case hasUnderscore && !hasUpper:
		return "snake_case", true
	case !hasUnderscore && hasUpper && unicode.IsUpper(rune(name[0])):
		return "PascalCase", true
	case !hasUnderscore && hasUpper:
		return "camelCase", true
	default:
		// single lowercase word: consistent with every style
		return "", false
	}
}

func normalizeSearch(s string) string {
	s = normalizeKebab(s)
	switch s {
	case "bfs":
		return "breadth-first"
	case "dfs":
		return "depth-first"
	case "memoisation":
		return "memoization"
	}
	return s
}

func normalizePartitioning(s string) string {
	s = normalizeKebab(s)
	switch {
	case strings.HasPrefix(s, "jump"):
		return "jump-hash"
	case s == "highest-random-weight":
		return "rendezvous"
	case s == "virtual-nodes" || s == "hash-ring":
		return "ring"
	}
	return s
}

func normalizeJWT(s string) string {
	up := strings.ToUpper(s)
	if up == "EDDSA" {
		return "EdDSA"
	}
	return up
}

// SetClassifier is implemented by extractors that classify a generation
// relative to the rest of the set. ClassifySet returns one variant per text,
// "" for texts it cannot classify.
type SetClassifier interface {
	ClassifySet(texts []string) []string
}

// Length buckets reported by LengthExtractor.
const (
	LengthShort   = "short"
	LengthTypical = "typical"
	LengthLong    = "long"
)

// LengthExtractor buckets generations by length against the set median. A
// text is long when it exceeds ratio times the median and short when the
// median exceeds ratio times the text; both also need an absolute gap of at
// least minGap runes so small answers do not flap between buckets.
type LengthExtractor struct {
	name     string
	category string
	ratio    float64
	minGap   int
}

// NewLengthExtractor creates a structural length extractor. A ratio below 1
// is treated as 1.
func NewLengthExtractor(name, category string, ratio float64, minGap int) *LengthExtractor {
	return &LengthExtractor{
		name:     name,
		category: category,
		ratio:    math.Max(ratio, 1),
		minGap:   max(minGap, 0),
	}
}

func (e *LengthExtractor) Name() string     { return e.name }
func (e *LengthExtractor) Category() string { return e.category }

// Classify cannot place a text without the rest of the set.
func (e *LengthExtractor) Classify(string) (string, bool) { return "", false }

// ClassifySet implements SetClassifier. The median is the lower median of the
// trimmed rune counts.
func (e *LengthExtractor) ClassifySet(texts []string) []string {
	out := make([]string, len(texts))
	if len(texts) == 0 {
		return out
	}
	lengths := make([]int, len(texts))
	for i, t := range texts {
		lengths[i] = utf8.RuneCountInString(strings.TrimSpace(t))
	}
	sorted := append([]int(nil), lengths...)
	sort.Ints(sorted)
	median := sorted[(len(sorted)-1)/2]

	for i, l := range lengths {
		switch {
		case float64(l) > e.ratio*float64(median) && l-median >= e.minGap:
			out[i] = LengthLong
		case float64(median) > e.ratio*float64(l) && median-l >= e.minGap:
			out[i] = LengthShort
		default:
			out[i] = LengthTypical
		}
	}
	return out
}

// DefaultExtractors returns the built-in extractors in a stable order.
func DefaultExtractors() []core.Extractor {
	return []core.Extractor{
		NewDurationExtractor("token_expiration", core.CategorySecurityParameter,
			`\b(?:access_?token_?ttl|token_?expir\w*|expires_?in|expiresIn|expir(?:ation|y)(?:_?time)?|exp_?delta\w*|max_?age|ttl)\b`),
		mustPattern("hash_algorithm", core.CategorySecurityParameter, normalizeCompact,
			`(?i)\b(argon2(?:id|i|d)?|bcrypt|scrypt|pbkdf2|sha-?512|sha-?256|sha-?1|md5)\b`),
		mustPattern("jwt_algorithm", core.CategorySecurityParameter, normalizeJWT,
			`(?i)\b(HS256|HS384|HS512|RS256|RS384|RS512|ES256|ES384|ES512|PS256|PS384|PS512|EdDSA)\b`),
		mustPattern("key_size", core.CategorySecurityParameter, nil,
			`(?i)\b(?:key_?size|key_?length|modulus_?bits|bits)\b["']?\s*[:=]\s*(\d{3,5})\b`,
			`GenerateKey\([^,()]*,\s*(\d{3,5})\)`),
		mustPattern("sorting_algorithm", core.CategoryAlgorithmChoice, normalizeCompact,
			`(?i)\b(quick\s?sort|merge\s?sort|heap\s?sort|insertion\s?sort|selection\s?sort|bubble\s?sort|radix\s?sort|counting\s?sort|tim\s?sort|shell\s?sort)\b`),
		mustPattern("rate_limit_algorithm", core.CategoryAlgorithmChoice, normalizeKebab,
			`(?i)\b(token[\s_-]bucket|leaky[\s_-]bucket|sliding[\s_-](?:window|log)|fixed[\s_-]window)\b`),
		mustPattern("search_strategy", core.CategoryAlgorithmChoice, normalizeSearch,
			`(?i)\b(binary\s+search|linear\s+search|breadth[\s-]first|depth[\s-]first|bfs|dfs|dijkstra|dynamic\s+programming|memoi[sz]ation|backtracking)\b`),
		mustPattern("partitioning_scheme", core.CategoryAlgorithmChoice, normalizePartitioning,
			`(?i)\b(jump\s+(?:consistent\s+)?hash|rendezvous|highest\s+random\s+weight|maglev|virtual\s+nodes|hash\s+ring)\b`),
		NewFuncExtractor("error_strategy", core.CategoryEdgeCase, classifyErrorStrategy),
		NewFuncExtractor("empty_input", core.CategoryEdgeCase, classifyEmptyInput),
		NewDurationExtractor("timeout", core.CategoryConfigParameter,
			`\b(?:read_?|write_?|request_?|connect(?:ion)?_?|idle_?)?timeout\b`),
		NewFuncExtractor("language", core.CategoryStyle, classifyLanguage),
		NewFuncExtractor("naming_style", core.CategoryStyle, classifyNamingStyle),
		NewLengthExtractor("response_length", core.CategoryStructure, 2, 80),
	}
}

// ExtractorCategories returns the sorted distinct categories of extractors.
func ExtractorCategories(extractors []core.Extractor) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, e := range extractors {
		if !seen[e.Category()] {
			seen[e.Category()] = true
			out = append(out, e.Category())
		}
	}
	sort.Strings(out)
	return out
}

// FilterExtractors drops extractors whose name is listed in disabled.
func FilterExtractors(extractors []core.Extractor, disabled []string) []core.Extractor {
	if len(disabled) == 0 {
		return extractors
	}
	skip := toSet(disabled)
	out := make([]core.Extractor, 0, len(extractors))
	for _, e := range extractors {
		if !skip[e.Name()] {
			out = append(out, e)
		}
	}
	return out
}
