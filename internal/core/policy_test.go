package core

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  PolicyConfig
		wantErr string
	}{
		{name: "default", policy: DefaultPolicy()},
		{name: "zero threshold", policy: PolicyConfig{MinConfidence: 0}},
		{name: "full threshold", policy: PolicyConfig{MinConfidence: 1}},
		{name: "negative threshold", policy: PolicyConfig{MinConfidence: -0.1}, wantErr: "outside [0,1]"},
		{name: "threshold above one", policy: PolicyConfig{MinConfidence: 1.5}, wantErr: "outside [0,1]"},
		{name: "NaN threshold", policy: PolicyConfig{MinConfidence: math.NaN()}, wantErr: "outside [0,1]"},
		{name: "negative samples", policy: PolicyConfig{NumSamples: -1}, wantErr: "must not be negative"},
		{
			name: "known rule",
			policy: PolicyConfig{HardReject: []HardRejectRule{
				{Category: CategorySecurityParameter, Severity: SeverityHigh},
			}},
		},
		{
			name: "wildcard rule",
			policy: PolicyConfig{HardReject: []HardRejectRule{
				{Category: CategoryAny, Severity: SeverityHigh},
			}},
		},
		{
			name: "unknown rule category",
			policy: PolicyConfig{HardReject: []HardRejectRule{
				{Category: "security-paramter", Severity: SeverityHigh},
			}},
			wantErr: `did you mean "security-parameter"`,
		},
		{
			name: "rule without severity",
			policy: PolicyConfig{HardReject: []HardRejectRule{
				{Category: CategoryStyle},
			}},
			wantErr: "invalid severity",
		},
		{
			name:    "unknown override",
			policy:  PolicyConfig{SeverityOverrides: map[string]Severity{"performance": SeverityHigh}},
			wantErr: `unknown category "performance"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate(Categories)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !IsInvalidPolicy(err) {
				t.Fatalf("expected InvalidPolicyConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestHardRejectRule_Matches(t *testing.T) {
	t.Parallel()

	high := DivergencePoint{Category: CategorySecurityParameter, Severity: SeverityHigh}
	low := DivergencePoint{Category: CategoryStyle, Severity: SeverityLow}

	rule := HardRejectRule{Category: CategorySecurityParameter, Severity: SeverityMedium}
	if !rule.Matches(high) {
		t.Errorf("rule should match a divergence above its severity")
	}
	if rule.Matches(low) {
		t.Errorf("rule should not match another category")
	}

	wildcard := HardRejectRule{Category: CategoryAny, Severity: SeverityHigh}
	if !wildcard.Matches(high) || wildcard.Matches(low) {
		t.Errorf("wildcard should match by severity only")
	}
}

func TestSeverityFor(t *testing.T) {
	t.Parallel()

	p := PolicyConfig{SeverityOverrides: map[string]Severity{CategoryStyle: SeverityMedium}}
	if got := p.SeverityFor(CategoryStyle); got != SeverityMedium {
		t.Errorf("override ignored: got %s", got)
	}
	if got := p.SeverityFor(CategorySecurityParameter); got != SeverityHigh {
		t.Errorf("security default = %s, want high", got)
	}
	if got := p.SeverityFor("custom"); got != SeverityMedium {
		t.Errorf("unknown category default = %s, want medium", got)
	}
}

func TestPolicyConfig_Clone(t *testing.T) {
	t.Parallel()

	p := PolicyConfig{
		MinConfidence:     0.7,
		HardReject:        []HardRejectRule{{Category: CategorySecurityParameter, Severity: SeverityHigh}},
		SeverityOverrides: map[string]Severity{CategoryStyle: SeverityMedium},
	}
	c := p.Clone()
	c.HardReject[0].Category = CategoryStyle
	c.SeverityOverrides[CategoryStyle] = SeverityLow

	if p.HardReject[0].Category != CategorySecurityParameter {
		t.Error("Clone() shares the hard-reject slice")
	}
	if p.SeverityOverrides[CategoryStyle] != SeverityMedium {
		t.Error("Clone() shares the severity overrides")
	}
	if empty := (PolicyConfig{}).Clone(); empty.HardReject != nil || empty.SeverityOverrides != nil {
		t.Errorf("Clone() of an empty policy = %+v", empty)
	}
}

func TestSeverityText(t *testing.T) {
	t.Parallel()

	for _, s := range Severities {
		parsed, err := ParseSeverity(strings.ToUpper(s.String()))
		if err != nil || parsed != s {
			t.Errorf("ParseSeverity(%s) = %v, %v", s, parsed, err)
		}
	}
	if _, err := ParseSeverity("critical"); err == nil {
		t.Errorf("expected error for unknown severity")
	}
	if _, err := Severity(0).MarshalText(); err == nil {
		t.Errorf("expected error marshaling zero severity")
	}
}

func TestDecisionJSONShape(t *testing.T) {
	t.Parallel()

	d := Decision{
		Passed:          false,
		ConfidenceScore: 0.42,
		Reason:          "Output confidence 0.4200 is below required threshold 0.70",
		Divergences: []DivergencePoint{{
			Category: CategorySecurityParameter,
			Severity: SeverityHigh,
			Aspect:   "token_expiration",
			Variants: map[string]int{"1h": 3, "24h": 2},
		}},
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"passed":false,"confidence_score":0.42,"reason":"Output confidence 0.4200 is below required threshold 0.70",` +
		`"divergences":[{"category":"security-parameter","severity":"high","aspect":"token_expiration","variants":{"1h":3,"24h":2}}]}`
	if string(data) != want {
		t.Fatalf("Marshal() =\n%s\nwant\n%s", data, want)
	}

	var back Decision
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	again, err := json.Marshal(back)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(again) != string(data) {
		t.Fatalf("round trip changed the report:\n%s\n%s", data, again)
	}
}

func TestDecisionJSON_PassedOmitsReason(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Decision{Passed: true, ConfidenceScore: 1, Divergences: []DivergencePoint{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"passed":true,"confidence_score":1,"divergences":[]}` {
		t.Fatalf("unexpected JSON: %s", data)
	}
}

func TestDivergenceSortedVariants(t *testing.T) {
	t.Parallel()

	d := DivergencePoint{Variants: map[string]int{"b": 2, "a": 2, "c": 1}}
	got := strings.Join(d.SortedVariants(), ",")
	if got != "a,b,c" {
		t.Errorf("SortedVariants() = %s", got)
	}
	if d.Total() != 5 {
		t.Errorf("Total() = %d", d.Total())
	}
	if d.VariantSummary() != `"a" x2, "b" x2, "c" x1` {
		t.Errorf("VariantSummary() = %s", d.VariantSummary())
	}
}

func TestGenerationSetSanitize(t *testing.T) {
	t.Parallel()

	set := NewGenerationSet("p", []string{"ok", "", "   \n", "also ok", "bad\x00text", string([]byte{0xff, 0xfe})})
	clean, warnings := set.Sanitize()

	if clean.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", clean.Len())
	}
	if clean.Items[1].Index != 3 {
		t.Errorf("original index not preserved: %d", clean.Items[1].Index)
	}
	if len(warnings) != 4 {
		t.Fatalf("warnings = %d, want 4", len(warnings))
	}
	for _, w := range warnings {
		if w.Code != CodeMalformedGeneration {
			t.Errorf("unexpected warning code %s", w.Code)
		}
	}
	if set.Len() != 6 {
		t.Errorf("Sanitize must not mutate the input set")
	}
}
