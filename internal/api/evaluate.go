package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// EvaluateRequest scores caller-supplied generations.
type EvaluateRequest struct {
	Prompt      string   `json:"prompt"`
	Generations []string `json:"generations"`
	Model       string   `json:"model,omitempty"`
	// Policy overrides fields of the server policy for this request.
	Policy json.RawMessage `json:"policy,omitempty"`
}

// ReviewRequest samples a prompt through the provider and scores the result.
type ReviewRequest struct {
	Prompt       string          `json:"prompt"`
	Samples      int             `json:"samples,omitempty"`
	Model        string          `json:"model,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Temperature  *float32        `json:"temperature,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Policy       json.RawMessage `json:"policy,omitempty"`
}

// policyOverlay is the partial policy a request may carry. Absent fields
// keep the server value; present slices and maps replace it.
type policyOverlay struct {
	MinConfidence     *float64                 `json:"min_confidence"`
	NumSamples        *int                     `json:"num_samples"`
	HardReject        []core.HardRejectRule    `json:"hard_reject"`
	SeverityOverrides map[string]core.Severity `json:"severity_overrides"`
}

func (o policyOverlay) apply(base core.PolicyConfig) core.PolicyConfig {
	out := base.Clone()
	if o.MinConfidence != nil {
		out.MinConfidence = *o.MinConfidence
	}
	if o.NumSamples != nil {
		out.NumSamples = *o.NumSamples
	}
	if o.HardReject != nil {
		out.HardReject = o.HardReject
	}
	if o.SeverityOverrides != nil {
		out.SeverityOverrides = o.SeverityOverrides
	}
	return out
}

// mergePolicy overlays a partial JSON policy onto the server policy.
func (s *Server) mergePolicy(raw json.RawMessage) (*core.PolicyConfig, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var overlay policyOverlay
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&overlay); err != nil {
		return nil, core.InvalidPolicy(fmt.Sprintf("decoding policy: %v", err))
	}
	p := overlay.apply(s.guard.Policy())
	return &p, nil
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	policy, err := s.mergePolicy(req.Policy)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	eval, err := s.guard.Evaluate(r.Context(), req.Prompt, req.Generations, policy, req.Model)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eval)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	policy, err := s.mergePolicy(req.Policy)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if err := service.ValidatePrompt(req.Prompt); err != nil {
		s.respondDomainError(w, err)
		return
	}

	eval, err := s.guard.Review(r.Context(), req.Prompt, service.ReviewOptions{
		Samples:      req.Samples,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Policy:       policy,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eval)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.guard.Policy())
}
