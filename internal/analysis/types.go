// Package analysis submits soil readings to the Gemini API and parses the
// structured interpretation it returns.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SoilData is the input to an analysis: one probe reading plus optional
// context the backend can use.
type SoilData struct {
	Temperature float64 `json:"temperature_c"`
	Moisture    float64 `json:"moisture_pct"`
	PH          float64 `json:"ph"`

	// Optional enrichment; empty strings are omitted from the prompt.
	Location string `json:"location,omitempty"`
	Weather  string `json:"weather,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Plant is one growing recommendation.
type Plant struct {
	Name            string   `json:"name"`
	Reasoning       string   `json:"reasoning"`
	CareTips        []string `json:"care_tips"`
	IdealConditions []string `json:"ideal_conditions"`
}

// Amendment is one suggested soil treatment.
type Amendment struct {
	Name            string `json:"name"`
	Purpose         string `json:"purpose"`
	ApplicationRate string `json:"application_rate"`
}

// Result is the validated backend response.
type Result struct {
	Score          int         `json:"score"`
	Interpretation string      `json:"interpretation"`
	Plants         []Plant     `json:"plants"`
	Amendments     []Amendment `json:"amendments"`
}

// BackendError reports a failed or unusable backend response. Session state
// is never affected by one.
type BackendError struct {
	Op    string
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("analysis backend (%s): %v", e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// ParseResult decodes and validates a backend response. Models sometimes
// wrap JSON in markdown fences despite the response MIME type, so fences are
// stripped first.
func ParseResult(raw string) (*Result, error) {
	text := stripFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, &BackendError{Op: "parse", Cause: fmt.Errorf("empty response")}
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, &BackendError{Op: "parse", Cause: err}
	}
	if err := result.Validate(); err != nil {
		return nil, &BackendError{Op: "validate", Cause: err}
	}
	return &result, nil
}

// Validate enforces the response contract.
func (r *Result) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %d outside [0, 100]", r.Score)
	}
	if strings.TrimSpace(r.Interpretation) == "" {
		return fmt.Errorf("interpretation is empty")
	}
	if len(r.Plants) < 3 || len(r.Plants) > 5 {
		return fmt.Errorf("got %d plant recommendations, want 3 to 5", len(r.Plants))
	}
	for i, p := range r.Plants {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("plant %d has no name", i)
		}
	}
	for i, a := range r.Amendments {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("amendment %d has no name", i)
		}
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
