// Package dedupe detects duplicate submissions within a policy-defined
// window, scoped to the lead's offer. The policy is a structured JSONB
// document on the offer's validation policy, never executable rules.
package dedupe

import (
	"encoding/json"
	"fmt"

	"leadgen_backend/platform/apperr"
)

// Duplicate actions. Reject stops the pipeline for the new lead; flag
// and accept record the linkage and let downstream stages continue.
const (
	ActionReject = "reject"
	ActionFlag   = "flag"
	ActionAccept = "accept"
)

// Stable error codes for malformed policies.
const (
	CodeInvalidWindowHours = "invalid_window_hours"
	CodeInvalidPolicyScope = "invalid_policy_scope"
)

const maxWindowHours = 24 * 365

// Policy is the duplicate_detection document of a validation policy.
type Policy struct {
	Enabled         bool     `json:"enabled"`
	WindowHours     int      `json:"window_hours"`
	Scope           string   `json:"scope"`
	Keys            []string `json:"keys"`
	MatchMode       string   `json:"match_mode"`
	ExcludeStatuses []string `json:"exclude_statuses"`
	IncludeSources  string   `json:"include_sources"`
	Action          string   `json:"action"`
	ReasonCode      string   `json:"reason_code"`
	MinFields       []string `json:"min_fields"`
}

// ParsePolicy decodes a duplicate_detection document, filling defaults
// for absent fields. A nil document parses to a disabled policy.
func ParsePolicy(doc []byte) (Policy, error) {
	policy := Policy{
		WindowHours:     24,
		Scope:           "offer",
		Keys:            []string{"phone", "email"},
		MatchMode:       "any",
		ExcludeStatuses: []string{"rejected"},
		IncludeSources:  "any",
		Action:          ActionReject,
		ReasonCode:      "duplicate_lead",
	}
	if len(doc) == 0 || string(doc) == "null" {
		return Policy{}, nil
	}
	if err := json.Unmarshal(doc, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse duplicate policy: %w", err)
	}
	return policy, nil
}

// validate checks the fields an enabled policy must carry. Called only
// when the policy is enabled; a disabled document is never inspected.
func (p Policy) validate() error {
	if p.Scope != "offer" {
		return apperr.Internal("duplicate detection scope must be 'offer'").WithCode(CodeInvalidPolicyScope)
	}
	if p.WindowHours <= 0 || p.WindowHours > maxWindowHours {
		return apperr.Internal(fmt.Sprintf("window_hours must be within (0, %d]", maxWindowHours)).WithCode(CodeInvalidWindowHours)
	}
	return nil
}

func (p Policy) keyEnabled(key string) bool {
	for _, k := range p.Keys {
		if k == key {
			return true
		}
	}
	return false
}
