// Package validation evaluates admitted leads against their offer's
// validation policy: a versioned JSONB rule document, parsed per call
// and applied in document order. Rules are data, never code.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CodePolicyNotFound marks the fatal misconfiguration of an offer
// without an active validation policy.
const CodePolicyNotFound = "validation_policy_not_found"

// Policy is one active validation policy row.
type Policy struct {
	ID      int64
	Name    string
	Version int
	Rules   json.RawMessage
}

type fieldPattern struct {
	Field   string
	Pattern string
}

type fieldValues struct {
	Field  string
	Values []string
}

// ruleSet is the parsed rule document. Slices preserve the order the
// document lists fields in, so evaluation order is reproducible.
type ruleSet struct {
	Required []string
	Formats  []fieldPattern
	Allowed  []fieldValues
}

func parseRules(doc json.RawMessage) (ruleSet, error) {
	var raw struct {
		RequiredFields    []string            `json:"required_fields"`
		FormatValidations map[string]string   `json:"format_validations"`
		AllowedValues     map[string][]string `json:"allowed_values"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return ruleSet{}, fmt.Errorf("parse validation rules: %w", err)
	}

	var sections struct {
		FormatValidations json.RawMessage `json:"format_validations"`
		AllowedValues     json.RawMessage `json:"allowed_values"`
	}
	if err := json.Unmarshal(doc, &sections); err != nil {
		return ruleSet{}, fmt.Errorf("parse validation rules: %w", err)
	}

	rules := ruleSet{Required: raw.RequiredFields}

	formatOrder, err := orderedKeys(sections.FormatValidations)
	if err != nil {
		return ruleSet{}, fmt.Errorf("parse format_validations: %w", err)
	}
	for _, field := range formatOrder {
		rules.Formats = append(rules.Formats, fieldPattern{Field: field, Pattern: raw.FormatValidations[field]})
	}

	allowedOrder, err := orderedKeys(sections.AllowedValues)
	if err != nil {
		return ruleSet{}, fmt.Errorf("parse allowed_values: %w", err)
	}
	for _, field := range allowedOrder {
		rules.Allowed = append(rules.Allowed, fieldValues{Field: field, Values: raw.AllowedValues[field]})
	}

	return rules, nil
}

// orderedKeys walks a JSON object and returns its keys in document
// order. Go maps would shuffle them between calls.
func orderedKeys(doc json.RawMessage) ([]string, error) {
	if len(doc) == 0 || string(doc) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
