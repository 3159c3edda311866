// Package classification maps an inbound submission to its attribution:
// the (source, offer, market, vertical) tuple every later pipeline stage
// keys on. Resolution is all-or-nothing; there is no partial attribution.
package classification

import (
	"regexp"
	"strings"

	"leadgen_backend/platform/apperr"
)

// Stable error codes surfaced to callers.
const (
	CodeInvalidSource    = "invalid_source"
	CodeInvalidSourceKey = "invalid_source_key"
	CodeUnmappedSource   = "unmapped_source"
	CodeAmbiguousMapping = "ambiguous_source_mapping"
)

// Attribution is the resolved classification of a submission.
type Attribution struct {
	SourceID   int64 `json:"source_id"`
	OfferID    int64 `json:"offer_id"`
	MarketID   int64 `json:"market_id"`
	VerticalID int64 `json:"vertical_id"`
}

// Input carries the classification identifiers of a submission.
// Exactly one of SourceID, SourceKey, or (Host, Path) is consulted,
// in that priority order.
type Input struct {
	SourceID  *int64
	SourceKey string
	Host      string
	Path      string
}

// HTTPCandidate is one host/path mapping candidate with its ranking key.
type HTTPCandidate struct {
	Attribution
	PrefixLen int
}

var sourceKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{1,127}$`)

// CanonicalizeSourceKey trims the key and enforces its shape.
func CanonicalizeSourceKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if !sourceKeyPattern.MatchString(trimmed) {
		return "", apperr.Validation("source key is malformed").WithCode(CodeInvalidSourceKey)
	}
	return trimmed, nil
}

// CanonicalizeHostname lowercases the host and strips any port.
// An empty result cannot map to a source.
func CanonicalizeHostname(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(h, ":"); i >= 0 {
		h = h[:i]
	}
	if h == "" {
		return "", apperr.Validation("no source mapping for host").WithCode(CodeUnmappedSource)
	}
	return h, nil
}

// CanonicalizePath normalizes the request path for prefix matching.
func CanonicalizePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
