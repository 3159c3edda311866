package domain

import (
	"regexp"
	"strings"
)

// The normalization rules below feed idempotency key derivation and
// duplicate matching. They must stay bit-stable: any change silently
// re-keys every future submission against the existing corpus.

var (
	emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	e164Shape  = regexp.MustCompile(`^\+[1-9]\d{7,15}$`)
)

// NormalizeEmail lowercases and trims the address. Values that do not
// match a liberal mailbox shape normalize to nil rather than error.
func NormalizeEmail(raw string) *string {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" || !emailShape.MatchString(e) {
		return nil
	}
	return &e
}

// NormalizePhone keeps a well-formed E.164 number verbatim; anything
// else is reduced to its digits. Fewer than 7 digits carries too little
// signal and normalizes to nil.
func NormalizePhone(raw string) *string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return nil
	}
	if e164Shape.MatchString(p) {
		return &p
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p)
	if len(digits) < 7 {
		return nil
	}
	return &digits
}

// Deref returns the value of an optional string, or "" when absent.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
