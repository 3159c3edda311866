package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"leadgen_backend/platform/apperr"
)

// Stable error codes for idempotency key handling.
const (
	CodeInvalidIdempotencyKey = "invalid_idempotency_key_format"
	CodeDerivationFailed      = "idempotency_derivation_failed"
)

var clientKeyShape = regexp.MustCompile(`^[A-Za-z0-9._:-]{16,128}$`)

// ValidateClientKey checks a caller-supplied idempotency key.
func ValidateClientKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if !clientKeyShape.MatchString(trimmed) {
		return "", apperr.Validation("idempotency key must be 16-128 characters of [A-Za-z0-9._:-]").
			WithCode(CodeInvalidIdempotencyKey)
	}
	return trimmed, nil
}

// DeriveInput is the ordered tuple a content-derived idempotency key is
// computed over.
type DeriveInput struct {
	SourceID    int64
	Name        string
	Email       string
	Phone       string
	CountryCode string
	PostalCode  string
	Message     string
}

// DeriveKey computes the content hash used when the caller supplies no
// idempotency key: SHA-256 hex over the newline-joined normalized tuple.
// Identical logical submissions under the same source derive the same
// key; the source id is part of the tuple, so the same contact through
// two sources yields two keys. A submission where none of email, phone,
// or postal code survives normalization carries too little signal to
// key on and is refused.
func DeriveKey(in DeriveInput) (string, error) {
	email := Deref(NormalizeEmail(in.Email))
	phone := Deref(NormalizePhone(in.Phone))
	postal := strings.ToUpper(strings.TrimSpace(in.PostalCode))
	if email == "" && phone == "" && postal == "" {
		return "", apperr.Validation("submission has no email, phone, or postal code to derive an idempotency key from").
			WithCode(CodeDerivationFailed)
	}

	parts := []string{
		strconv.FormatInt(in.SourceID, 10),
		strings.TrimSpace(in.Name),
		email,
		phone,
		strings.ToUpper(strings.TrimSpace(in.CountryCode)),
		postal,
		strings.TrimSpace(in.Message),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:]), nil
}
