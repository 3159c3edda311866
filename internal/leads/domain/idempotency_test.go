package domain

import (
	"strings"
	"testing"

	"leadgen_backend/platform/apperr"
)

func TestValidateClientKey(t *testing.T) {
	key, err := ValidateClientKey("  order-2024.08:retry-001  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "order-2024.08:retry-001" {
		t.Fatalf("expected trimmed key, got %q", key)
	}
}

func TestValidateClientKeyRejectsBadShapes(t *testing.T) {
	cases := []string{
		"short",
		"has spaces in the middle!",
		"bad/character-aaaaaaaa",
		strings.Repeat("a", 129),
	}
	for _, in := range cases {
		_, err := ValidateClientKey(in)
		if code := apperr.CodeOf(err); code != CodeInvalidIdempotencyKey {
			t.Fatalf("key %q: expected code %q, got %q", in, CodeInvalidIdempotencyKey, code)
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	in := DeriveInput{
		SourceID:    12,
		Name:        "  Jane Roe ",
		Email:       "Jane.Roe@Example.com",
		Phone:       "(512) 555-0123",
		CountryCode: "us",
		PostalCode:  "78701",
		Message:     "need a quote",
	}

	first, err := DeriveKey(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DeriveKey(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("derivation not deterministic: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}

func TestDeriveKeyNormalizesBeforeHashing(t *testing.T) {
	a, err := DeriveKey(DeriveInput{SourceID: 1, Name: "Jane", Email: "JANE@EXAMPLE.COM", CountryCode: "us", PostalCode: "78701"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := DeriveKey(DeriveInput{SourceID: 1, Name: "  Jane  ", Email: "jane@example.com", CountryCode: "US", PostalCode: " 78701 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("normalization-equivalent inputs derived different keys")
	}
}

func TestDeriveKeySourcePerturbsKey(t *testing.T) {
	base := DeriveInput{Name: "Jane", Email: "jane@example.com", PostalCode: "78701"}

	a := base
	a.SourceID = 1
	b := base
	b.SourceID = 2

	keyA, err := DeriveKey(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keyB, err := DeriveKey(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keyA == keyB {
		t.Fatalf("source id did not perturb the derived key")
	}
}

func TestDeriveKeyRequiresContactSignal(t *testing.T) {
	_, err := DeriveKey(DeriveInput{
		SourceID: 3,
		Name:     "Jane Roe",
		Email:    "not-an-email",
		Phone:    "123",
		Message:  "call me",
	})
	if code := apperr.CodeOf(err); code != CodeDerivationFailed {
		t.Fatalf("expected code %q, got %q", CodeDerivationFailed, code)
	}
}

func TestDeriveKeyPostalAloneSuffices(t *testing.T) {
	key, err := DeriveKey(DeriveInput{SourceID: 4, PostalCode: "1012 AB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == "" {
		t.Fatalf("expected a derived key")
	}
}
