package main

import (
	"testing"
	"time"

	"gudangku/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestParseStartDate(t *testing.T) {
	if got := parseStartDate(""); !got.IsZero() {
		t.Fatalf("expected zero time for empty input, got %v", got)
	}
	if got := parseStartDate("not-a-date"); !got.IsZero() {
		t.Fatalf("expected zero time for invalid input, got %v", got)
	}
	want := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	if got := parseStartDate("2024-01-15"); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
