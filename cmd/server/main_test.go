package main

import (
	"strings"
	"testing"

	"bakerypos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigNamesPrefixedKey(t *testing.T) {
	err := validateSecurityConfig(config.Config{})
	if err == nil || !strings.Contains(err.Error(), "POS_AUTH_SECRET") {
		t.Fatalf("expected error naming POS_AUTH_SECRET, got %v", err)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
