// Copyright 2025 Certen Protocol
package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.XAPIVersion != "2.0.0" {
		t.Errorf("expected default xAPI version 2.0.0, got %q", cfg.XAPIVersion)
	}
	if cfg.StatementsPageLen != 50 {
		t.Errorf("expected default page length 50, got %d", cfg.StatementsPageLen)
	}
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("LRS_STATEMENTS_PAGE_LEN", "10")
	t.Setenv("LRS_XAPI_VERSION", "2.0.0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StatementsPageLen != 10 {
		t.Errorf("expected overridden page length 10, got %d", cfg.StatementsPageLen)
	}
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{
		XAPIVersion:          "2.0.0",
		StatementsPageLen:    50,
		StatementsPageMaxLen: 500,
		MaxIngestBodyBytes:   1024,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing DATABASE_URL")
	}
}

func TestValidateRejectsMaxLenBelowDefaultLen(t *testing.T) {
	cfg := &Config{
		DatabaseURL:          "postgres://localhost/lrs",
		XAPIVersion:          "2.0.0",
		StatementsPageLen:    100,
		StatementsPageMaxLen: 50,
		MaxIngestBodyBytes:   1024,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when page max len is below default len")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		DatabaseURL:          "postgres://localhost/lrs",
		XAPIVersion:          "2.0.0",
		StatementsPageLen:    50,
		StatementsPageMaxLen: 500,
		MaxIngestBodyBytes:   1024,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected well-formed config to validate, got %v", err)
	}
}
