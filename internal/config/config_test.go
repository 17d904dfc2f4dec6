package config

import (
	"testing"

	"github.com/agentworkforce/erpsync/internal/engine"
)

func validConfig() *Config {
	return &Config{
		Cloud:          Endpoint{BaseURL: "https://cloud.example.com"},
		Local:          Endpoint{BaseURL: "https://local.example.com"},
		Doctypes:       []Doctype{{Name: "Customer"}},
		ConflictPolicy: string(engine.PolicyLatestTimestamp),
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected a well-formed config to validate, got %v", err)
	}
}

func TestValidateRequiresCloudBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Cloud.BaseURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected missing cloud.base_url to fail validation")
	}
}

func TestValidateRequiresLocalBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Local.BaseURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected missing local.base_url to fail validation")
	}
}

func TestValidateRequiresAtLeastOneDoctype(t *testing.T) {
	cfg := validConfig()
	cfg.Doctypes = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an empty doctypes list to fail validation")
	}
}

func TestValidateRejectsUnknownConflictPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.ConflictPolicy = "whatever_first"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an unknown conflict policy to fail validation")
	}
}

func TestValidateRejectsDuplicateDoctypeNames(t *testing.T) {
	cfg := validConfig()
	cfg.Doctypes = []Doctype{{Name: "Customer"}, {Name: "Customer"}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected a duplicated doctype name to fail validation")
	}
}

func TestValidateRejectsEmptyDoctypeName(t *testing.T) {
	cfg := validConfig()
	cfg.Doctypes = []Doctype{{Name: ""}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an empty doctype name to fail validation")
	}
}

func TestDoctypeConfigsAndNames(t *testing.T) {
	cfg := validConfig()
	cfg.Doctypes = append(cfg.Doctypes, Doctype{Name: "Invoice", ExcludeFields: []string{"internal_note"}})

	names := cfg.Names()
	if len(names) != 2 || names[0] != "Customer" || names[1] != "Invoice" {
		t.Fatalf("unexpected names order: %v", names)
	}

	configs := cfg.DoctypeConfigs()
	inv, ok := configs["Invoice"]
	if !ok {
		t.Fatalf("expected Invoice to be present in DoctypeConfigs")
	}
	if len(inv.ExcludeFields) != 1 || inv.ExcludeFields[0] != "internal_note" {
		t.Fatalf("unexpected exclude fields for Invoice: %v", inv.ExcludeFields)
	}
}
