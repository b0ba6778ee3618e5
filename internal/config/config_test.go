package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Limits.UsernameMaxLen != 32 {
		t.Fatalf("unexpected username limit: %d", cfg.Limits.UsernameMaxLen)
	}
	if len(cfg.Categories.Catalog) != 4 {
		t.Fatalf("expected four categories, got %d", len(cfg.Categories.Catalog))
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated template does not parse: %v", err)
	}
	if !cfg.Auth.AllowLegacyActorHeader {
		t.Fatalf("template should allow the legacy actor header by default")
	}
	if cfg.Mail.Enabled() {
		t.Fatalf("mail must be off until host, from and to are set")
	}
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	yaml := strings.Replace(GenerateDefault(), "    meals:", "    pizza:", 1)
	if _, err := FromYAML([]byte(yaml)); err == nil {
		t.Fatalf("expected unknown category to fail validation")
	}
}

func TestValidateRequiresWebhookURL(t *testing.T) {
	yaml := GenerateDefault() + `
webhooks:
  - secret: s3cret
`
	yaml = strings.Replace(yaml, "webhooks: []\n", "", 1)
	if _, err := FromYAML([]byte(yaml)); err == nil {
		t.Fatalf("expected webhook without url to fail validation")
	}
}
