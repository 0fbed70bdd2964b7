package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("expected /v0 base path, got %q", cfg.Server.BasePath)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Fatalf("expected 10s timeout, got %s", cfg.Timeout())
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
client:
  base_url: http://plans.internal:9000
  project: apollo
webhooks:
  - url: http://hooks.internal/plan
    events: [plan.reordered]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Client.Project != "apollo" || cfg.Client.BaseURL != "http://plans.internal:9000" {
		t.Fatalf("client section not applied: %+v", cfg.Client)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("server defaults lost: %+v", cfg.Server)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "plan.reordered" {
		t.Fatalf("webhooks not parsed: %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"relative base url": "client:\n  base_url: plans.internal\n",
		"base path":         "server:\n  base_path: v0\n",
		"hook without url":  "webhooks:\n  - events: [plan.reordered]\n",
		"negative timeout":  "client:\n  timeout_seconds: -1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Client.BaseURL == "" {
		t.Fatalf("expected defaults when file is missing")
	}
	if err := os.WriteFile(filepath.Join(dir, "planline.yml"), []byte("client:\n  project: zeus\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.Project != "zeus" {
		t.Fatalf("expected project zeus, got %q", cfg.Client.Project)
	}
}
