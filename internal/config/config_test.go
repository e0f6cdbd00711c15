package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != DefaultServerAddress {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Agent.Mode != AgentModeScripted {
		t.Fatalf("expected scripted agent mode, got %q", cfg.Agent.Mode)
	}
	if cfg.BasicConfig.TokenTTL() != 24*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.BasicConfig.TokenTTL())
	}
	if _, ok := cfg.Databases["sqlite3"]; !ok {
		t.Fatalf("expected default sqlite3 database")
	}
}

func TestLoadResolvesRelativeSQLitePath(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite3": {"dsn": "site.db"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "site.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestLoadKeepsMemoryDSN(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite3": {"dsn": ":memory:"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != ":memory:" {
		t.Fatalf("memory dsn rewritten to %q", got)
	}
}

func TestLoadRejectsHTTPModeWithoutEndpoint(t *testing.T) {
	t.Setenv("AGENT_ENDPOINT", "")
	path := writeConfig(t, `{"agent": {"mode": "http"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for http mode without endpoint")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `{"agent": {"mode": "telepathy"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown agent mode")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_ENDPOINT", "http://127.0.0.1:9000/chat")
	t.Setenv("CONTACT_FORM_URL", "https://forms.example.com/submit")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := writeConfig(t, `{"providers": {"openai": {"model": "gpt-4o-mini"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.Mode != AgentModeHTTP || cfg.Agent.Endpoint != "http://127.0.0.1:9000/chat" {
		t.Fatalf("agent env override not applied: %+v", cfg.Agent)
	}
	if cfg.Contact.FormURL != "https://forms.example.com/submit" {
		t.Fatalf("contact env override not applied: %q", cfg.Contact.FormURL)
	}
	if cfg.Providers["openai"].APIKey != "sk-env" {
		t.Fatalf("provider key override not applied")
	}
}

func TestLoadModelModeNeedsProvider(t *testing.T) {
	path := writeConfig(t, `{"agent": {"mode": "model", "provider": "claude"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing provider")
	}
}
