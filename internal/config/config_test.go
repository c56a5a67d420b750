package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":8888"
  api_key: "secret"
mailer:
  user_id: "user"
  secret_key: "key"
cache:
  path: "/var/lib/formsync/cache.db"
forms:
  - id: contact
    name: Contact
    source_url: https://example.com/contact
    fields:
      - id: "3"
        label: Email
        type: email
      - id: "9"
        label: Newsletter
        type: mailer
        opt_in: true
        properties:
          email: "3"
    integration:
      enabled: true
      site: news.example.com
      mailing_list: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8888" {
		t.Errorf("ListenAddr = %s", cfg.Server.ListenAddr)
	}
	if cfg.Mailer.Realm != "PV" {
		t.Errorf("Realm default = %s, want PV", cfg.Mailer.Realm)
	}
	if cfg.Mailer.BaseURL != "https://rest.lianamailer.com" {
		t.Errorf("BaseURL default = %s", cfg.Mailer.BaseURL)
	}
	if cfg.Mailer.APIVersion != 1 {
		t.Errorf("APIVersion default = %d, want 1", cfg.Mailer.APIVersion)
	}
	if cfg.Mailer.Timeout != 10*time.Second {
		t.Errorf("Timeout default = %v", cfg.Mailer.Timeout)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache TTL default = %v", cfg.Cache.TTL)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Metrics.ListenAddr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics defaults = %s %s", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	f := cfg.FormByID("contact")
	if f == nil {
		t.Fatal("FormByID(contact) = nil")
	}
	if f.Integration.MailingList != 10 {
		t.Errorf("MailingList = %d, want 10", f.Integration.MailingList)
	}
	if cfg.FormByID("missing") != nil {
		t.Error("FormByID(missing) != nil")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "missing user id",
			content: "mailer:\n  secret_key: k\n",
			wantMsg: "mailer.user_id is required",
		},
		{
			name:    "missing secret key",
			content: "mailer:\n  user_id: u\n",
			wantMsg: "mailer.secret_key is required",
		},
		{
			name:    "bad api version",
			content: "mailer:\n  user_id: u\n  secret_key: k\n  api_version: 4\n",
			wantMsg: "api_version",
		},
		{
			name:    "bad log level",
			content: "mailer:\n  user_id: u\n  secret_key: k\nlogging:\n  level: loud\n",
			wantMsg: "logging.level",
		},
		{
			name: "duplicate form ids",
			content: "mailer:\n  user_id: u\n  secret_key: k\n" +
				"forms:\n  - id: a\n    fields: [{id: \"1\", type: text}]\n" +
				"  - id: a\n    fields: [{id: \"1\", type: text}]\n",
			wantMsg: "duplicate form id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() = nil error, want failure")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() = nil error for missing file")
	}
}
