package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.test/hook")
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Source.Timeout != 8*time.Minute || cfg.Source.MaxAttempts != 3 {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Storage.Type != "json" || cfg.Storage.Retention != 100 || cfg.Selection.Candidates != 5 {
		t.Errorf("storage/selection = %+v / %+v", cfg.Storage, cfg.Selection)
	}
	if cfg.Alerts.DiscordWebhookURL != "https://discord.test/hook" {
		t.Errorf("discord webhook = %q", cfg.Alerts.DiscordWebhookURL)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
source:
  sort: new
  limit: 20
  browser: static
  wait_timeout: 3s
storage:
  type: sqlite
  sqlite_path: /tmp/molt.db
publisher:
  type: summary
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Source.Sort != "new" || cfg.Source.Limit != 20 || cfg.Source.Browser != "static" || cfg.Source.WaitTimeout != 3*time.Second {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLitePath != "/tmp/molt.db" || cfg.Publisher.Type != "summary" {
		t.Errorf("storage/publisher = %+v / %+v", cfg.Storage, cfg.Publisher)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Storage.Type = "mongo"
	cfg.Source.Browser = "firefox"
	cfg.Selection.Candidates = 0
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"storage.type", "source.browser", "selection.candidates"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
