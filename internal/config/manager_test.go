package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
registry:
  timezone: Asia/Kolkata
queue:
  max_attempts: 5
alerts:
  rate_per_sec: 2
storage:
  driver: file
  path: ./archive
`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Registry.Timezone != "Asia/Kolkata" {
		t.Fatalf("timezone = %q", cfg.Registry.Timezone)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("max_attempts = %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Alerts.RatePerSec != 2 {
		t.Fatalf("alerts = %+v", cfg.Alerts)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" || cfg.Storage.Path != "./archive" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.json", `{"logging":{"level":"warn","console":false},"queue":{"max_attempts":2}}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Queue.MaxAttempts != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseYMLExtension(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.yml", "logging:\n  level: trace\n  console: true\n")
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "trace" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.yaml", `
logging:
  level: info
  consoel: true
`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingDocument(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.json", `{"logging":{"console":true}} {"extra":1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing content")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCommitsAndGetReturns(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "config.yaml", "logging:\n  level: info\n  console: true\n")
	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestPublishKeepsNewestForSlowSubscriber(t *testing.T) {
	t.Parallel()

	m := NewManager("")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	old := Default()
	newest := Default()
	newest.Logging.Level = "debug"
	m.publish(old)
	m.publish(newest) // buffer full: oldest is dropped, newest delivered

	select {
	case got := <-ch:
		if got != newest {
			t.Fatal("subscriber should receive the newest config")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never notified")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationField("storage.busy_timeout", "5s")
	if err != nil || d != 5*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", "not-a-duration"); err == nil {
		t.Fatal("expected error")
	}
}
