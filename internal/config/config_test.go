package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"timezone": "Europe/Berlin",
		"logging": {"level": "debug", "console": true},
		"store": {"driver": "sqlite", "path": "./t.db", "busy_timeout": "2s"},
		"poller": {"enabled": true, "interval": "30s", "overdue_digest_at": "09:00"},
		"notifier": {"enabled": true, "workers": 4, "rate_per_sec": 5}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.BusyTimeout != "2s" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Poller.Enabled || cfg.Poller.Interval != "30s" || cfg.Poller.OverdueDigestAt != "09:00" {
		t.Errorf("poller = %+v", cfg.Poller)
	}
	if cfg.Notifier == nil || cfg.Notifier.Workers != 4 {
		t.Errorf("notifier = %+v", cfg.Notifier)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", strings.Join([]string{
		"timezone: UTC",
		"logging:",
		"  level: info",
		"  console: true",
		"store:",
		"  driver: memory",
		"poller:",
		"  enabled: true",
		"  interval: 1m",
		"notifier:",
		"  enabled: true",
		"  telegram:",
		"    token: abc",
		"    chat_id: 42",
	}, "\n"))

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store.driver = %q", cfg.Store.Driver)
	}
	if cfg.Notifier == nil || cfg.Notifier.Telegram == nil || cfg.Notifier.Telegram.ChatID != 42 {
		t.Errorf("notifier = %+v", cfg.Notifier)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}, "banana": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}} {"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommits(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"timezone": "UTC"}`)
	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Error("Get should return the committed config")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	m.publish(&Config{Timezone: "UTC"})

	select {
	case got := <-ch:
		if got.Timezone != "UTC" {
			t.Errorf("timezone = %q", got.Timezone)
		}
	default:
		t.Fatal("expected a published config")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	m.publish(&Config{Timezone: "a"})
	m.publish(&Config{Timezone: "b"})

	got := <-ch
	if got.Timezone != "b" {
		t.Errorf("expected newest config, got %q", got.Timezone)
	}
	m.Unsubscribe(ch)
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"-1s", 0, true},
		{"fast", 0, true},
		{"10", 0, true},
	}
	for _, tt := range tests {
		d, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tt.raw, err)
			continue
		}
		if d != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tt.raw, d, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("f", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Errorf("empty: got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("f", "5s", time.Minute)
	if err != nil || d != 5*time.Second {
		t.Errorf("5s: got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("f", "bogus", time.Minute); err == nil {
		t.Error("bogus: expected error")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Timezone: "UTC",
		Logging:  LoggingConfig{Level: "info"},
		Store:    StoreConfig{Driver: "memory"},
		Poller:   PollerConfig{Enabled: true, Interval: "1m"},
	}
	newCfg := &Config{
		Timezone: "Europe/Berlin",
		Logging:  LoggingConfig{Level: "debug"},
		Store:    StoreConfig{Driver: "memory"},
		Poller:   PollerConfig{Enabled: true, Interval: "30s"},
		Notifier: &NotifierConfig{Enabled: true, Workers: 2},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"timezone": true, "logging": true, "poller": true, "notifier": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Errorf("unexpected changed section %q", c)
		}
	}

	if changed, _ := SummarizeChange(newCfg, newCfg); len(changed) != 0 {
		t.Errorf("identical configs should report no changes, got %v", changed)
	}
}

func TestSummarizeChangeNotifierSenders(t *testing.T) {
	t.Parallel()

	a := &Config{Notifier: &NotifierConfig{Enabled: true}}
	b := &Config{Notifier: &NotifierConfig{
		Enabled:  true,
		Telegram: &TelegramChannelConfig{Token: "x", ChatID: 1},
	}}
	changed, _ := SummarizeChange(a, b)
	if len(changed) != 1 || changed[0] != "notifier" {
		t.Errorf("changed = %v", changed)
	}
}
