package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ismaildakrory/immich-memories-notify/internal/window"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `
immich:
  url: http://immich:2283
  external_url: https://photos.example.com
ntfy:
  url: http://ntfy
users:
  - name: ismail
    immich_api_key: ${IMMICH_API_KEY_ISMAIL}
    ntfy_topic: ismail-memories
    ntfy_username: ismail
    ntfy_password: ${NTFY_PASSWORD_ISMAIL:-}
  - name: ranya
    immich_api_key: key-ranya
    ntfy_topic: ranya-memories
    enabled: false
settings:
  retry:
    max_attempts: 4
    delay_seconds: 2
  state_file: /data/state.json
  log_level: DEBUG
  memory_notifications: 2
  person_notifications: 2
  notification_windows:
    - { start: "09:00", end: "10:30" }
    - { start: "13:00", end: "14:00" }
messages:
  - "You have memories from {year}!"
person_messages:
  - "Remember this photo of {person_name}?"
`

func TestLoadExpandsAndDefaults(t *testing.T) {
	t.Setenv("IMMICH_API_KEY_ISMAIL", "secret-key")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Users[0].ImmichAPIKey != "secret-key" {
		t.Fatalf("api key = %q, want expanded env value", cfg.Users[0].ImmichAPIKey)
	}
	if cfg.Users[0].NtfyPassword != "" {
		t.Fatalf("password = %q, want empty default", cfg.Users[0].NtfyPassword)
	}
	if !cfg.Users[0].IsEnabled() {
		t.Fatal("user without enabled flag should default to enabled")
	}
	if cfg.Users[1].IsEnabled() {
		t.Fatal("explicitly disabled user reported enabled")
	}

	s := cfg.Settings
	if pol := s.RetryPolicy(); pol.MaxAttempts != 4 || pol.Delay != 2*time.Second {
		t.Fatalf("retry policy = %+v, want 4 attempts / 2s", pol)
	}
	if s.MemorySlots() != 2 || s.PersonSlots() != 2 {
		t.Fatalf("slots = %d/%d, want 2/2", s.MemorySlots(), s.PersonSlots())
	}
	// Omitted settings fall back to defaults.
	if s.FallbackSlots() != 3 || s.TopPersons() != 5 || s.ExcludeRecent() != 30 || s.GroupSizeMin() != 2 {
		t.Fatal("default counts not applied")
	}
	if !s.LocationEnabled() || !s.AlbumEnabled() || !s.VideoEmojiEnabled() || !s.GroupPhotosPreferred() {
		t.Fatal("boolean settings should default to true")
	}
	if s.StatePath() != "/data/state.json" {
		t.Fatalf("state path = %q", s.StatePath())
	}

	w, ok := s.SlotWindow(2)
	if !ok || w.Start != (window.TimeOfDay{Hour: 13}) {
		t.Fatalf("SlotWindow(2) = %v, %v", w, ok)
	}
	if _, ok := s.SlotWindow(3); ok {
		t.Fatal("SlotWindow(3) should not exist")
	}

	if cfg.ClickURL() != "https://photos.example.com" {
		t.Fatalf("click url = %q, want external url", cfg.ClickURL())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, sampleConfig+"\nmystery_section:\n  x: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown-field error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	enabled := true
	base := func() *Config {
		return &Config{
			Immich: ServiceConfig{URL: "http://immich"},
			Ntfy:   ServiceConfig{URL: "http://ntfy"},
			Users: []UserConfig{
				{Name: "a", ImmichAPIKey: "k", NtfyTopic: "t", Enabled: &enabled},
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing immich url", func(c *Config) { c.Immich.URL = " " }},
		{"missing ntfy url", func(c *Config) { c.Ntfy.URL = "" }},
		{"empty user name", func(c *Config) { c.Users[0].Name = "" }},
		{"duplicate user", func(c *Config) { c.Users = append(c.Users, c.Users[0]) }},
		{"enabled without topic", func(c *Config) { c.Users[0].NtfyTopic = "" }},
		{"zero retry attempts", func(c *Config) {
			zero := 0
			c.Settings.Retry.MaxAttempts = &zero
		}},
		{"negative count", func(c *Config) {
			neg := -1
			c.Settings.TopPersonsLimit = &neg
		}},
		{"overnight window", func(c *Config) {
			c.Settings.NotificationWindows = []window.Window{
				{Start: window.TimeOfDay{Hour: 22}, End: window.TimeOfDay{Hour: 6}},
			}
		}},
		{"unknown history driver", func(c *Config) {
			c.Settings.History = &HistoryConfig{Driver: "postgres", Path: "x"}
		}},
		{"history without path", func(c *Config) {
			c.Settings.History = &HistoryConfig{Driver: "file"}
		}},
		{"bad history busy_timeout", func(c *Config) {
			c.Settings.History = &HistoryConfig{Driver: "file", Path: "x", BusyTimeout: "banana"}
		}},
		{"bogus timezone", func(c *Config) { c.Settings.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateDisabledUserWithoutTopic(t *testing.T) {
	t.Parallel()
	off := false
	cfg := &Config{
		Immich: ServiceConfig{URL: "u"},
		Ntfy:   ServiceConfig{URL: "n"},
		Users:  []UserConfig{{Name: "a", Enabled: &off}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled user without topic should pass: %v", err)
	}
}

func TestHistoryBusyDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "  ", want: 0},
		{raw: "5s", want: 5 * time.Second},
		{raw: "250ms", want: 250 * time.Millisecond},
		{raw: "1m30s", want: 90 * time.Second},
		{raw: "banana", wantErr: true},
		{raw: "-2s", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			h := &HistoryConfig{BusyTimeout: tt.raw}
			got, err := h.BusyDuration()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("BusyDuration(%q): expected error", tt.raw)
				}
				if !strings.Contains(err.Error(), "settings.history.busy_timeout") {
					t.Fatalf("error %q does not name the field", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BusyDuration(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("BusyDuration(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CFG_SET", "from-env")
	t.Setenv("CFG_EMPTY", "")
	os.Unsetenv("CFG_MISSING")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set var", "${CFG_SET}", "from-env"},
		{"set var beats default", "${CFG_SET:-fallback}", "from-env"},
		{"empty var beats default", "${CFG_EMPTY:-fallback}", ""},
		{"missing uses default", "${CFG_MISSING:-fallback}", "fallback"},
		{"missing no default", "${CFG_MISSING}", ""},
		{"embedded", "url=${CFG_SET}/api", "url=from-env/api"},
		{"multiple", "${CFG_SET}:${CFG_MISSING:-x}", "from-env:x"},
		{"plain text untouched", "no refs here", "no refs here"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.in); got != tt.want {
				t.Fatalf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Immich: ServiceConfig{URL: "a"}, Ntfy: ServiceConfig{URL: "n"}}
	newCfg := &Config{
		Immich:   ServiceConfig{URL: "b"},
		Ntfy:     ServiceConfig{URL: "n"},
		Messages: []string{"hello {year}"},
	}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"messages", "servers"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}

	if same, _ := SummarizeConfigChange(newCfg, newCfg); len(same) != 0 {
		t.Fatalf("identical configs reported changes: %v", same)
	}
}
