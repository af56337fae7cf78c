package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Load reads, expands, strictly decodes, and validates a config file.
// Any error here is fatal to the caller: nothing may be dispatched on a
// config that did not validate.
func Load(path string) (*Config, error) {
	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeStrictBytes decodes a raw document without validating it. The path
// only selects the format by extension.
func decodeStrictBytes(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// DecodeStrict parses and validates an in-memory config document. The
// dashboard runs every edited document through it before writing, so a
// file the loaders would reject never lands on disk.
func DecodeStrict(path string, data []byte) (*Config, error) {
	cfg, err := decodeStrictBytes(path, data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Immich.URL) == "" {
		return fmt.Errorf("immich.url is required")
	}
	if strings.TrimSpace(c.Ntfy.URL) == "" {
		return fmt.Errorf("ntfy.url is required")
	}

	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return fmt.Errorf("users[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("users[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if u.IsEnabled() && strings.TrimSpace(u.NtfyTopic) == "" {
			return fmt.Errorf("users[%d] (%s): ntfy_topic is required for enabled users", i, name)
		}
	}

	s := c.Settings
	if s.Retry.MaxAttempts != nil && *s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("settings.retry.max_attempts must be >= 1")
	}
	if s.Retry.DelaySeconds != nil && *s.Retry.DelaySeconds < 0 {
		return fmt.Errorf("settings.retry.delay_seconds must be >= 0")
	}

	counts := []struct {
		name string
		v    *int
	}{
		{"memory_notifications", s.MemoryNotifications},
		{"person_notifications", s.PersonNotifications},
		{"fallback_notifications", s.FallbackNotifications},
		{"top_persons_limit", s.TopPersonsLimit},
		{"exclude_recent_days", s.ExcludeRecentDays},
		{"min_group_size", s.MinGroupSize},
	}
	for _, c := range counts {
		if c.v != nil && *c.v < 0 {
			return fmt.Errorf("settings.%s must be >= 0", c.name)
		}
	}

	for i, w := range s.NotificationWindows {
		if err := w.Valid(); err != nil {
			return fmt.Errorf("settings.notification_windows[%d]: %w", i, err)
		}
	}

	if h := s.History; h != nil {
		switch strings.ToLower(strings.TrimSpace(h.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("settings.history.driver %q not supported (use file or sqlite)", h.Driver)
		}
		if d := strings.ToLower(strings.TrimSpace(h.Driver)); (d == "file" || d == "sqlite") && strings.TrimSpace(h.Path) == "" {
			return fmt.Errorf("settings.history.path is required for driver %q", h.Driver)
		}
		if _, err := h.BusyDuration(); err != nil {
			return err
		}
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("settings.timezone: %w", err)
		}
	}

	return nil
}
