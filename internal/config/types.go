package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ismaildakrory/immich-memories-notify/internal/retry"
	"github.com/ismaildakrory/immich-memories-notify/internal/window"
)

// Defaults applied when optional settings are omitted. Pointer fields
// distinguish "omitted" from an explicit zero.
const (
	DefaultStateFile   = "state.json"
	DefaultLogLevel    = "INFO"
	DefaultClickURL    = "https://my.immich.app/"
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 // seconds

	defaultMemorySlots       = 3
	defaultPersonSlots       = 2
	defaultFallbackSlots     = 3
	defaultTopPersonsLimit   = 5
	defaultExcludeRecentDays = 30
	defaultMinGroupSize      = 2
)

type Config struct {
	Immich ServiceConfig `json:"immich"`
	Ntfy   ServiceConfig `json:"ntfy"`
	Users  []UserConfig  `json:"users"`

	Settings Settings `json:"settings"`

	// Template sets. Placeholders: {year} and {years_ago} in the memory
	// sets, {person_name} in the person sets. The video_* sets apply when
	// the chosen asset is a video and fall back to the plain sets.
	Messages            []string `json:"messages"`
	PersonMessages      []string `json:"person_messages"`
	VideoMessages       []string `json:"video_messages"`
	VideoPersonMessages []string `json:"video_person_messages"`
}

type ServiceConfig struct {
	URL         string `json:"url"`
	ExternalURL string `json:"external_url,omitempty"`
}

type UserConfig struct {
	Name         string `json:"name"`
	ImmichAPIKey string `json:"immich_api_key"`
	NtfyTopic    string `json:"ntfy_topic"`
	NtfyUsername string `json:"ntfy_username,omitempty"`
	NtfyPassword string `json:"ntfy_password,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (u UserConfig) IsEnabled() bool { return u.Enabled == nil || *u.Enabled }

type RetrySettings struct {
	MaxAttempts  *int `json:"max_attempts,omitempty"`
	DelaySeconds *int `json:"delay_seconds,omitempty"`
}

// HistoryConfig controls the optional send-history store.
//
// Example:
//
//	history: { driver: "file", path: "./history.jsonl" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BusyDuration parses busy_timeout. Empty means no timeout.
func (h *HistoryConfig) BusyDuration() (time.Duration, error) {
	raw := strings.TrimSpace(h.BusyTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("settings.history.busy_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("settings.history.busy_timeout must be >= 0")
	}
	return d, nil
}

type Settings struct {
	Retry     RetrySettings `json:"retry"`
	StateFile string        `json:"state_file,omitempty"`
	LogLevel  string        `json:"log_level,omitempty"`
	LogFile   string        `json:"log_file,omitempty"`

	// Timezone is an IANA name used for window math and the scheduler.
	// Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	MemoryNotifications   *int `json:"memory_notifications,omitempty"`
	PersonNotifications   *int `json:"person_notifications,omitempty"`
	FallbackNotifications *int `json:"fallback_notifications,omitempty"`
	TopPersonsLimit       *int `json:"top_persons_limit,omitempty"`
	ExcludeRecentDays     *int `json:"exclude_recent_days,omitempty"`

	IncludeLocation   *bool `json:"include_location,omitempty"`
	IncludeAlbum      *bool `json:"include_album,omitempty"`
	VideoEmoji        *bool `json:"video_emoji,omitempty"`
	PreferGroupPhotos *bool `json:"prefer_group_photos,omitempty"`
	MinGroupSize      *int  `json:"min_group_size,omitempty"`

	NotificationWindows []window.Window `json:"notification_windows,omitempty"`

	History *HistoryConfig `json:"history,omitempty"`
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (s Settings) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: intOr(s.Retry.MaxAttempts, defaultMaxAttempts),
		Delay:       time.Duration(intOr(s.Retry.DelaySeconds, defaultRetryDelay)) * time.Second,
	}
}

func (s Settings) StatePath() string {
	if s.StateFile == "" {
		return DefaultStateFile
	}
	return s.StateFile
}

func (s Settings) Level() string {
	if s.LogLevel == "" {
		return DefaultLogLevel
	}
	return s.LogLevel
}

func (s Settings) MemorySlots() int     { return intOr(s.MemoryNotifications, defaultMemorySlots) }
func (s Settings) PersonSlots() int     { return intOr(s.PersonNotifications, defaultPersonSlots) }
func (s Settings) FallbackSlots() int   { return intOr(s.FallbackNotifications, defaultFallbackSlots) }
func (s Settings) TopPersons() int      { return intOr(s.TopPersonsLimit, defaultTopPersonsLimit) }
func (s Settings) ExcludeRecent() int   { return intOr(s.ExcludeRecentDays, defaultExcludeRecentDays) }
func (s Settings) GroupSizeMin() int    { return intOr(s.MinGroupSize, defaultMinGroupSize) }
func (s Settings) LocationEnabled() bool { return boolOr(s.IncludeLocation, true) }
func (s Settings) AlbumEnabled() bool    { return boolOr(s.IncludeAlbum, true) }
func (s Settings) VideoEmojiEnabled() bool {
	return boolOr(s.VideoEmoji, true)
}
func (s Settings) GroupPhotosPreferred() bool { return boolOr(s.PreferGroupPhotos, true) }

// SlotWindow returns the delivery window for a 1-based slot number, when
// one is configured.
func (s Settings) SlotWindow(slot int) (window.Window, bool) {
	idx := slot - 1
	if idx < 0 || idx >= len(s.NotificationWindows) {
		return window.Window{}, false
	}
	return s.NotificationWindows[idx], true
}

// Location resolves the configured timezone, defaulting to the local one.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ClickURL is the notification tap-through target.
func (c *Config) ClickURL() string {
	if c.Immich.ExternalURL != "" {
		return c.Immich.ExternalURL
	}
	return DefaultClickURL
}

// User looks a user up by name.
func (c *Config) User(name string) (UserConfig, bool) {
	for _, u := range c.Users {
		if u.Name == name {
			return u, true
		}
	}
	return UserConfig{}, false
}
