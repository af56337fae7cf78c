package history

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the send-history store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SendRecord is one delivered (or attempted) notification.
// Keep it compact and schema-stable.
type SendRecord struct {
	At      time.Time `json:"at"`
	User    string    `json:"user"`
	Slot    int       `json:"slot"`
	Date    string    `json:"date"`
	Kind    string    `json:"kind"`
	AssetID string    `json:"asset_id,omitempty"`
	Year    int       `json:"year,omitempty"`
	Person  string    `json:"person,omitempty"`
	Title   string    `json:"title,omitempty"`
	Test    bool      `json:"test,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// Store is the persistence API for send history.
type Store interface {
	AppendSend(ctx context.Context, r SendRecord) error
	RecentSends(ctx context.Context, limit int) ([]SendRecord, error)
	Close() error
}
