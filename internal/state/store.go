package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Store reads and writes the state file. The lock lives beside the state
// file and is held only for the duration of a read or write, never across
// network calls.
type Store struct {
	path string
	lock *flock.Flock
	log  logx.Logger
}

func NewStore(path string, log logx.Logger) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
	}
}

func (s *Store) Path() string { return s.path }

// Load reads the state file. A missing or unreadable file yields a fresh
// empty state rather than an error: losing dedup history means at worst a
// duplicate notification, which beats refusing to run.
func (s *Store) Load() (*State, error) {
	if err := s.ensureLockDir(); err != nil {
		return nil, err
	}
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("state: lock %s: %w", s.lock.Path(), err)
	}
	data, readErr := os.ReadFile(s.path)
	if err := s.lock.Unlock(); err != nil {
		return nil, fmt.Errorf("state: unlock: %w", err)
	}

	if readErr != nil {
		if !os.IsNotExist(readErr) {
			s.log.Warn("state file unreadable, starting fresh", logx.String("path", s.path), logx.Err(readErr))
		}
		return New(), nil
	}

	st := New()
	if err := json.Unmarshal(data, st); err != nil {
		s.log.Warn("state file corrupt, starting fresh", logx.String("path", s.path), logx.Err(err))
		return New(), nil
	}
	if st.Users == nil {
		st.Users = make(map[string]*UserState)
	}
	return st, nil
}

// Save writes the state atomically: marshal, write a sibling temp file,
// rename over the target while holding the exclusive lock.
func (s *Store) Save(st *State) error {
	for _, u := range st.Users {
		if u.SlotsSent == nil {
			u.SlotsSent = []int{}
		}
		if u.AssetsSentToday == nil {
			u.AssetsSentToday = []string{}
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	if err := s.ensureLockDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("state: lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

func (s *Store) ensureLockDir() error {
	dir := filepath.Dir(s.path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir %s: %w", dir, err)
	}
	return nil
}
