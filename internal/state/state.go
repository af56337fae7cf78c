// Package state persists which slots and assets have already gone out
// today, per user. The record is a small JSON file guarded by a file lock
// so separate slot processes never corrupt it.
package state

import (
	"time"
)

// UserState is one user's per-day send record. The date acts as a
// generation marker: whenever it differs from the run's target date the
// slot and asset lists are treated as empty.
type UserState struct {
	SlotsDate       string   `json:"slots_date,omitempty"`
	SlotsSent       []int    `json:"slots_sent"`
	AssetsSentToday []string `json:"assets_sent_today"`
	LastSlotTime    string   `json:"last_slot_time,omitempty"`
}

// State is the whole on-disk record.
type State struct {
	Users map[string]*UserState `json:"users"`
}

func New() *State {
	return &State{Users: make(map[string]*UserState)}
}

func (s *State) user(name string) *UserState {
	if s.Users == nil {
		s.Users = make(map[string]*UserState)
	}
	u, ok := s.Users[name]
	if !ok {
		u = &UserState{}
		s.Users[name] = u
	}
	return u
}

// Eligible reports whether a slot may still be sent to a user on the given
// date. Force and test runs are always eligible; otherwise the slot must
// not already appear in the user's record for that date.
func (s *State) Eligible(name, date string, slot int, force, test bool) bool {
	if force || test {
		return true
	}
	u, ok := s.Users[name]
	if !ok || u.SlotsDate != date {
		return true
	}
	for _, sent := range u.SlotsSent {
		if sent == slot {
			return false
		}
	}
	return true
}

// AssetsUsed returns the asset ids already sent to a user on the given
// date, or nil after a day rollover.
func (s *State) AssetsUsed(name, date string) []string {
	u, ok := s.Users[name]
	if !ok || u.SlotsDate != date {
		return nil
	}
	return u.AssetsSentToday
}

// RecordSend marks a slot as delivered. The first write for a new date
// resets the per-day lists; slot and asset appends are deduplicated.
func (s *State) RecordSend(name, date string, slot int, assetID string, now time.Time) {
	u := s.user(name)
	if u.SlotsDate != date {
		u.SlotsDate = date
		u.SlotsSent = nil
		u.AssetsSentToday = nil
	}
	if !contains(u.SlotsSent, slot) {
		u.SlotsSent = append(u.SlotsSent, slot)
	}
	if assetID != "" && !containsString(u.AssetsSentToday, assetID) {
		u.AssetsSentToday = append(u.AssetsSentToday, assetID)
	}
	u.LastSlotTime = now.Format(time.RFC3339)
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
