package dashboard

import (
	"net/http"
	"testing"
	"time"

	"github.com/ismaildakrory/immich-memories-notify/internal/state"
	"github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

func seedState(t *testing.T, path string, st *state.State) {
	t.Helper()
	if err := state.NewStore(path, logx.Nop()).Save(st); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func TestGetState(t *testing.T) {
	t.Parallel()

	s, paths := newTestServer(t, nil)
	seedState(t, paths.state, &state.State{Users: map[string]*state.UserState{
		"alice": {SlotsDate: "2024-06-15", SlotsSent: []int{1}, AssetsSentToday: []string{"asset-1"}},
	}})

	rec := doRequest(t, s, http.MethodGet, "/api/state/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var st state.State
	decodeJSON(t, rec, &st)
	u := st.Users["alice"]
	if u == nil || u.SlotsDate != "2024-06-15" || len(u.SlotsSent) != 1 {
		t.Fatalf("unexpected alice state: %+v", u)
	}
}

func TestGetUserStateMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/state/user/ghost", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var u state.UserState
	decodeJSON(t, rec, &u)
	if u.SlotsSent == nil || u.AssetsSentToday == nil {
		t.Fatalf("missing user must come back with empty arrays, got %+v", u)
	}
	if len(u.SlotsSent) != 0 || u.SlotsDate != "" {
		t.Fatalf("missing user must come back empty, got %+v", u)
	}
}

func TestClearUserToday(t *testing.T) {
	t.Parallel()

	s, paths := newTestServer(t, nil)
	seedState(t, paths.state, &state.State{Users: map[string]*state.UserState{
		"alice": {SlotsDate: "2024-06-15", SlotsSent: []int{1, 2}, AssetsSentToday: []string{"a"}, LastSlotTime: "2024-06-15T10:00:00"},
	}})

	if rec := doRequest(t, s, http.MethodDelete, "/api/state/user/ghost/today", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("clear missing user: status = %d, want 404", rec.Code)
	}

	rec := doRequest(t, s, http.MethodDelete, "/api/state/user/alice/today", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	st, err := state.NewStore(paths.state, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	u := st.Users["alice"]
	if u.SlotsDate != "" || len(u.SlotsSent) != 0 || len(u.AssetsSentToday) != 0 {
		t.Fatalf("today's record not cleared: %+v", u)
	}
}

func TestClearAllState(t *testing.T) {
	t.Parallel()

	s, paths := newTestServer(t, nil)
	seedState(t, paths.state, &state.State{Users: map[string]*state.UserState{
		"alice": {SlotsDate: "2024-06-15"},
		"bob":   {SlotsDate: "2024-06-14"},
	}})

	rec := doRequest(t, s, http.MethodDelete, "/api/state/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	st, err := state.NewStore(paths.state, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(st.Users) != 0 {
		t.Fatalf("users after clear = %v, want none", st.Users)
	}
}

func TestTodaySummary(t *testing.T) {
	t.Parallel()

	today := time.Now().Format("2006-01-02")
	s, paths := newTestServer(t, nil)
	seedState(t, paths.state, &state.State{Users: map[string]*state.UserState{
		"alice": {SlotsDate: today, SlotsSent: []int{1, 2}, LastSlotTime: "10:00:00"},
		"bob":   {SlotsDate: "2000-01-01", SlotsSent: []int{3}},
	}})

	rec := doRequest(t, s, http.MethodGet, "/api/state/today", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Date  string                      `json:"date"`
		Users map[string]todayUserSummary `json:"users"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Date != today {
		t.Fatalf("date = %q, want %q", resp.Date, today)
	}

	alice := resp.Users["alice"]
	if alice.NotificationCount != 2 || len(alice.SlotsSent) != 2 {
		t.Fatalf("alice summary = %+v", alice)
	}
	if alice.LastSent == nil || *alice.LastSent != "10:00:00" {
		t.Fatalf("alice last_sent = %v", alice.LastSent)
	}

	bob := resp.Users["bob"]
	if bob.NotificationCount != 0 || len(bob.SlotsSent) != 0 || bob.LastSent != nil {
		t.Fatalf("stale bob must report an empty day, got %+v", bob)
	}
}
