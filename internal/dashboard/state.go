package dashboard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ismaildakrory/immich-memories-notify/internal/state"
)

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.Load()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st.Users == nil {
		st.Users = make(map[string]*state.UserState)
	}
	for name, u := range st.Users {
		st.Users[name] = normalizedUser(u)
	}
	JSON(w, http.StatusOK, st)
}

func (s *Server) handleGetUserState(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.Load()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, normalizedUser(st.Users[chi.URLParam(r, "name")]))
}

// handleClearUserToday wipes a user's per-day record so slots can be
// re-sent without waiting for the next rollover.
func (s *Server) handleClearUserToday(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	st, err := s.states.Load()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	u, ok := st.Users[name]
	if !ok {
		Error(w, http.StatusNotFound, fmt.Sprintf("user %q not found in state", name))
		return
	}

	u.SlotsDate = ""
	u.SlotsSent = nil
	u.AssetsSentToday = nil
	if err := s.states.Save(st); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("Cleared today's state for user %q", name)})
}

func (s *Server) handleClearState(w http.ResponseWriter, r *http.Request) {
	if err := s.states.Save(state.New()); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": "All state cleared"})
}

type todayUserSummary struct {
	SlotsSent         []int   `json:"slots_sent"`
	NotificationCount int     `json:"notification_count"`
	LastSent          *string `json:"last_sent"`
}

func (s *Server) handleTodaySummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.Load()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	today := time.Now().Format("2006-01-02")
	users := make(map[string]todayUserSummary, len(st.Users))
	for name, u := range st.Users {
		if u == nil || u.SlotsDate != today {
			users[name] = todayUserSummary{SlotsSent: []int{}}
			continue
		}
		sent := u.SlotsSent
		if sent == nil {
			sent = []int{}
		}
		summary := todayUserSummary{SlotsSent: sent, NotificationCount: len(sent)}
		if u.LastSlotTime != "" {
			t := u.LastSlotTime
			summary.LastSent = &t
		}
		users[name] = summary
	}

	JSON(w, http.StatusOK, map[string]any{"date": today, "users": users})
}

func normalizedUser(u *state.UserState) *state.UserState {
	if u == nil {
		u = &state.UserState{}
	}
	out := *u
	if out.SlotsSent == nil {
		out.SlotsSent = []int{}
	}
	if out.AssetsSentToday == nil {
		out.AssetsSentToday = []string{}
	}
	return &out
}
