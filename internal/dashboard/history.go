package dashboard

import (
	"net/http"
	"strconv"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleHistory lists recent send attempts. The store is opened per
// request; the config can change under a running dashboard.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h := cfg.Settings.History
	if h == nil {
		Error(w, http.StatusNotFound, "history store disabled")
		return
	}
	busy, err := h.BusyDuration()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	store, err := history.Open(history.Config{Driver: h.Driver, Path: h.Path, BusyTimeout: busy}, s.log)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if store == nil {
		Error(w, http.StatusNotFound, "history store disabled")
		return
	}
	defer store.Close()

	records, err := store.RecentSends(r.Context(), limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.SendRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}
