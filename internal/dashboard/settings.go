package dashboard

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ismaildakrory/immich-memories-notify/internal/window"
)

const errConfigMissing = "config file not found"

// userView is a user entry with the secret fields stripped.
type userView struct {
	Name      string `json:"name"`
	NtfyTopic string `json:"ntfy_topic"`
	Enabled   bool   `json:"enabled"`
}

type windowView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.load()
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}

	settings, _ := doc["settings"].(map[string]any)
	if settings == nil {
		settings = map[string]any{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"settings":              settings,
		"users":                 userViews(doc),
		"messages":              stringList(doc["messages"]),
		"person_messages":       stringList(doc["person_messages"]),
		"video_messages":        stringList(doc["video_messages"]),
		"video_person_messages": stringList(doc["video_person_messages"]),
	})
}

// handleUpdateSettings merges the posted fields into the settings block.
// Null values are skipped, everything else is taken verbatim; the write
// fails when the merged document no longer validates.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(update) == 0 {
		Error(w, http.StatusBadRequest, "no settings provided")
		return
	}

	err := s.cfg.update(func(doc map[string]any) error {
		m := settingsMap(doc)
		for k, v := range update {
			if v == nil {
				continue
			}
			m[k] = v
		}
		return nil
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}

	fields := make([]string, 0, len(update))
	for k := range update {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	JSON(w, http.StatusOK, map[string]any{"message": "Settings updated", "updated_fields": fields})
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.load()
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, windowViews(doc))
}

func (s *Server) handleUpdateWindows(w http.ResponseWriter, r *http.Request) {
	var update struct {
		NotificationWindows []windowView `json:"notification_windows"`
	}
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	normalized := make([]any, 0, len(update.NotificationWindows))
	for i, wv := range update.NotificationWindows {
		start, err := window.Parse(wv.Start)
		if err != nil {
			Error(w, http.StatusBadRequest, fmt.Sprintf("windows[%d]: %v", i, err))
			return
		}
		end, err := window.Parse(wv.End)
		if err != nil {
			Error(w, http.StatusBadRequest, fmt.Sprintf("windows[%d]: %v", i, err))
			return
		}
		win := window.Window{Start: start, End: end}
		if err := win.Valid(); err != nil {
			Error(w, http.StatusBadRequest, fmt.Sprintf("windows[%d]: %v", i, err))
			return
		}
		normalized = append(normalized, map[string]any{"start": start.String(), "end": end.String()})
	}

	err := s.cfg.update(func(doc map[string]any) error {
		settingsMap(doc)["notification_windows"] = normalized
		return nil
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": "Windows updated", "count": len(normalized)})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.load()
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"messages":              stringList(doc["messages"]),
		"person_messages":       stringList(doc["person_messages"]),
		"video_messages":        stringList(doc["video_messages"]),
		"video_person_messages": stringList(doc["video_person_messages"]),
	})
}

func (s *Server) handleUpdateMessages(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Messages            *[]string `json:"messages"`
		PersonMessages      *[]string `json:"person_messages"`
		VideoMessages       *[]string `json:"video_messages"`
		VideoPersonMessages *[]string `json:"video_person_messages"`
	}
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	err := s.cfg.update(func(doc map[string]any) error {
		if update.Messages != nil {
			doc["messages"] = *update.Messages
		}
		if update.PersonMessages != nil {
			doc["person_messages"] = *update.PersonMessages
		}
		if update.VideoMessages != nil {
			doc["video_messages"] = *update.VideoMessages
		}
		if update.VideoPersonMessages != nil {
			doc["video_person_messages"] = *update.VideoPersonMessages
		}
		return nil
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": "Messages updated"})
}

func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.load()
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, userViews(doc))
}

// handleAddUser appends a user whose secrets are env placeholders; the
// operator fills the matching variables in afterwards.
func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var u struct {
		Name         string `json:"name"`
		NtfyTopic    string `json:"ntfy_topic"`
		NtfyUsername string `json:"ntfy_username"`
		Enabled      *bool  `json:"enabled"`
	}
	if err := decodeBody(r, &u); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	u.Name = strings.TrimSpace(u.Name)
	u.NtfyTopic = strings.TrimSpace(u.NtfyTopic)
	if u.Name == "" || u.NtfyTopic == "" {
		Error(w, http.StatusBadRequest, "name and ntfy_topic are required")
		return
	}

	suffix := envKeySuffix(u.Name)
	err := s.cfg.update(func(doc map[string]any) error {
		users := usersSlice(doc)
		for _, v := range users {
			if m, ok := v.(map[string]any); ok && str(m["name"]) == u.Name {
				return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf("user %q already exists", u.Name)}
			}
		}

		enabled := true
		if u.Enabled != nil {
			enabled = *u.Enabled
		}
		username := u.NtfyUsername
		if username == "" {
			username = strings.ToLower(u.Name)
		}
		doc["users"] = append(users, map[string]any{
			"name":           u.Name,
			"immich_api_key": "${IMMICH_API_KEY_" + suffix + "}",
			"ntfy_topic":     u.NtfyTopic,
			"ntfy_username":  username,
			"ntfy_password":  "${NTFY_PASSWORD_" + suffix + "}",
			"enabled":        enabled,
		})
		return nil
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("User %q added", u.Name),
		"note":    "Remember to add the API key and password to the env file",
		"env_vars_needed": []string{
			"IMMICH_API_KEY_" + suffix,
			"NTFY_PASSWORD_" + suffix,
		},
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := s.cfg.update(func(doc map[string]any) error {
		users := usersSlice(doc)
		kept := make([]any, 0, len(users))
		for _, v := range users {
			if m, ok := v.(map[string]any); ok && str(m["name"]) == name {
				continue
			}
			kept = append(kept, v)
		}
		if len(kept) == len(users) {
			return &httpError{status: http.StatusNotFound, msg: fmt.Sprintf("user %q not found", name)}
		}
		doc["users"] = kept
		return nil
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("User %q deleted", name)})
}

func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var update struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	err := s.cfg.update(func(doc map[string]any) error {
		for _, v := range usersSlice(doc) {
			if m, ok := v.(map[string]any); ok && str(m["name"]) == name {
				m["enabled"] = update.Enabled
				return nil
			}
		}
		return &httpError{status: http.StatusNotFound, msg: fmt.Sprintf("user %q not found", name)}
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("User %q enabled=%t", name, update.Enabled)})
}

func (s *Server) handleRenameUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var update struct {
		NewName string `json:"new_name"`
	}
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	update.NewName = strings.TrimSpace(update.NewName)
	if update.NewName == "" {
		Error(w, http.StatusBadRequest, "new_name is required")
		return
	}

	err := s.cfg.update(func(doc map[string]any) error {
		users := usersSlice(doc)
		for _, v := range users {
			if m, ok := v.(map[string]any); ok && str(m["name"]) == update.NewName {
				return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf("user %q already exists", update.NewName)}
			}
		}
		for _, v := range users {
			if m, ok := v.(map[string]any); ok && str(m["name"]) == name {
				m["name"] = update.NewName
				return nil
			}
		}
		return &httpError{status: http.StatusNotFound, msg: fmt.Sprintf("user %q not found", name)}
	})
	if err != nil {
		writeFileError(w, err, errConfigMissing)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("User %q renamed to %q", name, update.NewName)})
}

// --- generic document helpers ---

func settingsMap(doc map[string]any) map[string]any {
	m, ok := doc["settings"].(map[string]any)
	if !ok {
		m = map[string]any{}
		doc["settings"] = m
	}
	return m
}

func usersSlice(doc map[string]any) []any {
	l, _ := doc["users"].([]any)
	return l
}

func userViews(doc map[string]any) []userView {
	out := make([]userView, 0)
	for _, v := range usersSlice(doc) {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, userView{
			Name:      str(m["name"]),
			NtfyTopic: str(m["ntfy_topic"]),
			Enabled:   boolOrTrue(m["enabled"]),
		})
	}
	return out
}

func windowViews(doc map[string]any) []windowView {
	out := make([]windowView, 0)
	raw, _ := settingsValue(doc, "notification_windows").([]any)
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, windowView{Start: str(m["start"]), End: str(m["end"])})
	}
	return out
}

func settingsValue(doc map[string]any, key string) any {
	m, ok := doc["settings"].(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func stringList(v any) []string {
	out := make([]string, 0)
	l, _ := v.([]any)
	for _, item := range l {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// boolOrTrue reads an optional enabled flag, defaulting to true.
func boolOrTrue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// envKeySuffix derives the per-user env var suffix from a user name.
func envKeySuffix(name string) string {
	return strings.ReplaceAll(strings.ToUpper(name), " ", "_")
}
