package dashboard

import (
	"net/http"
	"os"
	"sort"
)

const restartNote = "Changes to secrets require a container restart to take effect"

func (s *Server) handleServerURLs(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"immich_url":          os.Getenv("IMMICH_URL"),
		"immich_external_url": os.Getenv("IMMICH_EXTERNAL_URL"),
		"ntfy_url":            os.Getenv("NTFY_URL"),
		"ntfy_external_url":   os.Getenv("NTFY_EXTERNAL_URL"),
	})
}

type userSecretsView struct {
	APIKey          string `json:"api_key"`
	APIKeySet       bool   `json:"api_key_set"`
	NtfyPassword    string `json:"ntfy_password"`
	NtfyPasswordSet bool   `json:"ntfy_password_set"`
}

// handleGetSecrets reports the env file contents with every secret masked
// to its last characters. The per-user keys are derived from the users
// configured right now, not from a fixed list.
func (s *Server) handleGetSecrets(w http.ResponseWriter, r *http.Request) {
	vars, err := s.env.values()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	fromFileOrEnv := func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	users := make(map[string]userSecretsView)
	if doc, err := s.cfg.load(); err == nil {
		for _, u := range userViews(doc) {
			suffix := envKeySuffix(u.Name)
			apiKey := vars["IMMICH_API_KEY_"+suffix]
			password := vars["NTFY_PASSWORD_"+suffix]
			users[u.Name] = userSecretsView{
				APIKey:          maskSecret(apiKey),
				APIKeySet:       apiKey != "",
				NtfyPassword:    maskSecret(password),
				NtfyPasswordSet: password != "",
			}
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"urls": map[string]string{
			"immich_url":          fromFileOrEnv("IMMICH_URL"),
			"immich_external_url": fromFileOrEnv("IMMICH_EXTERNAL_URL"),
			"ntfy_url":            fromFileOrEnv("NTFY_URL"),
			"ntfy_external_url":   fromFileOrEnv("NTFY_EXTERNAL_URL"),
		},
		"dashboard": map[string]bool{
			"token_set": fromFileOrEnv("DASHBOARD_TOKEN") != "",
		},
		"users":                 users,
		"env_file_exists":       s.env.exists(),
		"restart_required_note": restartNote,
	})
}

// handleUpdateSecrets patches the env file. Empty fields are left alone so
// a partial form submit never blanks a stored secret.
func (s *Server) handleUpdateSecrets(w http.ResponseWriter, r *http.Request) {
	var update struct {
		ImmichURL         string `json:"immich_url"`
		ImmichExternalURL string `json:"immich_external_url"`
		NtfyURL           string `json:"ntfy_url"`
		NtfyExternalURL   string `json:"ntfy_external_url"`
		DashboardToken    string `json:"dashboard_token"`
		Users             []struct {
			Name         string `json:"name"`
			ImmichAPIKey string `json:"immich_api_key"`
			NtfyPassword string `json:"ntfy_password"`
		} `json:"users"`
	}
	if err := decodeBody(r, &update); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	updates := make(map[string]string)
	put := func(key, value string) {
		if value != "" {
			updates[key] = value
		}
	}
	put("IMMICH_URL", update.ImmichURL)
	put("IMMICH_EXTERNAL_URL", update.ImmichExternalURL)
	put("NTFY_URL", update.NtfyURL)
	put("NTFY_EXTERNAL_URL", update.NtfyExternalURL)
	put("DASHBOARD_TOKEN", update.DashboardToken)
	for _, u := range update.Users {
		if u.Name == "" {
			continue
		}
		suffix := envKeySuffix(u.Name)
		put("IMMICH_API_KEY_"+suffix, u.ImmichAPIKey)
		put("NTFY_PASSWORD_"+suffix, u.NtfyPassword)
	}

	if len(updates) == 0 {
		JSON(w, http.StatusOK, map[string]any{
			"message":          "No changes made",
			"updated_fields":   []string{},
			"restart_required": false,
		})
		return
	}

	if err := s.env.setAll(updates); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	fields := make([]string, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	JSON(w, http.StatusOK, map[string]any{
		"message":          "Secrets updated",
		"updated_fields":   fields,
		"restart_required": true,
		"restart_command":  "docker compose restart scheduler dashboard",
	})
}
