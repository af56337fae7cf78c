package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

const testConfigYAML = `immich:
  url: https://immich.local
ntfy:
  url: https://ntfy.local
users:
  - name: alice
    immich_api_key: key-a
    ntfy_topic: topic-a
settings:
  notification_windows:
    - start: "09:00"
      end: "11:00"
messages:
  - "You have memories from {year}!"
`

type testPaths struct {
	dir    string
	config string
	state  string
	env    string
}

func newTestServer(t *testing.T, mutate func(o *Options)) (*Server, testPaths) {
	t.Helper()

	dir := t.TempDir()
	paths := testPaths{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		state:  filepath.Join(dir, "state.json"),
		env:    filepath.Join(dir, ".env"),
	}
	if err := os.WriteFile(paths.config, []byte(testConfigYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts := Options{
		Addr:       "127.0.0.1:0",
		ConfigPath: paths.config,
		StatePath:  paths.state,
		EnvPath:    paths.env,
		Username:   "admin",
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts, nil, logx.Nop()), paths
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(o *Options) { o.Token = "hunter2" })
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Fatalf("status = %q, want healthy", resp["status"])
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    string
		user     string
		pass     string
		sendAuth bool
		want     int
	}{
		{name: "no token configured allows all", token: "", want: http.StatusOK},
		{name: "missing credentials", token: "hunter2", want: http.StatusUnauthorized},
		{name: "wrong password", token: "hunter2", sendAuth: true, user: "admin", pass: "nope", want: http.StatusUnauthorized},
		{name: "wrong username", token: "hunter2", sendAuth: true, user: "root", pass: "hunter2", want: http.StatusUnauthorized},
		{name: "valid credentials", token: "hunter2", sendAuth: true, user: "admin", pass: "hunter2", want: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServer(t, func(o *Options) { o.Token = tt.token })
			req := httptest.NewRequest(http.MethodGet, "/api/settings/", nil)
			if tt.sendAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate challenge")
			}
		})
	}
}
