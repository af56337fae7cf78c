// Package dashboard is the administrative HTTP API: settings and secrets
// editing, send-state inspection, test triggers, and container restarts.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ismaildakrory/immich-memories-notify/internal/state"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

const apiVersion = "1.0.0"

// Options wires the server to the files and processes it manages.
type Options struct {
	Addr       string
	ConfigPath string
	StatePath  string
	EnvPath    string

	// Basic auth. An empty Token disables auth entirely.
	Username string
	Token    string

	// NotifyBin is the dispatcher binary executed by the test trigger.
	NotifyBin string

	// ComposeProject narrows restart targets to one compose project when
	// several run on the host.
	ComposeProject string
}

type Server struct {
	opts   Options
	log    logx.Logger
	cfg    *configFile
	env    *envFile
	states *state.Store

	// docker is nil when no daemon is reachable; restart endpoints then
	// report the capability as unavailable instead of failing at startup.
	docker ContainerClient
}

func New(opts Options, docker ContainerClient, log logx.Logger) *Server {
	return &Server{
		opts:   opts,
		log:    log,
		cfg:    newConfigFile(opts.ConfigPath),
		env:    newEnvFile(opts.EnvPath),
		states: state.NewStore(opts.StatePath, log),
		docker: docker,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
			r.Get("/windows", s.handleGetWindows)
			r.Put("/windows", s.handleUpdateWindows)
			r.Get("/messages", s.handleGetMessages)
			r.Put("/messages", s.handleUpdateMessages)
			r.Get("/users", s.handleGetUsers)
			r.Post("/users", s.handleAddUser)
			r.Delete("/users/{name}", s.handleDeleteUser)
			r.Put("/users/{name}/enabled", s.handleToggleUser)
			r.Put("/users/{name}/rename", s.handleRenameUser)
		})

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Delete("/", s.handleClearState)
			r.Get("/today", s.handleTodaySummary)
			r.Get("/user/{name}", s.handleGetUserState)
			r.Delete("/user/{name}/today", s.handleClearUserToday)
		})

		r.Route("/secrets", func(r chi.Router) {
			r.Get("/urls", s.handleServerURLs)
			r.Get("/", s.handleGetSecrets)
			r.Put("/", s.handleUpdateSecrets)
		})

		r.Route("/test", func(r chi.Router) {
			r.Post("/trigger/{slot}", s.handleTrigger)
			r.Get("/slots", s.handleSlots)
		})

		r.Route("/restart", func(r chi.Router) {
			r.Post("/", s.handleRestart)
			r.Post("/scheduler", s.handleRestartScheduler)
			r.Post("/all", s.handleRestartAll)
		})

		r.Get("/history", s.handleHistory)
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.opts.Addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// The test trigger holds its response open for up to the full
		// two-minute notify run; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info("dashboard listening", logx.String("addr", s.opts.Addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": apiVersion})
}

// basicAuth guards the API with constant-time credential checks. With no
// token configured every request passes, matching a single-host setup
// behind a trusted proxy.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
			Error(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.opts.Token)) == 1
		if !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
			Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// httpError carries a status through the configFile callbacks so handlers
// can answer 400/404 instead of a blanket 500.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func writeFileError(w http.ResponseWriter, err error, missing string) {
	var herr *httpError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		Error(w, http.StatusNotFound, missing)
	case errors.As(err, &herr):
		Error(w, herr.status, herr.msg)
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
