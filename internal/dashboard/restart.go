package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// ContainerClient is the slice of the Docker API the restart endpoints
// need. *client.Client satisfies it.
type ContainerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

const (
	composeServiceLabel = "com.docker.compose.service"
	composeProjectLabel = "com.docker.compose.project"

	restartStopSeconds = 10
)

var restartTargets = map[string]bool{
	"scheduler": true,
	"dashboard": true,
	"notify":    true,
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Services []string `json:"services"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(req.Services) == 0 {
		Error(w, http.StatusBadRequest, "no services specified")
		return
	}
	for _, svc := range req.Services {
		if !restartTargets[svc] {
			Error(w, http.StatusBadRequest, fmt.Sprintf("invalid service %q (valid: dashboard, notify, scheduler)", svc))
			return
		}
	}
	s.restartServices(r.Context(), w, req.Services)
}

func (s *Server) handleRestartScheduler(w http.ResponseWriter, r *http.Request) {
	s.restartServices(r.Context(), w, []string{"scheduler"})
}

func (s *Server) handleRestartAll(w http.ResponseWriter, r *http.Request) {
	s.restartServices(r.Context(), w, []string{"scheduler", "dashboard"})
}

// restartServices locates each service's containers by compose label and
// restarts them. Restarting the dashboard's own container kills this
// process mid-request; the response may never arrive, as with the compose
// CLI equivalent.
func (s *Server) restartServices(ctx context.Context, w http.ResponseWriter, services []string) {
	if s.docker == nil {
		Error(w, http.StatusServiceUnavailable, "docker is not available")
		return
	}

	timeout := restartStopSeconds
	restarted := make([]string, 0)
	failures := make([]string, 0)
	for _, svc := range services {
		args := filters.NewArgs(filters.Arg("label", composeServiceLabel+"="+svc))
		if s.opts.ComposeProject != "" {
			args.Add("label", composeProjectLabel+"="+s.opts.ComposeProject)
		}

		list, err := s.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", svc, err))
			continue
		}
		if len(list) == 0 {
			failures = append(failures, fmt.Sprintf("%s: no containers found", svc))
			continue
		}

		for _, c := range list {
			name := containerName(c)
			if err := s.docker.ContainerRestart(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
				failures = append(failures, fmt.Sprintf("%s (%s): %v", svc, name, err))
				continue
			}
			s.log.Info("container restarted", logx.String("service", svc), logx.String("container", name))
			restarted = append(restarted, fmt.Sprintf("%s (%s)", svc, name))
		}
	}

	success := len(failures) == 0
	message := fmt.Sprintf("Services %s restarted", strings.Join(services, ", "))
	if !success {
		message = "Restart completed with errors"
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":   success,
		"message":   message,
		"restarted": restarted,
		"errors":    failures,
	})
}

func containerName(c container.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}
