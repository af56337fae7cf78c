package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
)

type fakeDocker struct {
	containers map[string][]container.Summary
	listErr    error
	restartErr error

	listFilters []string
	restarted   []string
	timeouts    []int
}

func (f *fakeDocker) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	labels := opts.Filters.Get("label")
	f.listFilters = append(f.listFilters, labels...)
	if f.listErr != nil {
		return nil, f.listErr
	}
	for _, l := range labels {
		if svc, ok := strings.CutPrefix(l, composeServiceLabel+"="); ok {
			return f.containers[svc], nil
		}
	}
	return nil, nil
}

func (f *fakeDocker) ContainerRestart(_ context.Context, id string, opts container.StopOptions) error {
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarted = append(f.restarted, id)
	if opts.Timeout != nil {
		f.timeouts = append(f.timeouts, *opts.Timeout)
	}
	return nil
}

func newDockerServer(t *testing.T, docker ContainerClient, mutate func(o *Options)) *Server {
	t.Helper()
	s, _ := newTestServer(t, mutate)
	s.docker = docker
	return s
}

type restartResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Restarted []string `json:"restarted"`
	Errors    []string `json:"errors"`
}

func TestRestartRejectsInvalidServices(t *testing.T) {
	t.Parallel()

	fake := &fakeDocker{}
	s := newDockerServer(t, fake, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/restart/", map[string]any{"services": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty services: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/restart/", map[string]any{"services": []string{"database"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown service: status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid service") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	if len(fake.listFilters) != 0 {
		t.Fatal("docker was queried for a rejected request")
	}
}

func TestRestartWithoutDocker(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/restart/scheduler", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestRestartScheduler(t *testing.T) {
	t.Parallel()

	fake := &fakeDocker{containers: map[string][]container.Summary{
		"scheduler": {{ID: "0123456789abcdef", Names: []string{"/memories-scheduler-1"}}},
	}}
	s := newDockerServer(t, fake, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/restart/scheduler", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp restartResponse
	decodeJSON(t, rec, &resp)
	if !resp.Success || len(resp.Restarted) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Restarted[0] != "scheduler (memories-scheduler-1)" {
		t.Fatalf("restarted = %v", resp.Restarted)
	}

	if len(fake.restarted) != 1 || fake.restarted[0] != "0123456789abcdef" {
		t.Fatalf("restarted containers = %v", fake.restarted)
	}
	if len(fake.timeouts) != 1 || fake.timeouts[0] != restartStopSeconds {
		t.Fatalf("stop timeouts = %v, want [%d]", fake.timeouts, restartStopSeconds)
	}

	wantFilter := composeServiceLabel + "=scheduler"
	found := false
	for _, f := range fake.listFilters {
		if f == wantFilter {
			found = true
		}
	}
	if !found {
		t.Fatalf("list filters = %v, missing %q", fake.listFilters, wantFilter)
	}
}

func TestRestartAll(t *testing.T) {
	t.Parallel()

	fake := &fakeDocker{containers: map[string][]container.Summary{
		"scheduler": {{ID: "aaa111aaa111aaa1", Names: []string{"/memories-scheduler-1"}}},
		"dashboard": {{ID: "bbb222bbb222bbb2", Names: []string{"/memories-dashboard-1"}}},
	}}
	s := newDockerServer(t, fake, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/restart/all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp restartResponse
	decodeJSON(t, rec, &resp)
	if !resp.Success || len(resp.Restarted) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Message != "Services scheduler, dashboard restarted" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestRestartNoContainersFound(t *testing.T) {
	t.Parallel()

	s := newDockerServer(t, &fakeDocker{}, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/restart/", map[string]any{"services": []string{"notify"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp restartResponse
	decodeJSON(t, rec, &resp)
	if resp.Success {
		t.Fatal("success = true with nothing restarted")
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "notify: no containers found" {
		t.Fatalf("errors = %v", resp.Errors)
	}
	if resp.Message != "Restart completed with errors" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestRestartListError(t *testing.T) {
	t.Parallel()

	fake := &fakeDocker{listErr: errors.New("daemon unreachable")}
	s := newDockerServer(t, fake, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/restart/scheduler", nil)
	var resp restartResponse
	decodeJSON(t, rec, &resp)
	if resp.Success || len(resp.Errors) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(resp.Errors[0], "daemon unreachable") {
		t.Fatalf("errors = %v", resp.Errors)
	}
}

func TestRestartScopedToComposeProject(t *testing.T) {
	t.Parallel()

	fake := &fakeDocker{containers: map[string][]container.Summary{
		"scheduler": {{ID: "ccc333ccc333ccc3"}},
	}}
	s := newDockerServer(t, fake, func(o *Options) { o.ComposeProject = "memories" })

	doRequest(t, s, http.MethodPost, "/api/restart/scheduler", nil)

	wantFilter := composeProjectLabel + "=memories"
	found := false
	for _, f := range fake.listFilters {
		if f == wantFilter {
			found = true
		}
	}
	if !found {
		t.Fatalf("list filters = %v, missing %q", fake.listFilters, wantFilter)
	}
}
