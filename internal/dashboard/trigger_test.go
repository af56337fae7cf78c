package dashboard

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeNotifyBin(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTriggerRunsNotify(t *testing.T) {
	t.Parallel()

	bin := fakeNotifyBin(t, "#!/bin/sh\necho \"args: $@\"\nexit 0\n")
	s, _ := newTestServer(t, func(o *Options) { o.NotifyBin = bin })

	rec := doRequest(t, s, http.MethodPost, "/api/test/trigger/2?dry_run=true&user=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Output  string `json:"output"`
	}
	decodeJSON(t, rec, &resp)
	if !resp.Success {
		t.Fatalf("success = false: %+v", resp)
	}
	if resp.Message != "Test notification for slot 2 simulated successfully" {
		t.Fatalf("message = %q", resp.Message)
	}
	for _, want := range []string{"--slot 2", "--test", "--no-delay", "--dry-run", "--user alice"} {
		if !strings.Contains(resp.Output, want) {
			t.Fatalf("output %q missing %q", resp.Output, want)
		}
	}
}

func TestTriggerReportsExitCode(t *testing.T) {
	t.Parallel()

	bin := fakeNotifyBin(t, "#!/bin/sh\necho boom >&2\nexit 3\n")
	s, _ := newTestServer(t, func(o *Options) { o.NotifyBin = bin })

	rec := doRequest(t, s, http.MethodPost, "/api/test/trigger/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Output  string `json:"output"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Success {
		t.Fatal("success = true for a failing run")
	}
	if !strings.Contains(resp.Message, "exit code 3") {
		t.Fatalf("message = %q", resp.Message)
	}
	if !strings.Contains(resp.Output, "boom") {
		t.Fatalf("output = %q, want captured stderr", resp.Output)
	}
}

func TestTriggerRejectsBadSlot(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	for _, slot := range []string{"0", "11", "abc"} {
		rec := doRequest(t, s, http.MethodPost, "/api/test/trigger/"+slot, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("slot %q: status = %d, want 400", slot, rec.Code)
		}
	}
}

func TestTriggerMissingBinary(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(o *Options) {
		o.NotifyBin = filepath.Join(t.TempDir(), "does-not-exist")
	})
	rec := doRequest(t, s, http.MethodPost, "/api/test/trigger/1", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: %s", rec.Code, rec.Body.String())
	}
}

func TestSlotsFollowConfiguredLayout(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/test/slots", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Slots []slotInfo `json:"slots"`
		Note  string     `json:"note"`
	}
	decodeJSON(t, rec, &resp)

	if len(resp.Slots) != 5 {
		t.Fatalf("slots = %d, want 5 with default counts", len(resp.Slots))
	}
	if resp.Slots[0].Kind != "memory" || resp.Slots[0].Window != "09:00-11:00" {
		t.Fatalf("slot 1 = %+v", resp.Slots[0])
	}
	if resp.Slots[2].Kind != "memory" || resp.Slots[3].Kind != "person" || resp.Slots[4].Kind != "person" {
		t.Fatalf("slot kinds = %+v", resp.Slots)
	}
	if resp.Slots[1].Window != "" {
		t.Fatalf("slot 2 window = %q, want none configured", resp.Slots[1].Window)
	}
	if !strings.Contains(resp.Note, "Slots 1-3") {
		t.Fatalf("note = %q", resp.Note)
	}
}
