package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

const (
	triggerTimeout = 2 * time.Minute
	triggerTailLen = 2000
	maxTriggerSlot = 10
)

// handleTrigger runs the notify binary for one slot in test mode. The run
// inherits the dashboard's environment, so the same secrets resolve.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil || slot < 1 || slot > maxTriggerSlot {
		Error(w, http.StatusBadRequest, fmt.Sprintf("slot must be between 1 and %d", maxTriggerSlot))
		return
	}
	q := r.URL.Query()
	dryRun, _ := strconv.ParseBool(q.Get("dry_run"))
	user := q.Get("user")

	args := []string{
		"--config", s.opts.ConfigPath,
		"--slot", strconv.Itoa(slot),
		"--test",
		"--no-delay",
	}
	if dryRun {
		args = append(args, "--dry-run")
	}
	if user != "" {
		args = append(args, "--user", user)
	}

	s.log.Info("test trigger",
		logx.Int("slot", slot),
		logx.Bool("dry_run", dryRun),
		logx.String("user", user),
	)

	ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
	defer cancel()
	out, runErr := exec.CommandContext(ctx, s.opts.NotifyBin, args...).CombinedOutput()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		Error(w, http.StatusGatewayTimeout, "notify run timed out")
		return
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		// ran to completion with a non-zero exit; reported below
	default:
		Error(w, http.StatusInternalServerError, "failed to run notify: "+runErr.Error())
		return
	}

	success := runErr == nil
	message := fmt.Sprintf("Test notification for slot %d sent successfully", slot)
	if dryRun && success {
		message = fmt.Sprintf("Test notification for slot %d simulated successfully", slot)
	}
	if !success {
		message = fmt.Sprintf("Test notification failed with exit code %d", exitErr.ExitCode())
	}

	resp := map[string]any{"success": success, "message": message}
	if len(out) > 0 {
		resp["output"] = tail(string(out), triggerTailLen)
	}
	JSON(w, http.StatusOK, resp)
}

type slotInfo struct {
	Number int    `json:"number"`
	Kind   string `json:"kind"`
	Window string `json:"window,omitempty"`
}

// handleSlots describes the configured slot layout instead of a fixed list.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	memory := cfg.Settings.MemorySlots()
	person := cfg.Settings.PersonSlots()
	fallback := cfg.Settings.FallbackSlots()
	total := memory + person
	if fallback > total {
		total = fallback
	}

	slots := make([]slotInfo, 0, total)
	for i := 1; i <= total; i++ {
		kind := "fallback"
		switch {
		case i <= memory:
			kind = "memory"
		case i <= memory+person:
			kind = "person"
		}
		info := slotInfo{Number: i, Kind: kind}
		if win, ok := cfg.Settings.SlotWindow(i); ok {
			info.Window = win.String()
		}
		slots = append(slots, info)
	}

	JSON(w, http.StatusOK, map[string]any{
		"slots": slots,
		"note": fmt.Sprintf(
			"Slots 1-%d send memories and %d-%d person photos; on days without memories the first %d slots fall back to person photos",
			memory, memory+1, memory+person, fallback,
		),
	})
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
