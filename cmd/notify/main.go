package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/content"
	"github.com/ismaildakrory/immich-memories-notify/internal/dispatch"
	"github.com/ismaildakrory/immich-memories-notify/internal/history"
	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/ntfy"
	"github.com/ismaildakrory/immich-memories-notify/internal/state"
	"github.com/ismaildakrory/immich-memories-notify/internal/window"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		slot    int
		cfgPath string
		test    bool
		dryRun  bool
		force   bool
		noDelay bool
		date    string
		user    string
	)
	flag.IntVar(&slot, "slot", 0, "slot number to dispatch (1-based, required)")
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.BoolVar(&test, "test", false, "send marked test notifications without recording state")
	flag.BoolVar(&dryRun, "dry-run", false, "log what would be sent without sending")
	flag.BoolVar(&force, "force", false, "send even if this slot already went out today")
	flag.BoolVar(&noDelay, "no-delay", false, "skip the notification window delay")
	flag.StringVar(&date, "date", "", "target date YYYY-MM-DD (default today)")
	flag.StringVar(&user, "user", "", "process only this user")
	flag.Parse()

	if slot < 1 {
		fmt.Fprintln(os.Stderr, "a slot number >= 1 is required (-slot)")
		flag.Usage()
		return 2
	}

	// Secrets referenced by ${VAR} in the config usually live in a .env
	// beside it.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	logCfg := logx.Config{Level: cfg.Settings.Level(), Console: true}
	if cfg.Settings.LogFile != "" {
		logCfg.File = logx.FileConfig{Enabled: true, Path: cfg.Settings.LogFile}
	}
	svc, log := logx.New(logCfg)
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if !noDelay {
		if err := waitForWindow(ctx, cfg, log, rng, slot, test); err != nil {
			log.Warn("interrupted while waiting for window", logx.Err(err))
			return 1
		}
	}

	var hist history.Store
	if h := cfg.Settings.History; h != nil {
		busy, err := h.BusyDuration()
		if err != nil {
			log.Error("invalid history busy_timeout", logx.Err(err))
			return 1
		}
		hist, err = history.Open(history.Config{Driver: h.Driver, Path: h.Path, BusyTimeout: busy}, log)
		if err != nil {
			log.Error("failed to open history store", logx.Err(err))
			return 1
		}
		if hist != nil {
			defer hist.Close()
		}
	}

	runner := &dispatch.Runner{
		Cfg: cfg,
		Log: log,
		Library: func(apiKey string) content.Library {
			return immich.NewClient(cfg.Immich.URL, apiKey, log)
		},
		Push:    ntfy.NewClient(cfg.Ntfy.URL, log),
		States:  state.NewStore(cfg.Settings.StatePath(), log),
		History: hist,
		Rng:     rng,
		Now:     time.Now,
	}

	res, err := runner.Run(ctx, dispatch.Options{
		Slot:   slot,
		Date:   date,
		Test:   test,
		DryRun: dryRun,
		Force:  force,
		User:   user,
	})
	if err != nil {
		log.Error("run aborted", logx.Err(err))
		return 1
	}
	if !res.AllOK() {
		return 1
	}
	return 0
}

// waitForWindow blocks for the slot's randomized delay. Test runs wait a
// few seconds regardless of windows; a slot with no configured window
// sends immediately.
func waitForWindow(ctx context.Context, cfg *config.Config, log logx.Logger, rng *rand.Rand, slot int, test bool) error {
	var d time.Duration
	if test {
		d = window.TestDelay(rng)
	} else {
		w, ok := cfg.Settings.SlotWindow(slot)
		if !ok {
			return nil
		}
		loc, err := cfg.Settings.Location()
		if err != nil {
			return err
		}
		d = window.Delay(w, time.Now().In(loc), rng)
	}
	if d <= 0 {
		return nil
	}

	log.Info("waiting before send", logx.Duration("delay", d), logx.Int("slot", slot))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
