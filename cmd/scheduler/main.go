package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/content"
	"github.com/ismaildakrory/immich-memories-notify/internal/dispatch"
	"github.com/ismaildakrory/immich-memories-notify/internal/history"
	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/ntfy"
	"github.com/ismaildakrory/immich-memories-notify/internal/scheduler"
	"github.com/ismaildakrory/immich-memories-notify/internal/state"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

type env struct {
	ConfigPath string `envconfig:"CONFIG_PATH" default:"./config.yaml"`
}

func main() {
	os.Exit(run())
}

func run() int {
	// Secrets referenced by ${VAR} in the config usually live in a .env
	// beside it.
	_ = godotenv.Load()

	var e env
	if err := envconfig.Process("", &e); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	cm := config.NewConfigManager(e.ConfigPath)
	cfg, err := cm.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	svc, log := logx.New(logConfig(cfg))
	defer svc.Close()
	cm.SetLogger(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Slot runs never overlap, so every dispatch can share this source.
	// The scheduler seeds its own for the concurrent window draws.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Dispatch always reads the freshest committed config, not the one the
	// cron entries were built from.
	runSlot := func(ctx context.Context, slot int) error {
		return dispatchSlot(ctx, cm.Get(), log, rng, slot)
	}

	sched := scheduler.New(cfg, log, runSlot, nil)
	if err := sched.Start(ctx); err != nil {
		log.Error("scheduler start failed", logx.Err(err))
		return 1
	}

	log.Info("memories scheduler running",
		logx.String("config", cm.Path()),
		logx.Int("slots", sched.Entries()),
	)
	if desc := sched.Describe(); desc != "" {
		log.Debug("active schedule:\n" + desc)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady+"\n"+schedulerStatus(sched))

	updates := cm.Subscribe(1)
	defer cm.Unsubscribe(updates)
	go func() {
		for next := range updates {
			svc.Apply(logConfig(next))
			sched.Apply(next)
			_, _ = daemon.SdNotify(false, schedulerStatus(sched))
		}
	}()

	go func() {
		if err := cm.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	sched.Stop()
	return 0
}

func schedulerStatus(s *scheduler.Service) string {
	return fmt.Sprintf("STATUS=scheduling %d slots", s.Entries())
}

func logConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{Level: cfg.Settings.Level(), Console: true}
	if cfg.Settings.LogFile != "" {
		lc.File = logx.FileConfig{Enabled: true, Path: cfg.Settings.LogFile}
	}
	return lc
}

// dispatchSlot runs one slot for all users. The history store is opened per
// run so the scheduler survives config edits that move or disable it.
func dispatchSlot(ctx context.Context, cfg *config.Config, log logx.Logger, rng *rand.Rand, slot int) error {
	var hist history.Store
	if h := cfg.Settings.History; h != nil {
		busy, err := h.BusyDuration()
		if err != nil {
			return err
		}
		hist, err = history.Open(history.Config{Driver: h.Driver, Path: h.Path, BusyTimeout: busy}, log)
		if err != nil {
			return err
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

	res, err := runner.Run(ctx, dispatch.Options{Slot: slot})
	if err != nil {
		return err
	}
	if !res.AllOK() {
		return fmt.Errorf("%d/%d users successful", res.Succeeded, res.Total)
	}
	return nil
}
