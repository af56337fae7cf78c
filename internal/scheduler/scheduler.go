// Package scheduler turns the configured notification windows into cron
// entries. Each entry fires at its window's start and hands the in-window
// wait plus the slot dispatch to its own goroutine, so cron job bodies
// return immediately and stopping a table never waits out a window.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/window"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// RunSlotFunc executes one slot dispatch.
type RunSlotFunc func(ctx context.Context, slot int) error

type Service struct {
	log     logx.Logger
	runSlot RunSlotFunc
	now     func() time.Time
	parser  cron.Parser

	// rngMu guards rng: windows may share a start time, so delay draws
	// happen concurrently.
	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	cfg       *config.Config
	loc       *time.Location
	c         *cron.Cron
	ctx       context.Context // service lifetime; parent of every table context
	stop      context.CancelFunc
	tableCtx  context.Context // current cron table; canceled on rebuild and stop
	tableStop context.CancelFunc

	// slot runs never overlap
	runMu sync.Mutex
}

func New(cfg *config.Config, log logx.Logger, runSlot RunSlotFunc, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		log:     log,
		runSlot: runSlot,
		rng:     rng,
		now:     time.Now,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:     cfg,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.stop = context.WithCancel(ctx)
	return s.startLocked()
}

func (s *Service) Stop() {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	s.stop()
	s.stopTableLocked()
	s.mu.Unlock()

	// A dispatch already past its wait runs with a canceled context now;
	// hold the door until it returns. Taken outside s.mu because fire
	// acquires the locks in the other order.
	s.runMu.Lock()
	s.log.Info("scheduler stopped")
	s.runMu.Unlock()
}

// Apply swaps in a reloaded config. The cron table is rebuilt only when
// the windows or timezone actually changed; other settings take effect on
// the next firing via the shared config. A rebuild abandons waits pending
// for the old windows; a dispatch that already started finishes.
func (s *Service) Apply(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rebuild := s.cfg == nil ||
		!reflect.DeepEqual(s.cfg.Settings.NotificationWindows, cfg.Settings.NotificationWindows) ||
		s.cfg.Settings.Timezone != cfg.Settings.Timezone
	s.cfg = cfg

	if !rebuild || s.c == nil {
		return
	}
	s.stopTableLocked()
	if err := s.startLocked(); err != nil {
		s.log.Error("failed to rebuild schedule", logx.Err(err))
	}
}

// stopTableLocked tears down the current cron table. Canceling the table
// context releases every pending in-window wait; job bodies are instant,
// so the cron drain returns at once.
func (s *Service) stopTableLocked() {
	s.tableStop()
	<-s.c.Stop().Done()
	s.c = nil
}

func (s *Service) startLocked() error {
	loc, err := s.cfg.Settings.Location()
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local",
			logx.String("tz", s.cfg.Settings.Timezone), logx.Err(err))
		loc = time.Local
	}
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.tableCtx, s.tableStop = context.WithCancel(s.ctx)

	ctx := s.tableCtx
	windows := s.cfg.Settings.NotificationWindows
	for i, w := range windows {
		slot := i + 1
		w := w
		if _, err := s.c.AddFunc(specFor(w), func() { go s.fire(ctx, slot, w) }); err != nil {
			return fmt.Errorf("schedule slot %d (%s): %w", slot, w, err)
		}
	}

	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("slots", len(windows)), logx.String("tz", loc.String()))
	return nil
}

// specFor fires at the window's opening minute, daily.
func specFor(w window.Window) string {
	return fmt.Sprintf("%d %d * * *", w.Start.Minute, w.Start.Hour)
}

// fire waits a random offset inside the window, then dispatches the slot.
// ctx is the table context: a rebuild or shutdown abandons the wait. The
// dispatch itself runs on the service context, so a reload arriving
// mid-send does not cut it off.
func (s *Service) fire(ctx context.Context, slot int, w window.Window) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()

	s.rngMu.Lock()
	delay := window.Delay(w, s.now().In(loc), s.rng)
	s.rngMu.Unlock()

	log := s.log.With(logx.Int("slot", slot), logx.String("window", w.String()))
	if delay > 0 {
		log.Info("slot due, waiting inside window", logx.Duration("delay", delay))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Debug("window wait abandoned")
			return
		case <-t.C:
		}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	// the table may have been replaced while this fire slept or queued
	// behind another run
	if ctx.Err() != nil {
		log.Debug("window wait abandoned")
		return
	}
	s.mu.Lock()
	runCtx := s.ctx
	s.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return
	}

	start := time.Now()
	if err := s.runSlot(runCtx, slot); err != nil {
		log.Error("slot dispatch failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	log.Info("slot dispatch complete", logx.Duration("took", time.Since(start)))
}

// Entries reports the scheduled slot count, for health reporting.
func (s *Service) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return 0
	}
	return len(s.c.Entries())
}

// Describe renders the active schedule, one line per slot.
func (s *Service) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return ""
	}
	var b strings.Builder
	for i, w := range s.cfg.Settings.NotificationWindows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "slot %d: %s", i+1, w)
	}
	return b.String()
}
