// Package dispatch runs one notification slot across all enabled users:
// eligibility gate, content selection, delivery, and state recording.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
	"github.com/ismaildakrory/immich-memories-notify/internal/content"
	"github.com/ismaildakrory/immich-memories-notify/internal/history"
	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/ntfy"
	"github.com/ismaildakrory/immich-memories-notify/internal/retry"
	"github.com/ismaildakrory/immich-memories-notify/internal/state"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Tags attached to every notification.
var notificationTags = []string{"camera", "calendar"}

// How many distinct dates a test run scans for content when today has
// no memories.
const testDateScanLimit = 10

// Pusher is the delivery surface the runner needs; *ntfy.Client
// satisfies it.
type Pusher interface {
	Upload(ctx context.Context, creds ntfy.Credentials, data []byte) (string, error)
	Publish(ctx context.Context, creds ntfy.Credentials, msg ntfy.Message) error
}

// Options select what a run does.
type Options struct {
	Slot   int
	Date   string // YYYY-MM-DD; empty means today
	Test   bool   // send marked test notifications, never record state
	DryRun bool   // log instead of sending, never save state
	Force  bool   // ignore the already-sent gate
	User   string // restrict to one user; empty means all
}

// Result summarizes a run.
type Result struct {
	Succeeded int
	Total     int // enabled users processed
}

// AllOK reports whether every processed user succeeded. A run with no
// enabled users counts as OK.
func (r Result) AllOK() bool { return r.Succeeded == r.Total }

// Runner executes slot dispatches. All collaborators are injected;
// tests swap in fakes.
type Runner struct {
	Cfg     *config.Config
	Log     logx.Logger
	Library func(apiKey string) content.Library
	Push    Pusher
	States  *state.Store
	History history.Store
	Rng     *rand.Rand
	Now     func() time.Time
}

// Run processes every enabled user for one slot, strictly in
// configuration order. One user's failure never stops the next. State is
// saved once at the end unless this is a dry run.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Rng == nil {
		r.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	loc, err := r.Cfg.Settings.Location()
	if err != nil {
		return Result{}, fmt.Errorf("resolve timezone: %w", err)
	}
	date := opts.Date
	if date == "" {
		date = r.Now().In(loc).Format("2006-01-02")
	}

	var users []config.UserConfig
	for _, u := range r.Cfg.Users {
		if !u.IsEnabled() {
			r.Log.Debug("skipping disabled user", logx.String("user", u.Name))
			continue
		}
		if opts.User != "" && u.Name != opts.User {
			continue
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		r.Log.Warn("no enabled users to process")
		return Result{}, nil
	}

	st, err := r.States.Load()
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: len(users)}
	for _, u := range users {
		if r.runUser(ctx, st, u, date, opts) {
			res.Succeeded++
		}
	}

	if opts.DryRun {
		r.Log.Info("dry run, not saving state")
	} else if err := r.States.Save(st); err != nil {
		r.Log.Error("failed to save state", logx.Err(err))
	}

	r.Log.Info(fmt.Sprintf("%d/%d users successful", res.Succeeded, res.Total),
		logx.Int("slot", opts.Slot), logx.String("date", date))
	return res, nil
}

// runUser walks one user through the slot state machine. The returned
// bool is per-user success; an eligible slot with nothing to send is a
// successful no-op.
func (r *Runner) runUser(ctx context.Context, st *state.State, u config.UserConfig, date string, opts Options) bool {
	log := r.Log.With(logx.String("user", u.Name), logx.Int("slot", opts.Slot))
	start := r.Now()

	if u.ImmichAPIKey == "" {
		log.Error("missing photo API key")
		return false
	}
	if !st.Eligible(u.Name, date, opts.Slot, opts.Force, opts.Test) {
		log.Info("slot already sent today")
		return true
	}

	pol := r.Cfg.Settings.RetryPolicy()
	lib := r.Library(u.ImmichAPIKey)
	sel := content.NewSelector(r.Cfg, lib, log, r.Rng, r.Now)

	var mems []immich.Memory
	err := retry.Run(ctx, log, pol, "fetch memories", func(ctx context.Context) error {
		var err error
		mems, err = lib.Memories(ctx)
		return err
	})
	if err != nil {
		log.Error("fetching memories failed", logx.Err(err))
		return false
	}

	filtered := immich.FilterForDate(mems, date)
	if opts.Test && len(filtered) == 0 {
		// Test runs want to produce something; borrow another day's
		// memories without touching the real date's state.
		if altDate, alt, ok := immich.AnyDateWithMemories(mems, testDateScanLimit); ok {
			log.Info("no memories today, testing with another date", logx.String("date", altDate))
			filtered = alt
		}
	}

	digest := immich.BuildDigest(filtered)
	used := st.AssetsUsed(u.Name, date)

	selection, ok := sel.Pick(ctx, opts.Slot, digest, used)
	if !ok {
		log.Info("nothing to send for this slot")
		return true
	}

	n := sel.Render(ctx, selection, opts.Test)
	log = log.With(logx.String("kind", string(selection.Kind)), logx.String("asset", selection.Asset.ID))

	if opts.DryRun {
		log.Info(fmt.Sprintf("[DRY RUN] Would send: %s", n.Body), logx.String("title", n.Title))
		return true
	}

	creds := ntfy.Credentials{Username: u.NtfyUsername, Password: u.NtfyPassword}
	attach := r.uploadThumbnail(ctx, log, pol, lib, creds, selection.Asset.ID)

	msg := ntfy.Message{
		Topic:  u.NtfyTopic,
		Title:  n.Title,
		Body:   n.Body,
		Tags:   notificationTags,
		Click:  r.Cfg.ClickURL(),
		Attach: attach,
	}
	err = retry.Run(ctx, log, pol, "publish notification", func(ctx context.Context) error {
		return r.Push.Publish(ctx, creds, msg)
	})
	took := r.Now().Sub(start).Milliseconds()
	if err != nil {
		log.Error("sending notification failed", logx.Err(err))
		r.appendHistory(ctx, u.Name, date, opts, selection, n.Title, false, err, took)
		return false
	}

	if opts.Test {
		log.Info("test send delivered, state untouched")
	} else {
		st.RecordSend(u.Name, date, opts.Slot, selection.Asset.ID, r.Now())
	}
	r.appendHistory(ctx, u.Name, date, opts, selection, n.Title, true, nil, took)
	log.Info("notification sent", logx.Int64("took_ms", took))
	return true
}

// uploadThumbnail fetches and uploads the preview image. Every failure
// here degrades to "no attachment" rather than failing the send.
func (r *Runner) uploadThumbnail(ctx context.Context, log logx.Logger, pol retry.Policy, lib content.Library, creds ntfy.Credentials, assetID string) string {
	var thumb []byte
	err := retry.Run(ctx, log, pol, "fetch thumbnail", func(ctx context.Context) error {
		var err error
		thumb, err = lib.Thumbnail(ctx, assetID)
		return err
	})
	if err != nil {
		log.Warn("thumbnail unavailable, sending without attachment", logx.Err(err))
		return ""
	}
	if len(thumb) == 0 {
		return ""
	}

	var url string
	err = retry.Run(ctx, log, pol, "upload attachment", func(ctx context.Context) error {
		var err error
		url, err = r.Push.Upload(ctx, creds, thumb)
		return err
	})
	if err != nil {
		log.Warn("attachment upload failed, sending without attachment", logx.Err(err))
		return ""
	}
	return url
}

func (r *Runner) appendHistory(ctx context.Context, user, date string, opts Options, sel content.Selection, title string, ok bool, sendErr error, tookMS int64) {
	if r.History == nil {
		return
	}
	rec := history.SendRecord{
		At:      r.Now(),
		User:    user,
		Slot:    opts.Slot,
		Date:    date,
		Kind:    string(sel.Kind),
		AssetID: sel.Asset.ID,
		Year:    sel.Year,
		Person:  sel.Person,
		Title:   title,
		Test:    opts.Test,
		OK:      ok,
		TookMS:  tookMS,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := r.History.AppendSend(ctx, rec); err != nil {
		r.Log.Warn("failed to append send history", logx.Err(err))
	}
}
