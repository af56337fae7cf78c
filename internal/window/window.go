// Package window models the daily notification windows and the randomized
// send delay computed inside them.
package window

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, serialized as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

func Parse(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %d", minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid time of day: %s", string(b))
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

// At anchors the clock time on the calendar day of ref, in ref's location.
func (t TimeOfDay) At(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Window is one notification slot's delivery window. End must not come
// before Start; overnight windows are rejected at config validation.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

func (w Window) Valid() error {
	if w.End.Minutes() < w.Start.Minutes() {
		return fmt.Errorf("window %s: end before start (overnight windows are not supported)", w)
	}
	return nil
}

// Delay computes the wait before dispatching a slot, in whole seconds.
//
//   - now before the window: wait until the start, plus a uniformly random
//     offset anywhere inside the window
//   - now inside the window: a uniformly random offset between now and the end
//   - now past the window: zero, send immediately
func Delay(w Window, now time.Time, rng *rand.Rand) time.Duration {
	start := w.Start.At(now)
	end := w.End.At(now)

	switch {
	case now.Before(start):
		span := int64(end.Sub(start).Seconds())
		if span < 0 {
			span = 0
		}
		wait := int64(start.Sub(now).Seconds())
		return time.Duration(wait+rng.Int63n(span+1)) * time.Second
	case now.Before(end):
		span := int64(end.Sub(now).Seconds())
		return time.Duration(rng.Int63n(span+1)) * time.Second
	default:
		return 0
	}
}

// TestDelay is the short delay used by verification runs: a uniformly
// random 1-5 seconds, ignoring the window entirely.
func TestDelay(rng *rand.Rand) time.Duration {
	return time.Duration(1+rng.Int63n(5)) * time.Second
}
