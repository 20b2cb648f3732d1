// Package ratelimit implements a per-key sliding-window request counter.
//
// A window holds the timestamps of the requests accepted for a key during the
// last Window. A request is rejected once Max timestamps are inside the window;
// expired timestamps are dropped on every check. Stores decide where windows
// live: MemoryStore keeps them in-process (lost on restart, exact only for a
// single instance), FirestoreStore shares them across instances.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultMax    = 10
	DefaultWindow = time.Minute
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Count      int           // requests inside the window after this call
	Remaining  int           // requests left before rejection
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when rejected.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int((d.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// Store persists windows.
type Store interface {
	Allow(ctx context.Context, key string, now time.Time, max int, window time.Duration) (Decision, error)
}

type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
}

func New(store Store, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, max: max, window: window, now: time.Now}
}

func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.store.Allow(ctx, key, l.now(), l.max, l.window)
}

// slide drops timestamps older than window and, if room remains, records now.
// It returns the retained timestamps and the decision.
func slide(stamps []time.Time, now time.Time, max int, window time.Duration) ([]time.Time, Decision) {
	cutoff := now.Add(-window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= max {
		oldest := kept[0]
		for _, ts := range kept[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		return kept, Decision{
			Allowed:    false,
			Count:      len(kept),
			Remaining:  0,
			RetryAfter: oldest.Add(window).Sub(now),
		}
	}

	kept = append(kept, now)
	return kept, Decision{
		Allowed:   true,
		Count:     len(kept),
		Remaining: max - len(kept),
	}
}
