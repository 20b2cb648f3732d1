package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memWindow struct {
	stamps   []time.Time
	lastSeen time.Time
}

// MemoryStore keeps windows in process memory. Idle windows are removed by a
// background sweeper; call Stop to end it.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow

	idleAfter time.Duration
	log       *zap.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewMemoryStore starts a store whose sweeper runs every sweepEvery and drops
// windows untouched for idleAfter. sweepEvery <= 0 disables the sweeper.
func NewMemoryStore(sweepEvery, idleAfter time.Duration, log *zap.Logger) *MemoryStore {
	if log == nil {
		log = zap.NewNop()
	}
	if idleAfter <= 0 {
		idleAfter = 5 * time.Minute
	}
	s := &MemoryStore{
		windows:   make(map[string]*memWindow),
		idleAfter: idleAfter,
		log:       log,
		stopCh:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) Allow(_ context.Context, key string, now time.Time, max int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &memWindow{}
		s.windows[key] = w
	}
	var d Decision
	w.stamps, d = slide(w.stamps, now, max, window)
	w.lastSeen = now
	return d, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep removes windows not seen since now-idleAfter.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.windows {
		if now.Sub(w.lastSeen) > s.idleAfter {
			delete(s.windows, k)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug("rate window sweep", zap.Int("removed", removed), zap.Int("remaining", len(s.windows)))
	}
}

func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
