package service

import (
	"sync"
	"time"
)

// scheduler keeps at most one pending callback per key. Scheduling a key
// again cancels the earlier callback; a callback whose timer already fired
// but was superseded is dropped by the generation check.
type scheduler struct {
	mu      sync.Mutex
	gen     int64
	timers  map[string]scheduled
	stopped bool
}

type scheduled struct {
	gen   int64
	timer *time.Timer
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[string]scheduled)}
}

func (s *scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	s.timers[key] = scheduled{
		gen: gen,
		timer: time.AfterFunc(d, func() {
			if s.take(key, gen) {
				fn()
			}
		}),
	}
}

func (s *scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.timers[key]; ok {
		cur.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels everything and ignores later Schedule calls.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, cur := range s.timers {
		cur.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *scheduler) take(key string, gen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.timers[key]
	if !ok || cur.gen != gen {
		return false
	}
	delete(s.timers, key)
	return true
}
