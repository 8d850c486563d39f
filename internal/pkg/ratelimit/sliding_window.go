package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow caps calls to at most limit per window. Shared by all
// account pipelines talking to the same venue.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	nowFn  func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindow{limit: limit, window: window, nowFn: time.Now}
}

// Allow records and admits the call if the window has room.
func (s *SlidingWindow) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	s.evict(now)
	if len(s.stamps) >= s.limit {
		return false
	}
	s.stamps = append(s.stamps, now)
	return true
}

// Wait blocks until the window has room or ctx is cancelled.
func (s *SlidingWindow) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		now := s.nowFn()
		s.evict(now)
		if len(s.stamps) < s.limit {
			s.stamps = append(s.stamps, now)
			s.mu.Unlock()
			return nil
		}
		sleep := s.stamps[0].Add(s.window).Sub(now)
		s.mu.Unlock()
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.stamps) && !s.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.stamps = append(s.stamps[:0], s.stamps[i:]...)
	}
}
