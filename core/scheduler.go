package core

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = time.Hour
	maxBackoffJitter   = time.Second
)

// ExponentialBackoffScheduler computes base * 2^attempt plus up to one
// second of jitter, capped at Max. Jitter spreads synchronized retries from
// a burst of failures across the poll window.
type ExponentialBackoffScheduler struct {
	Base time.Duration
	Max  time.Duration
	// Jitter overrides the random jitter source; tests use it for
	// deterministic delays.
	Jitter func() time.Duration

	once sync.Once
	rng  *rand.Rand
	mu   sync.Mutex
}

func (s *ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := s.Base
	if base <= 0 {
		base = defaultBaseBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	return delay + s.jitter()
}

func (s *ExponentialBackoffScheduler) jitter() time.Duration {
	if s.Jitter != nil {
		jitter := s.Jitter()
		if jitter < 0 {
			return 0
		}
		if jitter > maxBackoffJitter {
			return maxBackoffJitter
		}
		return jitter
	}
	s.once.Do(func() {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rng.Int63n(int64(maxBackoffJitter) + 1))
}

var _ RetryBackoffScheduler = (*ExponentialBackoffScheduler)(nil)
