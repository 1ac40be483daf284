// Package backoff implements the exponential-backoff-with-jitter timer
// used by subchannel reconnection and resolver-failure retry (spec.md
// §4.7, §4.8). The jitter source is golang.org/x/exp/rand, following
// the teacher's go.mod which carries golang.org/x/exp as a dependency
// of its retry/backoff-adjacent transport code.
package backoff

import (
	"time"

	"golang.org/x/exp/rand"
)

// Config mirrors the common grpc-go backoff.Config shape: an initial
// delay, a per-attempt multiplier, jitter fraction, and a cap.
type Config struct {
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     float64
	MaxDelay   time.Duration
}

// DefaultConfig matches the values real grpc clients use.
var DefaultConfig = Config{
	BaseDelay:  1.0 * time.Second,
	Multiplier: 1.6,
	Jitter:     0.2,
	MaxDelay:   120 * time.Second,
}

// Strategy computes successive backoff delays for retry attempt
// counts starting at 0.
type Strategy struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg, rng: rand.New(rand.NewSource(uint64(time.Now().UnixNano())))}
}

// Backoff returns the delay to wait before retry attempt n (0-based).
func (s *Strategy) Backoff(retries int) time.Duration {
	if retries == 0 {
		return s.jitter(s.cfg.BaseDelay)
	}
	backoff, max := float64(s.cfg.BaseDelay), float64(s.cfg.MaxDelay)
	for backoff < max && retries > 0 {
		backoff *= s.cfg.Multiplier
		retries--
	}
	if backoff > max {
		backoff = max
	}
	return s.jitter(time.Duration(backoff))
}

func (s *Strategy) jitter(d time.Duration) time.Duration {
	if s.cfg.Jitter == 0 {
		return d
	}
	delta := s.cfg.Jitter * float64(d)
	min, max := float64(d)-delta, float64(d)+delta
	return time.Duration(min + (max-min)*s.rng.Float64())
}
