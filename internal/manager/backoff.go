package manager

import (
	"math/rand/v2"
	"time"
)

// BackoffConfig controls the reconnect delay curve.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // fraction of the delay, e.g. 0.2 for ±20%
}

// DefaultBackoff is the reconnect policy used when none is configured.
var DefaultBackoff = BackoffConfig{
	Initial: 2 * time.Second,
	Max:     60 * time.Second,
	Factor:  2,
	Jitter:  0.2,
}

// backoff produces capped exponential delays with jitter. Not safe for
// concurrent use; the manager calls it under its own lock.
type backoff struct {
	cfg  BackoffConfig
	next time.Duration
}

func newBackoff(cfg BackoffConfig) *backoff {
	if cfg.Initial <= 0 {
		cfg = DefaultBackoff
	}
	return &backoff{cfg: cfg, next: cfg.Initial}
}

// Next returns the delay before the next reconnect attempt and advances the
// curve. Retries continue indefinitely; only the delay is bounded.
func (b *backoff) Next() time.Duration {
	d := b.next

	grown := time.Duration(float64(b.next) * b.cfg.Factor)
	if grown > b.cfg.Max {
		grown = b.cfg.Max
	}
	b.next = grown

	if b.cfg.Jitter > 0 {
		span := float64(d) * b.cfg.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * span)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Reset returns the curve to its initial delay, called after a successful
// connection.
func (b *backoff) Reset() {
	b.next = b.cfg.Initial
}
