package orchestrator

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// backoff computes jittered exponential delays between attempts. Jitter
// keeps retried challenge attempts from landing on the portal's edge at
// metronome intervals.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// delay returns the wait before the attempt following the given one: half
// the capped exponential plus a random share of the other half.
func (b *backoff) delay(attempt int) time.Duration {
	d := float64(b.base) * math.Pow(2, float64(attempt-1))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	half := time.Duration(d) / 2
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
