package internal

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	rngMu.Lock()
	v := rng.Int63n(n)
	rngMu.Unlock()
	return v
}

// reconnectDelay paces reconnect attempts: wait * factor^(attempt-1),
// capped at max, with a uniform jitter. A zero ReconnectWait means
// retries happen immediately.
func reconnectDelay(o *Options, attempt int) time.Duration {
	if o.ReconnectWait <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(o.ReconnectWait) * math.Pow(o.ReconnectBackoffFactor, float64(attempt-1)))
	if o.ReconnectMaxWait > 0 && d > o.ReconnectMaxWait {
		d = o.ReconnectMaxWait
	}
	return applyJitter(d, o.ReconnectJitter)
}

// applyJitter shifts d uniformly within [-jitter, +jitter], never below zero.
func applyJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	j := time.Duration(randInt63n(int64(2*jitter)+1) - int64(jitter))
	if d+j < 0 {
		return d
	}
	return d + j
}
