// Package throttle suppresses repeats of keyed events within a time window.
// Loops that hit the same failure on every iteration use it to log once per
// window instead of once per iteration.
package throttle

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Throttle tracks when each key last fired. Safe for concurrent use.
type Throttle struct {
	seen *cache.Cache
}

// New creates a Throttle with the given suppression window.
//
// Parameters:
//   - window: How long a key stays suppressed after it fired
//
// Returns:
//   - A new *Throttle
func New(window time.Duration) *Throttle {
	return &Throttle{
		seen: cache.New(window, 2*window),
	}
}

// Allow reports whether key has not fired within the window and, if so,
// starts a new window for it.
func (t *Throttle) Allow(key string) bool {
	return t.seen.Add(key, struct{}{}, cache.DefaultExpiration) == nil
}

// Forget ends the window for key early, e.g. once the failing operation
// succeeded.
func (t *Throttle) Forget(key string) {
	t.seen.Delete(key)
}
