// Package coarsetime is a clock refreshed every 50ms by a background
// goroutine. Reading it costs an atomic load, which is what hot paths
// measuring waits want; precision below the tick is lost.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var now atomic.Pointer[time.Time]

func init() {
	t := time.Now()
	now.Store(&t)

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(&t)
		}
	}()
}

// Now returns the time of the last tick.
func Now() time.Time {
	return *now.Load()
}

// Since returns the coarse time elapsed since t, never negative.
func Since(t time.Time) time.Duration {
	d := Now().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}
