package endpoint

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding the handler. While
// the breaker is open, messages are answered with 503 without calling the
// handler.
type BreakerConfig struct {
	Enabled bool

	// MaxRequests is the number of trial calls let through while half-open.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state after which counts
	// are cleared. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// The breaker trips once at least MinRequests calls were made and the
	// failure ratio reaches FailureRatio.
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     10 * time.Second,
		Timeout:      5 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func (c BreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return errors.New("endpoint: breaker failure_ratio must be in (0, 1]")
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return errors.New("endpoint: breaker durations must not be negative")
	}
	return nil
}

// newBreaker returns nil when the breaker is disabled.
func newBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	if !cfg.Enabled {
		return nil
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("handler breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](settings)
}

// isBreakerRejection reports whether err comes from the breaker refusing the
// call rather than from the handler.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
