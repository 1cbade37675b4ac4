package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerState is the circuit breaker position.
type BreakerState = gobreaker.State

const (
	Closed   = gobreaker.StateClosed
	Open     = gobreaker.StateOpen
	HalfOpen = gobreaker.StateHalfOpen
)

// ErrOpen is returned while the breaker fast-fails calls.
var ErrOpen = errors.New("external: circuit breaker is open")

// BreakerConfig tunes a breaker.
type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// Breaker stops calling a failing upstream for ResetTimeout after
// MaxFailures consecutive failures, then lets a single trial call through.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker returns a closed breaker that logs its state changes.
func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("breaker", name)
	maxFailures := uint32(cfg.MaxFailures)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// a caller giving up says nothing about the upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("breaker opened", "from", from.String())
				return
			}
			logger.Info("breaker state changed", "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	return b.cb.State()
}

// Execute runs op unless the breaker is open or its trial call is in flight.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return err
}
