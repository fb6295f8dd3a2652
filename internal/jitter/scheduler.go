package jitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// PoolSize is the number of pre-sampled delays.
const PoolSize = 20

// ErrInvalidRange is returned when the bounds do not form a valid interval.
// The maximum must be greater than the minimum and the minimum non-negative.
var ErrInvalidRange = errors.New("invalid delay range: need 0 <= min < max")

// Scheduler draws inter-query delays from a fixed pool.
// The pool is sorted ascending and never changes after construction.
type Scheduler struct {
	pool   []float64
	rng    *rand.Rand
	min    float64
	max    float64
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the random source used for sampling and drawing.
// Tests use it to make the pool reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

// WithLogger sets the logger that receives the pool at startup.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a Scheduler for the delay range [minSeconds, maxSeconds)
// and logs the sampled pool once.
func NewScheduler(minSeconds, maxSeconds float64, opts ...Option) (*Scheduler, error) {
	// Negated comparisons also reject NaN.
	if !(minSeconds >= 0) || !(maxSeconds > minSeconds) || math.IsInf(maxSeconds, 1) {
		return nil, fmt.Errorf("%w: min=%v max=%v", ErrInvalidRange, minSeconds, maxSeconds)
	}

	s := &Scheduler{
		min: minSeconds,
		max: maxSeconds,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // pacing, not security
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.pool = make([]float64, PoolSize)
	for i := range s.pool {
		raw := minSeconds + s.rng.Float64()*(maxSeconds-minSeconds)
		s.pool[i] = roundWithin(raw, minSeconds, maxSeconds)
	}
	slices.Sort(s.pool)

	s.logger.Info("generated delay pool",
		"min_seconds", minSeconds,
		"max_seconds", maxSeconds,
		"delays", s.pool,
	)

	return s, nil
}

// DividedBounds returns the delay bounds for a pool of proxies.
// With divide set and more than one proxy both bounds are divided by the
// pool size, so each proxy still sees roughly the undivided pace.
func DividedBounds(minSeconds, maxSeconds float64, proxies int, divide bool) (float64, float64) {
	if !divide || proxies <= 1 {
		return minSeconds, maxSeconds
	}
	n := float64(proxies)
	return minSeconds / n, maxSeconds / n
}

// roundWithin rounds v to one decimal place without leaving [lo, hi).
// A value that rounds up to hi or beyond is rounded down instead, one that
// rounds below lo is rounded up. When no tenth lies inside the interval
// v is kept as sampled.
func roundWithin(v, lo, hi float64) float64 {
	r := math.Round(v*10) / 10
	if r >= hi {
		r = math.Floor(v*10) / 10
	}
	if r < lo {
		r = math.Ceil(v*10) / 10
	}
	if r < lo || r >= hi {
		return v
	}
	return r
}

// Pool returns a copy of the sampled delays in seconds, ascending.
func (s *Scheduler) Pool() []float64 {
	return slices.Clone(s.pool)
}

// NextDelay draws one delay from the pool, uniformly and with replacement.
func (s *Scheduler) NextDelay() time.Duration {
	seconds := s.pool[s.rng.IntN(len(s.pool))]
	return time.Duration(seconds * float64(time.Second))
}

// Wait blocks for a drawn delay or until ctx is done.
// It returns the drawn delay, and ctx.Err() when the wait was interrupted.
func (s *Scheduler) Wait(ctx context.Context) (time.Duration, error) {
	d := s.NextDelay()
	s.logger.Info("sleeping before next query", "seconds", d.Seconds())

	if d <= 0 {
		return d, ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}
