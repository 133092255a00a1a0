package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrSweeperAlreadyRunning is returned when starting a running sweeper.
var ErrSweeperAlreadyRunning = errors.New("reconcile sweeper already running")

const (
	// DefaultSweepInterval is the default interval between sweeps
	DefaultSweepInterval = 15 * time.Minute

	// DefaultClaimMaxAge is how long an inactive claim may linger before
	// it is expired
	DefaultClaimMaxAge = 24 * time.Hour

	// sweepLockKey serializes the sweep across service instances
	sweepLockKey = "reconcile:nominee"

	sweepLockTTL = time.Minute
)

// SweeperConfig holds configuration for the reconciliation sweeper.
type SweeperConfig struct {
	Interval    time.Duration
	ClaimMaxAge time.Duration
}

// Sweeper periodically expires nominee claim rows whose archive never
// landed. The originating order items keep their unset idempotency flag,
// so the next nominee batch regenerates them.
type Sweeper struct {
	claims NomineeClaims
	locker LockProvider
	config SweeperConfig
	logger ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(claims NomineeClaims, locker LockProvider, config SweeperConfig, logger ectologger.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.ClaimMaxAge <= 0 {
		config.ClaimMaxAge = DefaultClaimMaxAge
	}

	return &Sweeper{
		claims:   claims,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSweeperAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting reconcile sweeper: interval=%s claim_max_age=%s",
		s.config.Interval, s.config.ClaimMaxAge)

	go s.sweepLoop(ctx)
	return nil
}

// Stop stops the sweeper gracefully.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Reconcile sweeper stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Reconcile sweeper shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep under the cross-instance lock. A held
// lock means another instance is sweeping; that is not an error.
func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "generation.Sweeper.RunOnce")
	defer span.End()

	err := s.locker.WithLock(ctx, sweepLockKey, sweepLockTTL, func() error {
		cutoff := time.Now().Add(-s.config.ClaimMaxAge)
		expired, err := s.claims.ExpireStaleClaims(ctx, cutoff)
		if err != nil {
			return err
		}
		if expired > 0 {
			metrics.ReconciledClaimsTotal.Add(float64(expired))
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"expired": expired,
			}).Info("expired stale nominee claims")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			s.logger.WithContext(ctx).Debug("Reconcile sweep already running elsewhere")
			return
		}
		s.logger.WithContext(ctx).WithError(err).Error("Reconcile sweep failed")
	}
}
