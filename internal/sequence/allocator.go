// Package sequence allocates the per-day batch and sequence numbers
// embedded in registrar file names and annexure ledger rows. Allocation
// reads are serialized per registrar and day with a redis lock so two
// overlapping runs cannot hand out the same number.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// FeedLedger reads batch numbers and sequence counts from the annexure
// ledger.
type FeedLedger interface {
	MaxBatchNumberForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
	CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
}

// ClaimCounter counts nominee claims for the per-day document code.
type ClaimCounter interface {
	CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
}

// Locker serializes the allocation read-modify-write.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Allocator hands out batch numbers and day codes.
type Allocator struct {
	feed    FeedLedger
	claims  ClaimCounter
	locker  Locker
	lockTTL time.Duration
	logger  ectologger.Logger
}

// NewAllocator creates an allocator over the ledger and claim repositories.
func NewAllocator(feed FeedLedger, claims ClaimCounter, locker Locker, lockTTL time.Duration, logger ectologger.Logger) *Allocator {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Allocator{
		feed:    feed,
		claims:  claims,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

func lockKey(rtaID int64, day time.Time) string {
	return fmt.Sprintf("seq:%d:%s", rtaID, day.Format("20060102"))
}

// NextRunNumbers returns the day's next batch number and the first free
// batch sequence number for a registrar. The batch number is the highest
// recorded plus one; the first sequence number is the day's ledger row
// count plus one, so a run's rows continue where the previous run's
// stopped. Both reads happen under one lock per registrar and day.
func (a *Allocator) NextRunNumbers(ctx context.Context, rtaID int64, day time.Time) (int, int, error) {
	ctx, span := tracing.StartSpan(ctx, "sequence.Allocator.NextRunNumbers")
	defer span.End()

	var batch, firstSeq int
	err := a.locker.WithLock(ctx, lockKey(rtaID, day), a.lockTTL, func() error {
		max, err := a.feed.MaxBatchNumberForDay(ctx, rtaID, day)
		if err != nil {
			return err
		}
		batch = max + 1

		count, err := a.feed.CountForDay(ctx, rtaID, day)
		if err != nil {
			return err
		}
		firstSeq = count + 1
		return nil
	})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("failed to allocate run numbers")
		return 0, 0, err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"rta_id":         rtaID,
		"batch":          batch,
		"first_sequence": firstSeq,
	}).Info("allocated run numbers")

	return batch, firstSeq, nil
}

// NextDayCode returns the zero-padded four digit nominee document code
// for the day, counting existing claims plus one.
func (a *Allocator) NextDayCode(ctx context.Context, rtaID int64, day time.Time) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "sequence.Allocator.NextDayCode")
	defer span.End()

	var code string
	err := a.locker.WithLock(ctx, lockKey(rtaID, day), a.lockTTL, func() error {
		count, err := a.claims.CountForDay(ctx, rtaID, day)
		if err != nil {
			return err
		}
		code = fmt.Sprintf("%04d", count+1)
		return nil
	})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("failed to allocate day code")
		return "", err
	}
	return code, nil
}

// check the redis Locker satisfies the interface
var _ Locker = (*redis.Locker)(nil)
