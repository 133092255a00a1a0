package annexurefeed

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AnnexureFeedRepository appends to and reads the per-run sequencing
// ledger shared by both registrars.
type AnnexureFeedRepository interface {
	BulkInsert(ctx context.Context, entries []models.AnnexureFeedEntry) error
	MaxBatchNumberForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
	CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
}

// Repository implements AnnexureFeedRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new annexure feed repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "annexure_feed"

// BulkInsert appends the run's ledger rows in one statement.
func (r *Repository) BulkInsert(ctx context.Context, entries []models.AnnexureFeedEntry) error {
	ctx, span := tracing.StartSpan(ctx, "AnnexureFeedRepository.BulkInsert")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	now := time.Now()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("rta_id", "account_id", "batch_number", "batch_sequence_number", "created_at")
	for _, e := range entries {
		sb.Values(e.RTAID, e.AccountID, e.BatchNumber, e.BatchSequenceNumber, now)
	}

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to insert annexure feed entries")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert annexure feed entries")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entries": len(entries),
	}).Info("inserted annexure feed entries")

	return nil
}

// MaxBatchNumberForDay returns the highest batch number recorded for a
// registrar on the given day, or zero when none exists.
func (r *Repository) MaxBatchNumberForDay(ctx context.Context, rtaID int64, day time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "AnnexureFeedRepository.MaxBatchNumberForDay")
	defer span.End()

	from, to := dayWindow(day)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COALESCE(MAX(batch_number), 0)")
	sb.From(tableName)
	sb.Where(
		sb.Equal("rta_id", rtaID),
		sb.GreaterEqualThan("created_at", from),
		sb.LessThan("created_at", to),
	)

	query, args := sb.Build()

	var max int
	if err := r.db.GetContext(ctx, &max, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to read max batch number")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read max batch number")
	}
	return max, nil
}

// CountForDay counts ledger rows recorded for a registrar on the given day.
func (r *Repository) CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "AnnexureFeedRepository.CountForDay")
	defer span.End()

	from, to := dayWindow(day)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(
		sb.Equal("rta_id", rtaID),
		sb.GreaterEqualThan("created_at", from),
		sb.LessThan("created_at", to),
	)

	query, args := sb.Build()

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count annexure feed entries")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count annexure feed entries")
	}
	return count, nil
}

func dayWindow(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour)
}
