package nomineedocument

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

// NomineeDocumentRepository manages nominee claim rows. A claim is
// created inactive before the bundle is assembled and finalized only
// after upload succeeds, so stale inactive rows mark interrupted work.
type NomineeDocumentRepository interface {
	CreateClaim(ctx context.Context, doc *models.NomineeDocument) (*models.NomineeDocument, error)
	Finalize(ctx context.Context, id int64, appFileID int64, generatedDate time.Time) error
	CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error)
	ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repository implements NomineeDocumentRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new nominee document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "nominee_documents"

// CreateClaim inserts an inactive claim row for an order item before its
// archive is assembled.
func (r *Repository) CreateClaim(ctx context.Context, doc *models.NomineeDocument) (*models.NomineeDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "NomineeDocumentRepository.CreateClaim")
	defer span.End()

	now := time.Now()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("account_id", "rta_id", "service_provider_id", "remarks", "is_active", "created_at", "updated_at")
	sb.Values(doc.AccountID, doc.RTAID, doc.ServiceProviderID, doc.Remarks, false, now, now)
	sb.Returning("id")

	query, args := sb.Build()

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create nominee document claim")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create nominee document claim")
	}

	created := *doc
	created.ID = id
	created.IsActive = false
	created.CreatedAt = now
	created.UpdatedAt = now

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"nominee_document_id": id,
		"account_id":          doc.AccountID,
		"rta_id":              doc.RTAID,
	}).Info("created nominee document claim")

	return &created, nil
}

// Finalize activates a claim after its archive landed, linking the
// uploaded file and setting the tracking status.
func (r *Repository) Finalize(ctx context.Context, id int64, appFileID int64, generatedDate time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "NomineeDocumentRepository.Finalize")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("is_active", true),
		sb.Assign("status", models.DocumentStatusPending),
		sb.Assign("app_file_id", appFileID),
		sb.Assign("generated_date", generatedDate),
		sb.Assign("updated_at", time.Now()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to finalize nominee document")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finalize nominee document")
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "nominee document %d not found", id)
	}

	return nil
}

// CountForDay counts claim rows created for a registrar on the given day,
// feeding the per-day sequence code.
func (r *Repository) CountForDay(ctx context.Context, rtaID int64, day time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "NomineeDocumentRepository.CountForDay")
	defer span.End()

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

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
		r.logger.WithContext(ctx).WithError(err).Error("failed to count nominee documents")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count nominee documents")
	}
	return count, nil
}

// ExpireStaleClaims closes out inactive claims older than the cutoff that
// never received an archive. The originating order items keep their
// unset idempotency flag, so the next batch picks them up again.
func (r *Repository) ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NomineeDocumentRepository.ExpireStaleClaims")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("status", models.DocumentStatusExpired),
		sb.Assign("updated_at", time.Now()),
	)
	sb.Where(
		sb.Equal("is_active", false),
		sb.IsNull("status"),
		sb.IsNull("app_file_id"),
		sb.LessThan("created_at", olderThan),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to expire stale nominee claims")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to expire stale nominee claims")
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"expired":    rowsAffected,
			"older_than": olderThan,
		}).Info("expired stale nominee document claims")
	}

	return rowsAffected, nil
}
