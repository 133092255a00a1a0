package consolidateddocument

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ConsolidatedDocumentRepository tracks AOF bundle state per account.
type ConsolidatedDocumentRepository interface {
	BulkMarkGenerated(ctx context.Context, accountIDs []int64, rtaID int64, appFileID int64, generatedDate time.Time) (int64, error)
	ListByAccounts(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.ConsolidatedDocument, error)
}

// Repository implements ConsolidatedDocumentRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new consolidated document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "consolidated_documents"

// BulkMarkGenerated updates every active tracking row for the given
// accounts and registrar to generated, pointing at the uploaded archive.
// It joins an open transaction carried by ctx when one exists.
func (r *Repository) BulkMarkGenerated(ctx context.Context, accountIDs []int64, rtaID int64, appFileID int64, generatedDate time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ConsolidatedDocumentRepository.BulkMarkGenerated")
	defer span.End()

	if len(accountIDs) == 0 {
		return 0, nil
	}

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to bulk update consolidated documents")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("status", models.DocumentStatusGenerated),
		sb.Assign("generated_date", generatedDate),
		sb.Assign("app_file_id", appFileID),
		sb.Assign("updated_at", time.Now()),
	)
	sb.Where(
		sb.In("account_id", sqlbuilder.Flatten(accountIDs)...),
		sb.Equal("rta_id", rtaID),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to bulk update consolidated documents")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to bulk update consolidated documents")
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to commit consolidated document updates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to bulk update consolidated documents")
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rta_id":        rtaID,
		"app_file_id":   appFileID,
		"accounts":      len(accountIDs),
		"rows_affected": rowsAffected,
	}).Info("marked consolidated documents generated")

	return rowsAffected, nil
}

// ListByAccounts returns the active tracking rows for the given accounts
// and registrar.
func (r *Repository) ListByAccounts(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.ConsolidatedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "ConsolidatedDocumentRepository.ListByAccounts")
	defer span.End()

	if len(accountIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "account_id", "rta_id", "status", "generated_date", "app_file_id", "is_active", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(
		sb.In("account_id", sqlbuilder.Flatten(accountIDs)...),
		sb.Equal("rta_id", rtaID),
		sb.Equal("is_active", true),
	)
	sb.OrderBy("account_id")

	query, args := sb.Build()

	var docs []models.ConsolidatedDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list consolidated documents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list consolidated documents")
	}
	return docs, nil
}
