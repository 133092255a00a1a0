package appfile

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AppFileRepository records uploaded archives and stored documents.
type AppFileRepository interface {
	Create(ctx context.Context, file *models.AppFile) (*models.AppFile, error)
	GetByID(ctx context.Context, id int64) (*models.AppFile, error)
}

// Repository implements AppFileRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new app file repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "app_files"

// Create records one uploaded file. It joins an open transaction carried
// by ctx when one exists.
func (r *Repository) Create(ctx context.Context, file *models.AppFile) (*models.AppFile, error) {
	ctx, span := tracing.StartSpan(ctx, "AppFileRepository.Create")
	defer span.End()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create app file record")
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("container_name", "name", "size", "checksum", "mime_type", "extension", "created_at")
	sb.Values(file.ContainerName, file.Name, file.Size, file.Checksum, file.MimeType, file.Extension, now)
	sb.Returning("id")

	query, args := sb.Build()

	var id int64
	if err := tx.GetContext(txCtx, &id, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create app file record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create app file record")
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to commit app file record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create app file record")
	}

	created := *file
	created.ID = id
	created.CreatedAt = now

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"app_file_id": id,
		"container":   file.ContainerName,
		"name":        file.Name,
		"size":        file.Size,
	}).Info("created app file record")

	return &created, nil
}

// GetByID returns an app file record, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.AppFile, error) {
	ctx, span := tracing.StartSpan(ctx, "AppFileRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "container_name", "name", "size", "checksum", "mime_type", "extension", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var file models.AppFile
	if err := r.db.GetContext(ctx, &file, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get app file")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get app file")
	}
	return &file, nil
}
