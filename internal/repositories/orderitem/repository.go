package orderitem

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Filter narrows the pending-nominee selection. Day bounds the
// transaction feed window; a zero Day means today.
type Filter struct {
	Day               time.Time
	RTAID             int64
	AccountID         *int64
	ServiceProviderID *int64
}

// OrderItemRepository selects and flags order items for nominee
// document generation.
type OrderItemRepository interface {
	ListForConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.OrderItem, error)
	ListPendingNominee(ctx context.Context, filter Filter) ([]models.OrderItem, error)
	MarkNomineeDocumentGenerated(ctx context.Context, id int64) error
}

// Repository implements OrderItemRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new order item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const (
	orderItemsTable       = "order_items"
	feedLogsTable         = "transaction_feed_logs"
	instrumentsTable      = "instruments"
	serviceProvidersTable = "service_providers"
)

type pendingRow struct {
	ID                         int64          `db:"id"`
	OrderID                    int64          `db:"order_id"`
	AccountID                  int64          `db:"account_id"`
	InstrumentID               int64          `db:"instrument_id"`
	UniqueID                   string         `db:"unique_id"`
	RTAID                      int64          `db:"rta_id"`
	TransactionType            int            `db:"transaction_type"`
	TransactionFeedLogID       sql.NullInt64  `db:"transaction_feed_log_id"`
	IsServiceProviderAccount   bool           `db:"is_service_provider_account"`
	IsNomineeDocumentGenerated bool           `db:"is_nominee_document_generated"`
	CreatedAt                  time.Time      `db:"created_at"`
	InstrumentName             sql.NullString `db:"instrument_name"`
	ServiceProviderID          sql.NullInt64  `db:"service_provider_id"`
	ServiceProviderName        sql.NullString `db:"service_provider_name"`
	PrimaryAMCCode             sql.NullString `db:"primary_amc_code"`
	ServiceProviderRTAID       sql.NullInt64  `db:"service_provider_rta_id"`
}

// ListForConsolidated returns the order items anchoring a consolidated
// run: items on the given accounts and registrar that reference a
// transaction feed log. Accounts without such an item drop out of the run.
func (r *Repository) ListForConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.OrderItem, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderItemRepository.ListForConsolidated")
	defer span.End()

	if len(accountIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"id", "order_id", "account_id", "instrument_id", "unique_id",
		"rta_id", "transaction_type", "transaction_feed_log_id",
		"is_service_provider_account", "is_nominee_document_generated", "created_at",
	)
	sb.From(orderItemsTable)
	sb.Where(
		sb.In("account_id", sqlbuilder.Flatten(accountIDs)...),
		sb.Equal("rta_id", rtaID),
		sb.IsNotNull("transaction_feed_log_id"),
	)
	sb.OrderBy("id")

	query, args := sb.Build()

	var rows []consolidatedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list consolidated order items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list consolidated order items")
	}

	items := make([]models.OrderItem, 0, len(rows))
	for _, row := range rows {
		item := models.OrderItem{
			ID:                         row.ID,
			OrderID:                    row.OrderID,
			AccountID:                  row.AccountID,
			InstrumentID:               row.InstrumentID,
			UniqueID:                   row.UniqueID,
			RTAID:                      row.RTAID,
			TransactionType:            row.TransactionType,
			IsServiceProviderAccount:   row.IsServiceProviderAccount,
			IsNomineeDocumentGenerated: row.IsNomineeDocumentGenerated,
			CreatedAt:                  row.CreatedAt,
		}
		if row.TransactionFeedLogID.Valid {
			item.TransactionFeedLogID = &row.TransactionFeedLogID.Int64
		}
		items = append(items, item)
	}
	return items, nil
}

type consolidatedRow struct {
	ID                         int64         `db:"id"`
	OrderID                    int64         `db:"order_id"`
	AccountID                  int64         `db:"account_id"`
	InstrumentID               int64         `db:"instrument_id"`
	UniqueID                   string        `db:"unique_id"`
	RTAID                      int64         `db:"rta_id"`
	TransactionType            int           `db:"transaction_type"`
	TransactionFeedLogID       sql.NullInt64 `db:"transaction_feed_log_id"`
	IsServiceProviderAccount   bool          `db:"is_service_provider_account"`
	IsNomineeDocumentGenerated bool          `db:"is_nominee_document_generated"`
	CreatedAt                  time.Time     `db:"created_at"`
}

// ListPendingNominee returns order items in the filter's feed-date window
// that are purchase/switch transactions on investor accounts and have not
// yet had a nominee document generated.
func (r *Repository) ListPendingNominee(ctx context.Context, filter Filter) ([]models.OrderItem, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderItemRepository.ListPendingNominee")
	defer span.End()

	day := filter.Day
	if day.IsZero() {
		day = time.Now().UTC()
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"oi.id", "oi.order_id", "oi.account_id", "oi.instrument_id", "oi.unique_id",
		"oi.rta_id", "oi.transaction_type", "oi.transaction_feed_log_id",
		"oi.is_service_provider_account", "oi.is_nominee_document_generated", "oi.created_at",
		"i.name AS instrument_name",
		"sp.id AS service_provider_id", "sp.name AS service_provider_name",
		"sp.primary_amc_code", "sp.rta_id AS service_provider_rta_id",
	)
	sb.From(orderItemsTable + " oi")
	sb.Join(feedLogsTable+" fl", "fl.id = oi.transaction_feed_log_id")
	sb.Join(instrumentsTable+" i", "i.id = oi.instrument_id")
	sb.Join(serviceProvidersTable+" sp", "sp.id = i.service_provider_id")
	sb.Where(
		sb.GreaterEqualThan("fl.feed_date", from),
		sb.LessThan("fl.feed_date", to),
		sb.In("oi.transaction_type", models.TransactionTypePurchase, models.TransactionTypeSwitch),
		sb.Equal("oi.is_service_provider_account", false),
		sb.Equal("oi.is_nominee_document_generated", false),
	)
	if filter.RTAID != 0 {
		sb.Where(sb.Equal("oi.rta_id", filter.RTAID))
	}
	if filter.AccountID != nil {
		sb.Where(sb.Equal("oi.account_id", *filter.AccountID))
	}
	if filter.ServiceProviderID != nil {
		sb.Where(sb.Equal("sp.id", *filter.ServiceProviderID))
	}
	sb.OrderBy("oi.id")

	query, args := sb.Build()

	var rows []pendingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list pending nominee order items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending nominee order items")
	}

	items := make([]models.OrderItem, 0, len(rows))
	for _, row := range rows {
		item := models.OrderItem{
			ID:                         row.ID,
			OrderID:                    row.OrderID,
			AccountID:                  row.AccountID,
			InstrumentID:               row.InstrumentID,
			UniqueID:                   row.UniqueID,
			RTAID:                      row.RTAID,
			TransactionType:            row.TransactionType,
			IsServiceProviderAccount:   row.IsServiceProviderAccount,
			IsNomineeDocumentGenerated: row.IsNomineeDocumentGenerated,
			CreatedAt:                  row.CreatedAt,
		}
		if row.TransactionFeedLogID.Valid {
			item.TransactionFeedLogID = &row.TransactionFeedLogID.Int64
		}
		if row.ServiceProviderID.Valid {
			item.Instrument = &models.Instrument{
				ID:                row.InstrumentID,
				Name:              row.InstrumentName.String,
				ServiceProviderID: row.ServiceProviderID.Int64,
				ServiceProvider: &models.ServiceProvider{
					ID:             row.ServiceProviderID.Int64,
					Name:           row.ServiceProviderName.String,
					PrimaryAMCCode: row.PrimaryAMCCode.String,
					RTAID:          row.ServiceProviderRTAID.Int64,
				},
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkNomineeDocumentGenerated flips the idempotency guard on an order
// item so future batches skip it.
func (r *Repository) MarkNomineeDocumentGenerated(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "OrderItemRepository.MarkNomineeDocumentGenerated")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(orderItemsTable)
	sb.Set(sb.Assign("is_nominee_document_generated", true))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to mark nominee document generated")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark nominee document generated")
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"order_item_id": id,
		"rows_affected": rowsAffected,
	}).Info("marked nominee document generated")

	return nil
}
