package account

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AccountRepository loads accounts with the full holder/bank/document
// graph the generation engines traverse.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.Account, error)
}

// Repository implements AccountRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// relation is one branch of the account fetch plan: a name for error
// reporting and a loader that attaches its rows to the accounts in byID.
type relation struct {
	name string
	load func(ctx context.Context, byID map[int64]*models.Account, ids []int64) error
}

// fetchPlan declares the relation tree loaded for every deep account
// fetch. Order matters only for readability; the loaders are independent.
func (r *Repository) fetchPlan() []relation {
	return []relation{
		{name: "holders", load: r.attachHolders},
		{name: "bank_accounts", load: r.attachBankAccounts},
		{name: "app_files", load: r.attachAppFiles},
	}
}

const (
	accountsTable    = "accounts"
	holdersTable     = "holders"
	detailsTable     = "investor_details"
	banksTable       = "bank_accounts"
	appFileMapsTable = "account_app_files"
	appFilesTable    = "app_files"
)

// GetByID loads a single account with its holder/bank/document graph.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "AccountRepository.GetByID")
	defer span.End()

	accounts, err := r.GetByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// GetByIDs loads the given accounts with holders (and their investor
// details), bank accounts and app-file links. Accounts come back in the
// order requested; missing ids are silently absent.
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "AccountRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "account_code", "is_active", "created_at", "updated_at")
	sb.From(accountsTable)
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()

	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load accounts")
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	byID := make(map[int64]*models.Account, len(accounts))
	loaded := make([]int64, 0, len(accounts))
	for i := range accounts {
		byID[accounts[i].ID] = &accounts[i]
		loaded = append(loaded, accounts[i].ID)
	}

	for _, rel := range r.fetchPlan() {
		if err := rel.load(ctx, byID, loaded); err != nil {
			r.logger.WithContext(ctx).WithFields(map[string]any{"relation": rel.name}).WithError(err).Error("account fetch plan failed")
			return nil, err
		}
	}

	// preserve the requested id order
	ordered := make([]models.Account, 0, len(accounts))
	seen := make(map[int64]bool, len(accounts))
	for _, id := range ids {
		if acct, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, *acct)
			seen[id] = true
		}
	}
	return ordered, nil
}

type holderRow struct {
	ID         int64             `db:"id"`
	AccountID  int64             `db:"account_id"`
	Rank       models.HolderRank `db:"rank"`
	DetailID   sql.NullInt64     `db:"detail_id"`
	InvestorID sql.NullInt64     `db:"investor_id"`
	FirstName  sql.NullString    `db:"first_name"`
	MiddleName sql.NullString    `db:"middle_name"`
	LastName   sql.NullString    `db:"last_name"`
	PANNumber  sql.NullString    `db:"pan_number"`
}

func (r *Repository) attachHolders(ctx context.Context, byID map[int64]*models.Account, ids []int64) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"h.id", "h.account_id", "h.rank",
		"d.id AS detail_id", "d.investor_id", "d.first_name", "d.middle_name", "d.last_name", "d.pan_number",
	)
	sb.From(holdersTable + " h")
	sb.JoinWithOption(sqlbuilder.LeftJoin, detailsTable+" d", "d.id = h.investor_detail_id")
	sb.Where(sb.In("h.account_id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("h.account_id", "h.rank")

	query, args := sb.Build()

	var rows []holderRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load account holders")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load account holders")
	}

	for _, row := range rows {
		holder := models.Holder{
			ID:        row.ID,
			AccountID: row.AccountID,
			Rank:      row.Rank,
		}
		if row.DetailID.Valid {
			detail := &models.InvestorDetail{
				ID:         row.DetailID.Int64,
				InvestorID: row.InvestorID.Int64,
				FirstName:  row.FirstName.String,
				LastName:   row.LastName.String,
			}
			if row.MiddleName.Valid {
				detail.MiddleName = &row.MiddleName.String
			}
			if row.PANNumber.Valid && row.PANNumber.String != "" {
				detail.PANNumber = &row.PANNumber.String
			}
			holder.InvestorDetail = detail
		}
		if acct, ok := byID[row.AccountID]; ok {
			acct.Holders = append(acct.Holders, holder)
		}
	}
	return nil
}

func (r *Repository) attachBankAccounts(ctx context.Context, byID map[int64]*models.Account, ids []int64) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "account_id", "account_number", "ifsc_code", "is_default")
	sb.From(banksTable)
	sb.Where(sb.In("account_id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("account_id", "id")

	query, args := sb.Build()

	var banks []models.BankAccount
	if err := r.db.SelectContext(ctx, &banks, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load bank accounts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load bank accounts")
	}

	for _, bank := range banks {
		if acct, ok := byID[bank.AccountID]; ok {
			acct.BankAccounts = append(acct.BankAccounts, bank)
		}
	}
	return nil
}

type appFileRow struct {
	ID            int64          `db:"id"`
	AccountID     int64          `db:"account_id"`
	AppFileID     int64          `db:"app_file_id"`
	CreatedAt     sql.NullTime   `db:"created_at"`
	ContainerName sql.NullString `db:"container_name"`
	Name          sql.NullString `db:"name"`
	Size          sql.NullInt64  `db:"size"`
	Checksum      sql.NullString `db:"checksum"`
	MimeType      sql.NullString `db:"mime_type"`
	Extension     sql.NullString `db:"extension"`
}

func (r *Repository) attachAppFiles(ctx context.Context, byID map[int64]*models.Account, ids []int64) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"m.id", "m.account_id", "m.app_file_id", "m.created_at",
		"f.container_name", "f.name", "f.size", "f.checksum", "f.mime_type", "f.extension",
	)
	sb.From(appFileMapsTable + " m")
	sb.JoinWithOption(sqlbuilder.LeftJoin, appFilesTable+" f", "f.id = m.app_file_id")
	sb.Where(sb.In("m.account_id", sqlbuilder.Flatten(ids)...))
	// newest first: the engines take the first mapping as the latest document
	sb.OrderBy("m.account_id", "m.created_at DESC")

	query, args := sb.Build()

	var rows []appFileRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load account app files")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load account app files")
	}

	for _, row := range rows {
		mapping := models.AccountAppFile{
			ID:        row.ID,
			AccountID: row.AccountID,
			AppFileID: row.AppFileID,
			CreatedAt: row.CreatedAt.Time,
		}
		if row.Name.Valid {
			mapping.AppFile = &models.AppFile{
				ID:            row.AppFileID,
				ContainerName: row.ContainerName.String,
				Name:          row.Name.String,
				Size:          row.Size.Int64,
				Checksum:      row.Checksum.String,
				MimeType:      row.MimeType.String,
				Extension:     row.Extension.String,
			}
		}
		if acct, ok := byID[row.AccountID]; ok {
			acct.AppFiles = append(acct.AppFiles, mapping)
		}
	}
	return nil
}
