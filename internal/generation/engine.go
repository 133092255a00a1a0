// Package generation implements the consolidated (AOF) and nominee
// document pipelines: load the account graph, download stored identity
// documents, convert them to registrar-grade TIFFs, build DBF manifests,
// assemble the ZIP bundle, upload it and record the outcome.
package generation

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/orderitem"
	"github.com/Ramsey-B/fern/pkg/filestore"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tiffconv"
)

// AccountLoader loads accounts with their holder/bank/document graph.
type AccountLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.Account, error)
}

// OrderItemSource selects order items for both engines and flags them
// after nominee generation.
type OrderItemSource interface {
	ListForConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) ([]models.OrderItem, error)
	ListPendingNominee(ctx context.Context, filter orderitem.Filter) ([]models.OrderItem, error)
	MarkNomineeDocumentGenerated(ctx context.Context, id int64) error
}

// ConsolidatedTracker updates AOF tracking rows after a run lands.
type ConsolidatedTracker interface {
	BulkMarkGenerated(ctx context.Context, accountIDs []int64, rtaID int64, appFileID int64, generatedDate time.Time) (int64, error)
}

// NomineeClaims manages the inactive-claim lifecycle of nominee rows.
type NomineeClaims interface {
	CreateClaim(ctx context.Context, doc *models.NomineeDocument) (*models.NomineeDocument, error)
	Finalize(ctx context.Context, id int64, appFileID int64, generatedDate time.Time) error
	ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
}

// AnnexureLedger appends run sequencing rows.
type AnnexureLedger interface {
	BulkInsert(ctx context.Context, entries []models.AnnexureFeedEntry) error
}

// AppFiles records uploaded archives.
type AppFiles interface {
	Create(ctx context.Context, file *models.AppFile) (*models.AppFile, error)
}

// Allocator hands out batch/sequence numbers and nominee day codes.
type Allocator interface {
	NextRunNumbers(ctx context.Context, rtaID int64, day time.Time) (batch int, firstSeq int, err error)
	NextDayCode(ctx context.Context, rtaID int64, day time.Time) (string, error)
}

// TxRunner runs a function inside one database transaction carried on
// the context. May be nil, in which case writes commit individually.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockProvider serializes cross-instance work sections.
type LockProvider interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Converter produces registrar-grade TIFF renditions.
type Converter interface {
	Convert(ctx context.Context, src, destPath string, settings tiffconv.Settings) (string, error)
}

// EventPublisher announces run outcomes. May be nil when event emission
// is disabled.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event *kafka.DocumentEvent) error
}

// Config carries the engine's operational settings.
type Config struct {
	ScratchRoot           string
	IdentityContainer     string
	ConsolidatedContainer string
	NomineeContainer      string
	NomineeWorkers        int
}

// Engine runs both document generation pipelines.
type Engine struct {
	accounts     AccountLoader
	orderItems   OrderItemSource
	consolidated ConsolidatedTracker
	nominees     NomineeClaims
	annexure     AnnexureLedger
	appFiles     AppFiles
	allocator    Allocator
	tx           TxRunner
	store        filestore.Store
	converter    Converter
	events       EventPublisher
	cfg          Config
	logger       ectologger.Logger
}

// NewEngine wires the generation engine from its collaborators.
func NewEngine(
	accounts AccountLoader,
	orderItems OrderItemSource,
	consolidated ConsolidatedTracker,
	nominees NomineeClaims,
	annexure AnnexureLedger,
	appFiles AppFiles,
	allocator Allocator,
	tx TxRunner,
	store filestore.Store,
	converter Converter,
	events EventPublisher,
	cfg Config,
	logger ectologger.Logger,
) *Engine {
	if cfg.NomineeWorkers <= 0 {
		cfg.NomineeWorkers = 4
	}
	return &Engine{
		accounts:     accounts,
		orderItems:   orderItems,
		consolidated: consolidated,
		nominees:     nominees,
		annexure:     annexure,
		appFiles:     appFiles,
		allocator:    allocator,
		tx:           tx,
		store:        store,
		converter:    converter,
		events:       events,
		cfg:          cfg,
		logger:       logger,
	}
}

// identityContainer returns the container a stored identity document
// lives in. Rows recorded before container tracking fall back to the
// configured identity container.
func (e *Engine) identityContainer(file *models.AppFile) string {
	if file.ContainerName != "" {
		return file.ContainerName
	}
	return e.cfg.IdentityContainer
}

func (e *Engine) runInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.tx == nil {
		return fn(ctx)
	}
	return e.tx.InTransaction(ctx, fn)
}

func (e *Engine) publishEvent(ctx context.Context, event *kafka.DocumentEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("failed to publish document event")
	}
}
