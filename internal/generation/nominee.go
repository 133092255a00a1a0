package generation

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/internal/repositories/orderitem"
	"github.com/Ramsey-B/fern/pkg/archive"
	"github.com/Ramsey-B/fern/pkg/dbf"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registrar"
	"github.com/Ramsey-B/fern/pkg/scratch"
	"github.com/Ramsey-B/fern/pkg/tiffconv"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// NomineeFilter narrows a nominee generation batch. Every field is
// optional; a zero RTAID selects pending items across registrars.
type NomineeFilter struct {
	Day               time.Time
	RTAID             int64
	AccountID         *int64
	ServiceProviderID *int64
}

// ItemResult reports the outcome of one order item's nominee bundle.
// Items settle independently; Err is set on the failed items only.
type ItemResult struct {
	OrderItemID int64  `json:"order_item_id"`
	UniqueID    string `json:"unique_id"`
	ArchiveName string `json:"archive_name,omitempty"`
	AppFileID   *int64 `json:"app_file_id,omitempty"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// GenerateNomineeDocuments selects pending order items in the filter
// window and generates one nominee bundle per item, each named and laid
// out for the item's own registrar. Items are processed with bounded
// fan-out and settle independently: one item's failure never aborts the
// others. The returned slice has one entry per selected item, in
// selection order.
func (e *Engine) GenerateNomineeDocuments(ctx context.Context, filter NomineeFilter) ([]ItemResult, error) {
	ctx, span := tracing.StartSpan(ctx, "generation.Engine.GenerateNomineeDocuments")
	defer span.End()

	started := time.Now()

	registrarLabel := "all"
	if filter.RTAID != 0 {
		profile, err := registrar.ForRTA(filter.RTAID)
		if err != nil {
			return nil, err
		}
		registrarLabel = profile.Name()
	}

	items, err := e.orderItems.ListPendingNominee(ctx, orderitem.Filter{
		Day:               filter.Day,
		RTAID:             filter.RTAID,
		AccountID:         filter.AccountID,
		ServiceProviderID: filter.ServiceProviderID,
	})
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"registrar": registrarLabel,
		"items":     len(items),
	})
	log.Info("starting nominee generation batch")

	results := make([]ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.NomineeWorkers)

	for i := range items {
		i := i
		item := items[i]
		g.Go(func() error {
			result := e.generateNomineeDocument(gctx, item)
			results[i] = result
			return nil
		})
	}
	// workers never return errors; every item settles into its slot
	_ = g.Wait()

	failures := 0
	for i := range results {
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
			failures++
		}
	}

	outcome := "success"
	if failures > 0 {
		outcome = "partial"
		if failures == len(results) && len(results) > 0 {
			outcome = "failure"
		}
	}
	metrics.GenerationRunsTotal.WithLabelValues(kafka.EngineNominee, registrarLabel, outcome).Inc()
	metrics.GenerationDuration.WithLabelValues(kafka.EngineNominee, registrarLabel).Observe(time.Since(started).Seconds())

	log.WithFields(map[string]any{
		"failures": failures,
	}).Info("nominee generation batch complete")

	return results, nil
}

// generateNomineeDocument builds, uploads and records one order item's
// bundle. All failures are captured in the result, never propagated.
func (e *Engine) generateNomineeDocument(ctx context.Context, item models.OrderItem) ItemResult {
	ctx, span := tracing.StartSpan(ctx, "generation.Engine.generateNomineeDocument")
	defer span.End()

	result := ItemResult{OrderItemID: item.ID, UniqueID: item.UniqueID}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"order_item_id": item.ID,
		"unique_id":     item.UniqueID,
		"account_id":    item.AccountID,
	})

	fail := func(stage string, err error) ItemResult {
		metrics.StageFailuresTotal.WithLabelValues(kafka.EngineNominee, stage).Inc()
		log.WithError(err).WithFields(map[string]any{"stage": stage}).Error("nominee document generation failed")
		result.Err = fmt.Errorf("%s: %w", stage, err)
		e.publishEvent(ctx, &kafka.DocumentEvent{
			EventType:     kafka.EventDocumentFailed,
			Engine:        kafka.EngineNominee,
			RTAID:         item.RTAID,
			OrderUniqueID: item.UniqueID,
			Error:         result.Err.Error(),
		})
		return result
	}

	profile, err := registrar.ForRTA(item.RTAID)
	if err != nil {
		return fail("resolve_registrar", err)
	}

	if item.Instrument == nil || item.Instrument.ServiceProvider == nil {
		return fail("load_instrument", httperror.NewHTTPError(http.StatusUnprocessableEntity, "order item has no service provider"))
	}
	provider := item.Instrument.ServiceProvider

	account, err := e.accounts.GetByID(ctx, item.AccountID)
	if err != nil {
		return fail("load_account", err)
	}
	if account == nil {
		return fail("load_account", httperror.NewHTTPErrorf(http.StatusNotFound, "account %d not found", item.AccountID))
	}

	primary := account.PrimaryHolder()
	if !primary.HasPAN() {
		return fail("load_account", httperror.NewHTTPError(http.StatusUnprocessableEntity, "account has no pancard-bearing primary holder"))
	}

	appFile := account.LatestAppFile()
	if appFile == nil {
		return fail("collect_documents", httperror.NewHTTPError(http.StatusUnprocessableEntity, "App File not generated"))
	}

	arena, err := scratch.NewArena(e.cfg.ScratchRoot, "nominee", e.logger)
	if err != nil {
		return fail("scratch", err)
	}
	defer arena.Cleanup()

	localPath, err := e.store.Download(ctx, e.identityContainer(appFile), appFile.Name, arena.Dir())
	if err != nil {
		return fail("download_documents", err)
	}

	tiffPath, err := e.converter.Convert(ctx, localPath, arena.Path(fmt.Sprintf("item_%d.tif", item.ID)), tiffconv.NomineeSettings())
	if err != nil {
		return fail("convert_documents", err)
	}

	day := time.Now().UTC()
	dayCode, err := e.allocator.NextDayCode(ctx, item.RTAID, day)
	if err != nil {
		return fail("allocate_sequence", err)
	}

	// claim the work before the archive exists; the row stays inactive
	// until upload succeeds
	remarks := fmt.Sprintf("order_item:%s", item.UniqueID)
	claim, err := e.nominees.CreateClaim(ctx, &models.NomineeDocument{
		AccountID:         item.AccountID,
		RTAID:             item.RTAID,
		ServiceProviderID: provider.ID,
		Remarks:           &remarks,
	})
	if err != nil {
		return fail("create_claim", err)
	}

	entry := registrar.NomineeEntry{
		Date:         day,
		AMCCode:      provider.PrimaryAMCCode,
		UserCode:     registrar.UserCode,
		UniqueID:     item.UniqueID,
		PAN:          primary.PAN(),
		HolderName:   primary.InvestorDetail.FullName(),
		DocumentID:   dayCode,
		DocumentType: "NOMINEE",
		SequenceCode: dayCode,
	}

	archiveName := profile.NomineeArchiveName(entry)
	builder, err := archive.NewBuilder(arena.Path(archiveName))
	if err != nil {
		return fail("assemble_archive", err)
	}
	defer builder.Abort()

	if err := builder.AddLocalFile(profile.NomineeTIFFName(entry), tiffPath); err != nil {
		return fail("assemble_archive", err)
	}

	if schema := profile.NomineeDBFSchema(); schema != nil {
		dbfPath := arena.Path(profile.NomineeDBFName(entry))
		writer, err := dbf.NewFileWriter(dbfPath, schema)
		if err != nil {
			return fail("assemble_archive", err)
		}
		if err := writer.Append(profile.NomineeRecord(entry)...); err != nil {
			writer.Close()
			return fail("assemble_archive", err)
		}
		if err := writer.Close(); err != nil {
			return fail("assemble_archive", err)
		}
		if err := builder.AddLocalFile(profile.NomineeDBFName(entry), dbfPath); err != nil {
			return fail("assemble_archive", err)
		}
	}

	if err := builder.Close(); err != nil {
		return fail("assemble_archive", err)
	}

	if _, err := e.store.Upload(ctx, e.cfg.NomineeContainer, archiveName, builder.Path()); err != nil {
		return fail("upload_archive", err)
	}

	info, err := e.store.Stat(ctx, e.cfg.NomineeContainer, archiveName)
	if err != nil {
		return fail("upload_archive", err)
	}
	metrics.ArchiveBytes.WithLabelValues(kafka.EngineNominee, profile.Name()).Observe(float64(info.Size))

	record, err := e.appFiles.Create(ctx, &models.AppFile{
		ContainerName: e.cfg.NomineeContainer,
		Name:          archiveName,
		Size:          info.Size,
		Checksum:      info.Checksum,
		MimeType:      "application/zip",
		Extension:     strings.TrimPrefix(filepath.Ext(archiveName), "."),
	})
	if err != nil {
		return fail("record_app_file", err)
	}

	if err := e.nominees.Finalize(ctx, claim.ID, record.ID, day); err != nil {
		return fail("finalize_claim", err)
	}

	if err := e.orderItems.MarkNomineeDocumentGenerated(ctx, item.ID); err != nil {
		return fail("mark_order_item", err)
	}

	metrics.DocumentsGenerated.WithLabelValues(kafka.EngineNominee, profile.Name()).Inc()

	e.publishEvent(ctx, &kafka.DocumentEvent{
		EventType:     kafka.EventDocumentGenerated,
		Engine:        kafka.EngineNominee,
		RTAID:         item.RTAID,
		AppFileID:     &record.ID,
		FileName:      archiveName,
		DocumentCount: 1,
		OrderUniqueID: item.UniqueID,
	})

	result.ArchiveName = archiveName
	result.AppFileID = &record.ID
	return result
}
