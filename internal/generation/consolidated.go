package generation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/archive"
	"github.com/Ramsey-B/fern/pkg/dbf"
	"github.com/Ramsey-B/fern/pkg/filestore"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registrar"
	"github.com/Ramsey-B/fern/pkg/scratch"
	"github.com/Ramsey-B/fern/pkg/tiffconv"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// consolidatedDocCode is the RTA document code embedded in Karvy AOF
// archive names.
const consolidatedDocCode = "AOF"

// platformARN is the platform's broker registration carried in Karvy
// consolidated DBF rows.
const platformARN = "ARN-0005"

// Result reports a consolidated run.
type Result struct {
	Success       bool   `json:"success"`
	BatchNumber   int    `json:"batch_number"`
	ArchiveName   string `json:"archive_name"`
	AppFileID     int64  `json:"app_file_id"`
	DocumentCount int    `json:"document_count"`
}

// accountDocument pairs an account with its downloaded and converted
// identity document.
type accountDocument struct {
	account   *models.Account
	appFile   *models.AppFile
	localPath string
	tiffPath  string
}

// consolidatedJob is the state threaded through the run's stages. Each
// stage fills in its own outputs and leaves earlier fields untouched.
type consolidatedJob struct {
	profile     registrar.Profile
	day         time.Time
	arena       *scratch.Arena
	accountIDs  []int64
	orderItems  []models.OrderItem
	accounts    []models.Account
	documents   []accountDocument
	batchNumber int
	entries     []models.AnnexureFeedEntry
	archiveName string
	archivePath string
	archiveInfo filestore.ObjectInfo
	appFile     *models.AppFile
}

// GenerateConsolidated runs the all-or-nothing AOF pipeline for the
// given accounts and registrar. The first unrecoverable error rejects
// the whole run; already-written annexure ledger rows are not rolled
// back.
func (e *Engine) GenerateConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "generation.Engine.GenerateConsolidated")
	defer span.End()

	started := time.Now()

	profile, err := registrar.ForRTA(rtaID)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"registrar": profile.Name(),
		"accounts":  len(accountIDs),
	})
	log.Info("starting consolidated generation run")

	arena, err := scratch.NewArena(e.cfg.ScratchRoot, "consolidated", e.logger)
	if err != nil {
		return nil, fmt.Errorf("scratch arena: %w", err)
	}
	defer arena.Cleanup()

	job := &consolidatedJob{
		profile:    profile,
		day:        time.Now().UTC(),
		arena:      arena,
		accountIDs: accountIDs,
	}

	stages := []struct {
		name string
		run  func(context.Context, *consolidatedJob) error
	}{
		{"load_order_items", e.loadConsolidatedOrderItems},
		{"load_accounts", e.loadAccounts},
		{"collect_documents", e.collectDocuments},
		{"download_documents", e.downloadDocuments},
		{"convert_documents", e.convertConsolidatedDocuments},
		{"assemble_archive", e.assembleConsolidatedArchive},
		{"record_annexure", e.recordAnnexure},
		{"upload_archive", e.uploadConsolidatedArchive},
		{"record_outcome", e.recordConsolidatedOutcome},
	}

	for _, stage := range stages {
		if err := stage.run(ctx, job); err != nil {
			metrics.StageFailuresTotal.WithLabelValues(kafka.EngineConsolidated, stage.name).Inc()
			metrics.GenerationRunsTotal.WithLabelValues(kafka.EngineConsolidated, profile.Name(), "failure").Inc()
			log.WithError(err).WithFields(map[string]any{"stage": stage.name}).Error("consolidated generation run failed")
			e.publishEvent(ctx, &kafka.DocumentEvent{
				EventType: kafka.EventDocumentFailed,
				Engine:    kafka.EngineConsolidated,
				RTAID:     rtaID,
				Error:     err.Error(),
			})
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
	}

	metrics.GenerationRunsTotal.WithLabelValues(kafka.EngineConsolidated, profile.Name(), "success").Inc()
	metrics.GenerationDuration.WithLabelValues(kafka.EngineConsolidated, profile.Name()).Observe(time.Since(started).Seconds())

	log.WithFields(map[string]any{
		"archive":   job.archiveName,
		"batch":     job.batchNumber,
		"documents": len(job.documents),
	}).Info("consolidated generation run complete")

	e.publishEvent(ctx, &kafka.DocumentEvent{
		EventType:     kafka.EventDocumentGenerated,
		Engine:        kafka.EngineConsolidated,
		RTAID:         rtaID,
		AppFileID:     &job.appFile.ID,
		FileName:      job.archiveName,
		DocumentCount: len(job.documents),
	})

	return &Result{
		Success:       true,
		BatchNumber:   job.batchNumber,
		ArchiveName:   job.archiveName,
		AppFileID:     job.appFile.ID,
		DocumentCount: len(job.documents),
	}, nil
}

// loadConsolidatedOrderItems anchors the run on order items with a
// transaction feed reference. The account set narrows to the accounts
// those items actually cover; requested accounts without one drop out.
func (e *Engine) loadConsolidatedOrderItems(ctx context.Context, job *consolidatedJob) error {
	items, err := e.orderItems.ListForConsolidated(ctx, job.accountIDs, job.profile.RTAID())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "no orders found")
	}
	job.orderItems = items

	covered := make(map[int64]bool, len(items))
	for _, item := range items {
		covered[item.AccountID] = true
	}

	kept := make([]int64, 0, len(job.accountIDs))
	for _, id := range job.accountIDs {
		if covered[id] {
			kept = append(kept, id)
		}
	}
	job.accountIDs = kept
	return nil
}

func (e *Engine) loadAccounts(ctx context.Context, job *consolidatedJob) error {
	accounts, err := e.accounts.GetByIDs(ctx, job.accountIDs)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "no active accounts found")
	}
	job.accounts = accounts
	return nil
}

// collectDocuments gathers each account's latest identity document.
// Accounts without a pancard-bearing primary holder contribute nothing;
// a run in which no account has a document fails outright.
func (e *Engine) collectDocuments(ctx context.Context, job *consolidatedJob) error {
	for i := range job.accounts {
		acct := &job.accounts[i]

		primary := acct.PrimaryHolder()
		if !primary.HasPAN() {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"account_id": acct.ID,
			}).Warn("skipping account without pancard-bearing primary holder")
			continue
		}

		appFile := acct.LatestAppFile()
		if appFile == nil {
			continue
		}

		job.documents = append(job.documents, accountDocument{
			account: acct,
			appFile: appFile,
		})
	}

	if len(job.documents) == 0 {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "App File not generated")
	}
	return nil
}

func (e *Engine) downloadDocuments(ctx context.Context, job *consolidatedJob) error {
	for i := range job.documents {
		doc := &job.documents[i]
		localPath, err := e.store.Download(ctx, e.identityContainer(doc.appFile), doc.appFile.Name, job.arena.Dir())
		if err != nil {
			return fmt.Errorf("download %s for account %d: %w", doc.appFile.Name, doc.account.ID, err)
		}
		doc.localPath = localPath
	}
	return nil
}

func (e *Engine) convertConsolidatedDocuments(ctx context.Context, job *consolidatedJob) error {
	for i := range job.documents {
		doc := &job.documents[i]
		destPath := job.arena.Path(fmt.Sprintf("account_%d.tif", doc.account.ID))
		tiffPath, err := e.converter.Convert(ctx, doc.localPath, destPath, tiffconv.ConsolidatedSettings())
		if err != nil {
			return fmt.Errorf("convert document for account %d: %w", doc.account.ID, err)
		}
		doc.tiffPath = tiffPath
	}
	return nil
}

// assembleConsolidatedArchive allocates the run's batch and sequence
// numbers and walks documents in account-then-holder order. The DBF row
// order must match the order TIFF entries are added; registrars pair the
// flat file lines with the images positionally.
func (e *Engine) assembleConsolidatedArchive(ctx context.Context, job *consolidatedJob) error {
	batch, firstSeq, err := e.allocator.NextRunNumbers(ctx, job.profile.RTAID(), job.day)
	if err != nil {
		return err
	}
	job.batchNumber = batch

	firstPAN := job.documents[0].account.PrimaryHolder().PAN()
	job.archiveName = job.profile.ConsolidatedArchiveName(job.day, consolidatedDocCode, firstPAN, batch)
	job.archivePath = job.arena.Path(job.archiveName)

	builder, err := archive.NewBuilder(job.archivePath)
	if err != nil {
		return err
	}
	defer builder.Abort()

	var batchDBF *dbf.Builder
	if job.profile.BatchedDBF() {
		batchDBF, err = dbf.NewBuilder(job.profile.ConsolidatedSchema())
		if err != nil {
			return err
		}
	}

	// sequence numbers continue the day's existing ledger rows
	sequence := firstSeq - 1
	for _, doc := range job.documents {
		for _, holder := range doc.account.PANHolders() {
			sequence++

			entry := registrar.ConsolidatedEntry{
				Date:           job.day,
				BatchNumber:    batch,
				SequenceNumber: sequence,
				BrokerCode:     platformARN,
				InvestorID:     holder.InvestorDetail.InvestorID,
				HolderName:     holder.InvestorDetail.FullName(),
				HolderRank:     holder.Rank,
				PAN:            holder.PAN(),
			}

			folder := job.profile.HolderFolder(job.day, entry.PAN)
			tiffName := job.profile.ConsolidatedTIFFName(entry)
			if folder == "" {
				err = builder.AddLocalFile(tiffName, doc.tiffPath)
			} else {
				err = builder.AddLocalFileInFolder(folder, tiffName, doc.tiffPath)
			}
			if err != nil {
				return err
			}

			if batchDBF != nil {
				if err := batchDBF.Append(job.profile.ConsolidatedRecord(entry)...); err != nil {
					return err
				}
			} else {
				// per-holder registrars get one DBF inside each holder folder
				holderDBF, err := dbf.NewBuilder(job.profile.ConsolidatedSchema())
				if err != nil {
					return err
				}
				if err := holderDBF.Append(job.profile.ConsolidatedRecord(entry)...); err != nil {
					return err
				}
				if err := holderDBF.Close(); err != nil {
					return err
				}
				name := job.profile.ConsolidatedDBFName(job.day, entry.PAN, batch)
				if err := builder.AddInFolder(folder, name, bytes.NewReader(holderDBF.Bytes())); err != nil {
					return err
				}
			}

			job.entries = append(job.entries, models.AnnexureFeedEntry{
				RTAID:               job.profile.RTAID(),
				AccountID:           doc.account.ID,
				BatchNumber:         batch,
				BatchSequenceNumber: sequence,
			})
			metrics.DocumentsGenerated.WithLabelValues(kafka.EngineConsolidated, job.profile.Name()).Inc()
		}
	}

	// the batched DBF is written once, after the last holder
	if batchDBF != nil {
		if err := batchDBF.Close(); err != nil {
			return err
		}
		name := job.profile.ConsolidatedDBFName(job.day, "", batch)
		if err := builder.Add(name, bytes.NewReader(batchDBF.Bytes())); err != nil {
			return err
		}
	}

	return builder.Close()
}

// recordAnnexure appends the run's ledger rows. Failures here are logged
// but do not fail the run.
func (e *Engine) recordAnnexure(ctx context.Context, job *consolidatedJob) error {
	if err := e.annexure.BulkInsert(ctx, job.entries); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("failed to record annexure feed entries")
	}
	return nil
}

func (e *Engine) uploadConsolidatedArchive(ctx context.Context, job *consolidatedJob) error {
	if _, err := e.store.Upload(ctx, e.cfg.ConsolidatedContainer, job.archiveName, job.archivePath); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	info, err := e.store.Stat(ctx, e.cfg.ConsolidatedContainer, job.archiveName)
	if err != nil {
		return fmt.Errorf("stat uploaded archive: %w", err)
	}
	job.archiveInfo = info

	metrics.ArchiveBytes.WithLabelValues(kafka.EngineConsolidated, job.profile.Name()).Observe(float64(info.Size))
	return nil
}

// recordConsolidatedOutcome writes the archive's app file record and the
// per-account tracking update in one transaction.
func (e *Engine) recordConsolidatedOutcome(ctx context.Context, job *consolidatedJob) error {
	ids := make([]int64, 0, len(job.documents))
	for _, doc := range job.documents {
		ids = append(ids, doc.account.ID)
	}

	return e.runInTransaction(ctx, func(ctx context.Context) error {
		appFile, err := e.appFiles.Create(ctx, &models.AppFile{
			ContainerName: e.cfg.ConsolidatedContainer,
			Name:          job.archiveName,
			Size:          job.archiveInfo.Size,
			Checksum:      job.archiveInfo.Checksum,
			MimeType:      "application/zip",
			Extension:     strings.TrimPrefix(filepath.Ext(job.archiveName), "."),
		})
		if err != nil {
			return err
		}
		job.appFile = appFile

		_, err = e.consolidated.BulkMarkGenerated(ctx, ids, job.profile.RTAID(), appFile.ID, time.Now().UTC())
		return err
	})
}

