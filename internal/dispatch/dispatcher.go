// Package dispatch routes generation-request messages from Kafka to the
// document generation engines.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/generation"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Generator runs the document generation engines.
type Generator interface {
	GenerateConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) (*generation.Result, error)
	GenerateNomineeDocuments(ctx context.Context, filter generation.NomineeFilter) ([]generation.ItemResult, error)
}

// RequestEnqueuer publishes follow-up generation requests. May be nil
// when follow-up enqueueing is disabled.
type RequestEnqueuer interface {
	PublishGenerationRequest(ctx context.Context, req *kafka.GenerationRequest) error
}

// Dispatcher handles generation requests consumed from Kafka
type Dispatcher struct {
	generator Generator
	requests  RequestEnqueuer
	logger    ectologger.Logger
}

// NewDispatcher creates a new message dispatcher
func NewDispatcher(generator Generator, requests RequestEnqueuer, logger ectologger.Logger) *Dispatcher {
	return &Dispatcher{
		generator: generator,
		requests:  requests,
		logger:    logger,
	}
}

// Handle processes one parsed generation request. Returning an error
// leaves the message uncommitted so the run is retried.
func (d *Dispatcher) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.Handle")
	defer span.End()

	req := msg.Request
	if req == nil {
		return fmt.Errorf("dispatch: message has no parsed request")
	}

	switch req.Engine {
	case kafka.EngineConsolidated:
		return d.handleConsolidated(ctx, req)
	case kafka.EngineNominee:
		return d.handleNominee(ctx, req)
	default:
		return fmt.Errorf("dispatch: unsupported engine %q", req.Engine)
	}
}

func (d *Dispatcher) handleConsolidated(ctx context.Context, req *kafka.GenerationRequest) error {
	result, err := d.generator.GenerateConsolidated(ctx, req.AccountIDs, req.RTAID)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Consolidated generation failed")
		return err
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"archive_name":   result.ArchiveName,
		"batch_number":   result.BatchNumber,
		"document_count": result.DocumentCount,
	}).Info("Consolidated generation completed")

	// Follow-up nominee run for the same registrar. Best effort: the
	// consolidated run already landed and must not be replayed over a
	// transient enqueue failure.
	if d.requests != nil {
		followUp := &kafka.GenerationRequest{Engine: kafka.EngineNominee, RTAID: req.RTAID}
		if err := d.requests.PublishGenerationRequest(ctx, followUp); err != nil {
			d.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue nominee follow-up request")
		}
	}

	return nil
}

func (d *Dispatcher) handleNominee(ctx context.Context, req *kafka.GenerationRequest) error {
	day := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return fmt.Errorf("dispatch: invalid request date %q: %w", req.Date, err)
		}
		day = parsed
	}

	results, err := d.generator.GenerateNomineeDocuments(ctx, generation.NomineeFilter{
		Day:               day,
		RTAID:             req.RTAID,
		AccountID:         req.AccountID,
		ServiceProviderID: req.ServiceProviderID,
	})
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Nominee generation failed")
		return err
	}

	failed := 0
	for _, item := range results {
		if item.Err != nil {
			failed++
		}
	}

	// Items settle independently and failed items stay pending, so a
	// partial run still commits. The next request picks them up again.
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"total":  len(results),
		"failed": failed,
	}).Info("Nominee generation completed")

	return nil
}
