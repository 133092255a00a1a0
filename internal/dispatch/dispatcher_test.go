package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/generation"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

type fakeGenerator struct {
	consolidatedErr error
	gotAccountIDs   []int64
	gotRTAID        int64

	nomineeResults []generation.ItemResult
	nomineeErr     error
	gotFilter      generation.NomineeFilter
}

func (f *fakeGenerator) GenerateConsolidated(ctx context.Context, accountIDs []int64, rtaID int64) (*generation.Result, error) {
	f.gotAccountIDs = accountIDs
	f.gotRTAID = rtaID
	if f.consolidatedErr != nil {
		return nil, f.consolidatedErr
	}
	return &generation.Result{Success: true, ArchiveName: "archive.zip"}, nil
}

func (f *fakeGenerator) GenerateNomineeDocuments(ctx context.Context, filter generation.NomineeFilter) ([]generation.ItemResult, error) {
	f.gotFilter = filter
	return f.nomineeResults, f.nomineeErr
}

type fakeEnqueuer struct {
	requests []*kafka.GenerationRequest
	err      error
}

func (f *fakeEnqueuer) PublishGenerationRequest(ctx context.Context, req *kafka.GenerationRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func newDispatcher(gen Generator) *Dispatcher {
	return NewDispatcher(gen, nil, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
}

func requestMessage(req *kafka.GenerationRequest) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{Request: req}
}

func TestDispatcherHandle(t *testing.T) {
	t.Run("routes consolidated requests", func(t *testing.T) {
		gen := &fakeGenerator{}
		d := newDispatcher(gen)

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine:     kafka.EngineConsolidated,
			RTAID:      1,
			AccountIDs: []int64{10, 11},
		}))

		require.NoError(t, err)
		assert.Equal(t, []int64{10, 11}, gen.gotAccountIDs)
		assert.Equal(t, int64(1), gen.gotRTAID)
	})

	t.Run("enqueues a nominee follow-up after consolidated", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{}
		d := NewDispatcher(&fakeGenerator{}, enqueuer, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine:     kafka.EngineConsolidated,
			RTAID:      2,
			AccountIDs: []int64{10},
		}))

		require.NoError(t, err)
		require.Len(t, enqueuer.requests, 1)
		assert.Equal(t, kafka.EngineNominee, enqueuer.requests[0].Engine)
		assert.Equal(t, int64(2), enqueuer.requests[0].RTAID)
	})

	t.Run("enqueue failure does not fail the message", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{err: errors.New("broker down")}
		d := NewDispatcher(&fakeGenerator{}, enqueuer, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine:     kafka.EngineConsolidated,
			RTAID:      1,
			AccountIDs: []int64{10},
		}))

		assert.NoError(t, err)
	})

	t.Run("consolidated failures stay uncommitted", func(t *testing.T) {
		gen := &fakeGenerator{consolidatedErr: errors.New("db down")}
		d := newDispatcher(gen)

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine:     kafka.EngineConsolidated,
			RTAID:      1,
			AccountIDs: []int64{10},
		}))

		assert.ErrorContains(t, err, "db down")
	})

	t.Run("routes nominee requests with explicit day", func(t *testing.T) {
		accountID := int64(9)
		gen := &fakeGenerator{}
		d := newDispatcher(gen)

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine:    kafka.EngineNominee,
			RTAID:     2,
			Date:      "2026-08-28",
			AccountID: &accountID,
		}))

		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), gen.gotFilter.Day)
		assert.Equal(t, int64(2), gen.gotFilter.RTAID)
		require.NotNil(t, gen.gotFilter.AccountID)
		assert.Equal(t, int64(9), *gen.gotFilter.AccountID)
	})

	t.Run("nominee run with failed items still commits", func(t *testing.T) {
		gen := &fakeGenerator{
			nomineeResults: []generation.ItemResult{
				{OrderItemID: 100},
				{OrderItemID: 101, Err: errors.New("no app file"), Error: "no app file"},
			},
		}
		d := newDispatcher(gen)

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine: kafka.EngineNominee,
			RTAID:  1,
		}))

		assert.NoError(t, err)
	})

	t.Run("nominee selection failure is retried", func(t *testing.T) {
		gen := &fakeGenerator{nomineeErr: errors.New("feed query failed")}
		d := newDispatcher(gen)

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine: kafka.EngineNominee,
			RTAID:  1,
		}))

		assert.ErrorContains(t, err, "feed query failed")
	})

	t.Run("rejects unknown engines", func(t *testing.T) {
		d := newDispatcher(&fakeGenerator{})

		err := d.Handle(context.Background(), requestMessage(&kafka.GenerationRequest{
			Engine: "pdf",
			RTAID:  1,
		}))

		assert.ErrorContains(t, err, "unsupported engine")
	})

	t.Run("rejects messages without a parsed request", func(t *testing.T) {
		d := newDispatcher(&fakeGenerator{})

		err := d.Handle(context.Background(), &kafka.IncomingMessage{})
		assert.ErrorContains(t, err, "no parsed request")
	})
}
