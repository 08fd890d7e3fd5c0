package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/llm-gateway/internal/store"
	"github.com/nulzo/llm-gateway/internal/store/model"
)

// Ingestor persists attempt records off the request path. Record never
// blocks: when the buffer is full the record is dropped with a warning,
// which is preferable to stalling an upstream call for bookkeeping.
type Ingestor interface {
	Record(a *model.Attempt)
	Start(ctx context.Context)
	Stop()
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	records   chan *model.Attempt
	batchSize int
	flushTime time.Duration
}

func NewIngestor(logger *zap.Logger, repo store.Repository) Ingestor {
	return &ingestor{
		logger:    logger,
		repo:      repo,
		records:   make(chan *model.Attempt, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
	}
}

func (i *ingestor) Record(a *model.Attempt) {
	select {
	case i.records <- a:
	default:
		i.logger.Warn("Attempt buffer full, dropping record",
			zap.String("invocation_id", a.InvocationID),
			zap.String("model", a.Model),
		)
	}
}

func (i *ingestor) Start(ctx context.Context) {
	go i.worker(ctx)
}

func (i *ingestor) Stop() {
	close(i.records)
}

func (i *ingestor) worker(ctx context.Context) {
	batch := make([]*model.Attempt, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		for _, a := range batch {
			if err := i.repo.Attempts().Insert(context.Background(), a); err != nil {
				i.logger.Error("Failed to persist attempt record",
					zap.String("id", a.ID),
					zap.Error(err),
				)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case a, ok := <-i.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, a)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
