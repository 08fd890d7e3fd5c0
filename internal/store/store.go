package store

import (
	"context"

	"github.com/nulzo/llm-gateway/internal/store/model"
)

// Repository is the persistence boundary for the gateway's observability
// records.
type Repository interface {
	Attempts() AttemptStore
}

type AttemptStore interface {
	Insert(ctx context.Context, a *model.Attempt) error
	ListRecent(ctx context.Context, limit int) ([]model.Attempt, error)
}
