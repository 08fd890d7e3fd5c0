package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/nulzo/llm-gateway/internal/store"
	"github.com/nulzo/llm-gateway/internal/store/model"
)

type repository struct {
	attempts *attemptStore
}

func newRepository(db *sqlx.DB) store.Repository {
	return &repository{attempts: &attemptStore{db: db}}
}

func (r *repository) Attempts() store.AttemptStore { return r.attempts }

type attemptStore struct {
	db *sqlx.DB
}

func (s *attemptStore) Insert(ctx context.Context, a *model.Attempt) error {
	const q = `
		INSERT INTO attempts (
			id, invocation_id, model, attempt, endpoint_class,
			streamed, outcome, error_kind, detail, elapsed_ms, created_at
		) VALUES (
			:id, :invocation_id, :model, :attempt, :endpoint_class,
			:streamed, :outcome, :error_kind, :detail, :elapsed_ms, :created_at
		)`
	_, err := s.db.NamedExecContext(ctx, q, a)
	return err
}

func (s *attemptStore) ListRecent(ctx context.Context, limit int) ([]model.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.Attempt
	const q = `SELECT * FROM attempts ORDER BY created_at DESC, attempt DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, err
	}
	return out, nil
}
