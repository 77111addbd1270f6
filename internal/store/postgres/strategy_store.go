package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akornilov/crossarb/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL. Grid
// parameters are stored as JSONB so new strategy kinds do not need schema
// changes.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a StrategyStore backed by the given connection pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Create inserts a new strategy.
func (s *StrategyStore) Create(ctx context.Context, strat domain.Strategy) error {
	params, err := json.Marshal(strat.Grid)
	if err != nil {
		return fmt.Errorf("postgres: marshal strategy params: %w", err)
	}

	const query = `
		INSERT INTO strategies (id, user_id, symbol, kind, params, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.pool.Exec(ctx, query,
		strat.ID, strat.UserID, strat.Symbol, string(strat.Kind),
		params, strat.Active, strat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create strategy %s: %w", strat.ID, err)
	}
	return nil
}

// ListActive returns every active strategy.
func (s *StrategyStore) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	const query = `
		SELECT id, user_id, symbol, kind, params, active, created_at
		FROM strategies
		WHERE active
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active strategies: %w", err)
	}
	defer rows.Close()

	var strategies []domain.Strategy
	for rows.Next() {
		var strat domain.Strategy
		var kind string
		var params []byte

		if err := rows.Scan(
			&strat.ID, &strat.UserID, &strat.Symbol, &kind,
			&params, &strat.Active, &strat.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		strat.Kind = domain.StrategyKind(kind)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &strat.Grid); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal strategy %s params: %w", strat.ID, err)
			}
		}
		strategies = append(strategies, strat)
	}
	return strategies, rows.Err()
}

// Deactivate marks a strategy inactive.
func (s *StrategyStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE strategies SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate strategy %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.StrategyStore = (*StrategyStore)(nil)
