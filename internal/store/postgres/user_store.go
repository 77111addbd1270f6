package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akornilov/crossarb/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, encrypted_keys, risk_level, auto_trading, strategy,
	vip_until, free_signals`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.EncryptedKeys, &u.RiskLevel, &u.AutoTrading, &u.Strategy,
		&u.VIPUntil, &u.FreeSignals,
	)
	return u, err
}

// GetByID fetches a user by id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	query := `SELECT ` + userSelectCols + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	return u, nil
}

// Upsert inserts a user or replaces the stored profile when the id exists.
func (s *UserStore) Upsert(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (
			id, encrypted_keys, risk_level, auto_trading, strategy,
			vip_until, free_signals, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			encrypted_keys = EXCLUDED.encrypted_keys,
			risk_level     = EXCLUDED.risk_level,
			auto_trading   = EXCLUDED.auto_trading,
			strategy       = EXCLUDED.strategy,
			vip_until      = EXCLUDED.vip_until,
			free_signals   = EXCLUDED.free_signals,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		user.ID, user.EncryptedKeys, user.RiskLevel, user.AutoTrading,
		user.Strategy, user.VIPUntil, user.FreeSignals,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert user %d: %w", user.ID, err)
	}
	return nil
}

// UpdateRiskProfile applies an explicit settings change.
func (s *UserStore) UpdateRiskProfile(ctx context.Context, id int64, riskLevel int, autoTrading bool, strategy string) error {
	const query = `
		UPDATE users
		SET risk_level = $2, auto_trading = $3, strategy = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, riskLevel, autoTrading, strategy)
	if err != nil {
		return fmt.Errorf("postgres: update risk profile for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListAutoTraders returns users eligible for automatic execution: auto-trading
// on, VIP still active, and API keys on file.
func (s *UserStore) ListAutoTraders(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userSelectCols + `
		FROM users
		WHERE auto_trading
		  AND vip_until IS NOT NULL AND vip_until > NOW()
		  AND length(encrypted_keys) > 0
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auto traders: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
