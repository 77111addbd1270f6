package domain

import (
	"context"
	"time"
)

// PositionStore persists positions. Implementations must make Close
// conditional on the row still being open so that a second close attempt
// reports ErrNotFound instead of rewriting exit data.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context, userID int64) ([]Position, error)
	// Close transitions an open position to closed with the given exit fill.
	// It returns ErrNotFound when the position does not exist or is no longer
	// open.
	Close(ctx context.Context, id string, exitPrice float64, exitTime time.Time) error
}

// UserStore persists user accounts and risk profiles.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (User, error)
	Upsert(ctx context.Context, user User) error
	// UpdateRiskProfile applies an explicit settings change.
	UpdateRiskProfile(ctx context.Context, id int64, riskLevel int, autoTrading bool, strategy string) error
	// ListAutoTraders returns users eligible for automatic execution: VIP
	// active, auto-trading enabled, and API keys on file.
	ListAutoTraders(ctx context.Context) ([]User, error)
}

// StrategyStore persists automated strategies.
type StrategyStore interface {
	Create(ctx context.Context, s Strategy) error
	ListActive(ctx context.Context) ([]Strategy, error)
	Deactivate(ctx context.Context, id string) error
}

// OpportunityStore records detected opportunities for history and archival.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
