package domain

import "time"

// StrategyKind names an automated strategy type.
type StrategyKind string

const (
	StrategyGrid StrategyKind = "grid"
)

// GridParams configure a grid strategy: Grids sell levels evenly spaced
// between Lower and Upper.
type GridParams struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Grids int     `json:"grids"`
}

// Step returns the price distance between adjacent grid levels.
func (g GridParams) Step() float64 {
	if g.Grids <= 0 {
		return 0
	}
	return (g.Upper - g.Lower) / float64(g.Grids)
}

// Strategy is a persisted, user-activated automated strategy. The monitoring
// cycle sweeps active strategies at the end of each tick and may re-trigger
// their placement logic.
type Strategy struct {
	ID        string
	UserID    int64
	Symbol    string
	Kind      StrategyKind
	Grid      GridParams
	Active    bool
	CreatedAt time.Time
}
