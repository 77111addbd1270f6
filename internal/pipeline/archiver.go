// Package pipeline contains periodic background jobs that move data between
// the database and cold storage.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
)

// Archiver moves aged opportunity rows from the database to object storage as
// JSONL, then prunes them. Rows are deleted only after the upload succeeded,
// so a failed run leaves the database untouched.
type Archiver struct {
	opportunities domain.OpportunityStore
	blobs         domain.BlobWriter
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver that keeps retentionDays of history in the
// database.
func NewArchiver(opportunities domain.OpportunityStore, blobs domain.BlobWriter, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		opportunities: opportunities,
		blobs:         blobs,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// archiveRecord is the JSONL line format of one archived opportunity.
type archiveRecord struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	BuyExchange   string    `json:"buy_exchange"`
	SellExchange  string    `json:"sell_exchange"`
	BuyPrice      float64   `json:"buy_price"`
	SellPrice     float64   `json:"sell_price"`
	ProfitPercent float64   `json:"profit_percent"`
	Volume        float64   `json:"volume"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Run executes a single archive pass: list rows older than the retention
// cutoff, upload them as one JSONL object, then delete them. It returns the
// number of rows archived.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	aged, err := a.opportunities.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list opportunities before %v: %w", cutoff, err)
	}
	if len(aged) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, opp := range aged {
		if err := enc.Encode(archiveRecord{
			ID:            opp.ID,
			Symbol:        opp.Symbol,
			BuyExchange:   opp.BuyExchange,
			SellExchange:  opp.SellExchange,
			BuyPrice:      opp.BuyPrice,
			SellPrice:     opp.SellPrice,
			ProfitPercent: opp.ProfitPercent,
			Volume:        opp.Volume,
			ComputedAt:    opp.ComputedAt,
		}); err != nil {
			return 0, fmt.Errorf("pipeline: encode opportunity %s: %w", opp.ID, err)
		}
	}

	path := archivePath(time.Now().UTC())
	if err := a.blobs.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("pipeline: upload archive %s: %w", path, err)
	}

	pruned, err := a.opportunities.DeleteBefore(ctx, cutoff)
	if err != nil {
		// The upload succeeded; the rows will be re-archived next run.
		return 0, fmt.Errorf("pipeline: prune opportunities before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "opportunities archived",
		slog.String("path", path),
		slog.Int("uploaded", len(aged)),
		slog.Int64("pruned", pruned),
		slog.Time("cutoff", cutoff),
	)

	return pruned, nil
}

// archivePath names the object for one archive pass, partitioned by day so
// prefix listings stay cheap.
func archivePath(now time.Time) string {
	return fmt.Sprintf("opportunities/%04d/%02d/%02d/%s.jsonl",
		now.Year(), now.Month(), now.Day(), now.Format("150405"))
}

// RunLoop runs archive passes on a fixed interval until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.retentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
