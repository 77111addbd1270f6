package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akornilov/crossarb/internal/domain"
)

// tickTTL bounds how long a cached tick is served. Stale quotes are worse
// than no quotes for position valuation.
const tickTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each tick is
// stored at key "tick:{exchange}:{symbol}" with fields "bid", "ask", "last"
// and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func tickKey(exchange, symbol string) string {
	return "tick:" + exchange + ":" + symbol
}

// SetTick stores the latest tick for an exchange/symbol pair.
func (pc *PriceCache) SetTick(ctx context.Context, exchange, symbol string, tick domain.Tick) error {
	key := tickKey(exchange, symbol)
	fields := map[string]interface{}{
		"bid":  strconv.FormatFloat(tick.Bid, 'f', -1, 64),
		"ask":  strconv.FormatFloat(tick.Ask, 'f', -1, 64),
		"last": strconv.FormatFloat(tick.Last, 'f', -1, 64),
		"ts":   strconv.FormatInt(tick.ObservedAt.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, tickTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tick %s %s: %w", exchange, symbol, err)
	}
	return nil
}

// GetTick retrieves the latest tick for an exchange/symbol pair.
// It returns domain.ErrNotFound when no tick is cached.
func (pc *PriceCache) GetTick(ctx context.Context, exchange, symbol string) (domain.Tick, error) {
	key := tickKey(exchange, symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s %s: %w", exchange, symbol, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}

	var tick domain.Tick
	if tick.Bid, err = parseField(vals, "bid"); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: tick %s %s: %w", exchange, symbol, err)
	}
	if tick.Ask, err = parseField(vals, "ask"); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: tick %s %s: %w", exchange, symbol, err)
	}
	if tick.Last, err = parseField(vals, "last"); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: tick %s %s: %w", exchange, symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: tick %s %s: parse ts: %w", exchange, symbol, err)
	}
	tick.ObservedAt = time.Unix(0, tsNano)

	return tick, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
