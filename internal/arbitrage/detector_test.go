package arbitrage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akornilov/crossarb/internal/domain"
)

type fixedQuotes map[string]domain.Quote

func (f fixedQuotes) Quotes(ctx context.Context, symbol string) map[string]domain.Quote {
	return f
}

func spotQuote(exchange string, bid, ask, volume float64) domain.Quote {
	return domain.Quote{
		Exchange:   exchange,
		Market:     domain.MarketSpot,
		Bid:        bid,
		Ask:        ask,
		Last:       (bid + ask) / 2,
		BaseVolume: volume,
		ObservedAt: time.Now().UTC(),
	}
}

func detector(quotes fixedQuotes, minProfit, commission float64) *Detector {
	return NewDetector(quotes, DetectorConfig{MinProfit: minProfit, Commission: commission}, slog.Default())
}

func TestFindOpportunityBorderlineAccept(t *testing.T) {
	// (100-99.5)/99.5*100 - 0.2 ≈ 0.303 >= 0.3
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 101, 1_000),
		"b_spot": spotQuote("b", 99, 99.5, 1_000),
	}

	opp, err := detector(quotes, 0.3, 0.2).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, "b", opp.BuyExchange)
	assert.Equal(t, "a", opp.SellExchange)
	assert.InDelta(t, 99.5, opp.BuyPrice, 1e-9)
	assert.InDelta(t, 100, opp.SellPrice, 1e-9)
	assert.InDelta(t, 0.3025, opp.ProfitPercent, 0.001)
	assert.Equal(t, 1_000.0, opp.Volume)
}

func TestFindOpportunityBelowThreshold(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 101, 1_000),
		"b_spot": spotQuote("b", 99, 99.5, 1_000),
	}

	opp, err := detector(quotes, 0.5, 0.2).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestFindOpportunityNeedsTwoQuotes(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 101, 1_000),
	}

	opp, err := detector(quotes, 0.1, 0).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestFindOpportunityIgnoresZeroVolumeQuotes(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 101, 0),
		"b_spot": spotQuote("b", 99, 99.5, 1_000),
	}

	opp, err := detector(quotes, 0.1, 0).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestFindOpportunitySameExchangeNotActionable(t *testing.T) {
	// Exchange a holds both the best bid and the best ask.
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 102, 103, 1_000),
		"b_spot": spotQuote("b", 100, 104, 1_000),
	}

	opp, err := detector(quotes, 0, 0).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, opp, "best bid and best ask on the same venue is an intra-exchange spread")
}

func TestFindOpportunityTieBreakPrefersVolume(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 100.2, 500),
		"b_spot": spotQuote("b", 100, 100.2, 5_000), // same prices, more volume
		"c_spot": spotQuote("c", 99, 99.1, 2_000),
	}

	opp, err := detector(quotes, 0, 0).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, "b", opp.SellExchange, "volume breaks the best-bid tie")
	assert.Equal(t, "c", opp.BuyExchange)
}

func TestFindOpportunityDeterministicOnFullTie(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 100.2, 1_000),
		"b_spot": spotQuote("b", 100, 100.2, 1_000),
		"c_spot": spotQuote("c", 98, 98.5, 1_000),
	}

	for i := 0; i < 10; i++ {
		opp, err := detector(quotes, 0, 0).FindOpportunity(context.Background(), "BTC/USDT")
		require.NoError(t, err)
		require.NotNil(t, opp)
		assert.Equal(t, "a", opp.SellExchange, "full ties resolve by key, independent of map order")
	}
}

func TestFindOpportunityVolumeIsMinOfSides(t *testing.T) {
	quotes := fixedQuotes{
		"a_spot": spotQuote("a", 100, 101, 9_000),
		"b_spot": spotQuote("b", 99, 99.2, 4_000),
	}

	opp, err := detector(quotes, 0, 0).FindOpportunity(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, 4_000.0, opp.Volume)
}
