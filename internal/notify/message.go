package notify

import (
	"fmt"

	"github.com/akornilov/crossarb/internal/domain"
)

// OpportunityMessage renders a detected opportunity as an alert title and
// body. Formatting lives here rather than in the cycle so every channel and
// every caller announces opportunities the same way.
func OpportunityMessage(opp domain.Opportunity) (title, message string) {
	title = fmt.Sprintf("Arbitrage: %s", opp.Symbol)
	message = fmt.Sprintf(
		"Buy %s @ %.6f on %s, sell @ %.6f on %s\nProfit: %.2f%%  Volume: %.2f",
		opp.Symbol, opp.BuyPrice, opp.BuyExchange,
		opp.SellPrice, opp.SellExchange,
		opp.ProfitPercent, opp.Volume,
	)
	return title, message
}

// PositionClosedMessage renders a completed close for the position's owner.
func PositionClosedMessage(pos domain.Position) (title, message string) {
	title = fmt.Sprintf("Closed: %s", pos.Symbol)
	exit := 0.0
	if pos.ExitPrice != nil {
		exit = *pos.ExitPrice
	}
	message = fmt.Sprintf(
		"%s %s on %s\nEntry %.6f, exit %.6f, amount %.6f",
		pos.Direction, pos.Symbol, pos.Exchange,
		pos.EntryPrice, exit, pos.Amount,
	)
	return title, message
}
