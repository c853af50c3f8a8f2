package portfolio

import (
	"math"

	"github.com/jdelaney/brokerbot/internal/models"
)

// TradePnL computes realized P&L for a sell trade against the weighted
// average cost basis of all prior buys of the same ticker dated strictly
// before the sell. The bool is false when no prior buys exist (for example a
// short sale), in which case P&L is left unreported rather than guessed.
func TradePnL(history []models.Trade, sell models.Trade) (pnl, pnlPercent float64, ok bool) {
	if sell.Side != models.SideSell {
		return 0, 0, false
	}

	var totalCost, totalShares float64
	for _, t := range history {
		if t.Side == models.SideBuy && t.Ticker == sell.Ticker && t.Date.Before(sell.Date) {
			totalCost += t.Total
			totalShares += t.Shares
		}
	}
	if totalShares <= 0 {
		return 0, 0, false
	}

	avgBuyPrice := totalCost / totalShares
	pnl = (sell.Price - avgBuyPrice) * sell.Shares
	// Percent is relative to the total capital committed in the prior buys,
	// not to the average price, so partial exits report against the full
	// position cost.
	pnlPercent = pnl / totalCost * 100
	return pnl, pnlPercent, true
}

// CAGR annualizes the return from startValue to currentValue over the given
// number of days. days == 0 yields +Inf, a defined IEEE-754 result callers
// may special-case. For 0 < days < 1 there is not enough data for a stable
// annualization and the bool is false.
func CAGR(days, currentValue, startValue float64) (float64, bool) {
	if days == 0 {
		return math.Inf(1), true
	}
	if days < 1 {
		return 0, false
	}
	if startValue <= 0 {
		return 0, false
	}
	return math.Pow(currentValue/startValue, 365/days) - 1, true
}
