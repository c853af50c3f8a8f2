package tools

import (
	"github.com/jdelaney/brokerbot/internal/llm"
	"github.com/jdelaney/brokerbot/internal/models"
)

func tickerSharesParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ticker": map[string]any{"type": "string", "description": "Stock ticker symbol, e.g. AAPL"},
			"shares": map[string]any{"type": "number", "description": "Number of shares, must be positive"},
		},
		"required": []string{"ticker", "shares"},
	}
}

// Catalog is the declarative tool catalog sent to the model provider.
func Catalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        models.ToolThink,
			Description: "Record your reasoning before taking any other action. Call this first in every turn.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"thought": map[string]any{"type": "string", "description": "Your reasoning"},
				},
				"required": []string{"thought"},
			},
		},
		{
			Name:        models.ToolGetStockPrice,
			Description: "Get the current trading price for a ticker.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker": map[string]any{"type": "string", "description": "Stock ticker symbol"},
				},
				"required": []string{"ticker"},
			},
		},
		{
			Name:        models.ToolGetPortfolio,
			Description: "Get current cash, holdings, and recent trade history.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        models.ToolGetNetWorth,
			Description: "Get total account value (cash plus holdings).",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        models.ToolWebSearch,
			Description: "Search the web for market news and information.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        models.ToolBuy,
			Description: "Buy shares of a stock at the current market price.",
			Parameters:  tickerSharesParams(),
		},
		{
			Name:        models.ToolSell,
			Description: "Sell shares you currently hold at the current market price.",
			Parameters:  tickerSharesParams(),
		},
		{
			Name:        models.ToolShortSell,
			Description: "Open a short position. Requires sufficient account equity and margin.",
			Parameters:  tickerSharesParams(),
		},
		{
			Name:        models.ToolCoverShort,
			Description: "Buy back shares to close an existing short position.",
			Parameters:  tickerSharesParams(),
		},
	}
}
