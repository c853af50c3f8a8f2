package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaney/brokerbot/internal/models"
)

func TestParseFreeText_PseudoCode(t *testing.T) {
	calls := ParseFreeText(`print(buy(ticker='AAPL', shares=5))`)

	require.Len(t, calls, 1)
	assert.Equal(t, models.ToolBuy, calls[0].Name)
	assert.Equal(t, "AAPL", calls[0].StringArg("ticker"))
	shares, ok := calls[0].FloatArg("shares")
	require.True(t, ok)
	assert.Equal(t, 5.0, shares)
}

func TestParseFreeText_BarePseudoCodeWithQuotedComma(t *testing.T) {
	calls := ParseFreeText(`web_search(query='AAPL, MSFT earnings')`)

	require.Len(t, calls, 1)
	assert.Equal(t, models.ToolWebSearch, calls[0].Name)
	assert.Equal(t, "AAPL, MSFT earnings", calls[0].StringArg("query"),
		"commas inside quotes must not split arguments")
}

func TestParseFreeText_ProseIsNotACall(t *testing.T) {
	assert.Nil(t, ParseFreeText("I will hold (for now) and watch the market."))
	assert.Nil(t, ParseFreeText("Consider selling(!) if it drops"))
	assert.Nil(t, ParseFreeText(""))
}

func TestParseFreeText_EmbeddedJSONObject(t *testing.T) {
	text := `Let me check the price first.
{"tool": "get_stock_price", "parameters": {"ticker": "NVDA"}}
Then I'll decide.`

	calls := ParseFreeText(text)
	require.Len(t, calls, 1)
	assert.Equal(t, models.ToolGetStockPrice, calls[0].Name)
	assert.Equal(t, "NVDA", calls[0].StringArg("ticker"))
}

func TestParseFreeText_ToolCodeArray(t *testing.T) {
	text := `{"tool_code": [
		{"tool": "think", "parameters": {"thought": "need prices"}},
		{"tool": "get_stock_price", "parameters": {"ticker": "MSFT"}}
	]}`

	calls := ParseFreeText(text)
	require.Len(t, calls, 2)
	assert.Equal(t, models.ToolThink, calls[0].Name)
	assert.Equal(t, models.ToolGetStockPrice, calls[1].Name)
}

func TestParseFreeText_TopLevelArray(t *testing.T) {
	text := `[{"name": "get_portfolio", "args": {}}, {"name": "get_net_worth", "args": {}}]`

	calls := ParseFreeText(text)
	require.Len(t, calls, 2)
	assert.Equal(t, models.ToolGetPortfolio, calls[0].Name)
	assert.Equal(t, models.ToolGetNetWorth, calls[1].Name)
}

func TestParseFreeText_QuotedPortfolioJSONIsNotACall(t *testing.T) {
	text := `Here is what I see: {"name": "Apple Inc", "price": 232.5}`
	assert.Nil(t, ParseFreeText(text))
}

func TestParseFreeText_BracesInsideStringsDoNotConfuseScanner(t *testing.T) {
	text := `{"tool": "think", "parameters": {"thought": "if x { y } else { z }"}}`

	calls := ParseFreeText(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "if x { y } else { z }", calls[0].StringArg("thought"))
}

func TestParseFreeText_UnknownToolInExplicitJSONIsKept(t *testing.T) {
	// Explicitly labeled tool calls pass through so the dispatcher can answer
	// with its "unknown function" string.
	calls := ParseFreeText(`{"tool": "teleport", "parameters": {}}`)
	require.Len(t, calls, 1)
	assert.Equal(t, "teleport", calls[0].Name)
}

func TestReplyCalls_PrefersStructuredCalls(t *testing.T) {
	reply := &Reply{
		Text:      `{"tool": "sell", "parameters": {"ticker": "AAPL"}}`,
		ToolCalls: []models.ToolCall{{ID: "call-1", Name: models.ToolThink, Args: map[string]any{}}},
	}
	calls := reply.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.ToolThink, calls[0].Name)
}

func TestReplyCalls_FallsBackToFreeText(t *testing.T) {
	reply := &Reply{Text: `get_net_worth()`}
	calls := reply.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.ToolGetNetWorth, calls[0].Name)
}
