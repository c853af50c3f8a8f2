package report

import (
	"bytes"
	"encoding/csv"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/tools"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_WriteRendersTradesWithPnL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report-test.csv")
	w := NewWriter(path, "gpt-4o", log.New(&bytes.Buffer{}, "", 0))

	day := func(d int) time.Time {
		return time.Date(2025, time.March, d, 10, 0, 0, 0, time.UTC)
	}
	folio := &models.Portfolio{
		Cash:     500,
		Holdings: map[string]float64{"AAPL": 5},
		History: []models.Trade{
			{Date: day(1), Side: models.SideBuy, Ticker: "AAPL", Shares: 5, Price: 100, Total: 500},
			{Date: day(2), Side: models.SideBuy, Ticker: "AAPL", Shares: 5, Price: 120, Total: 600},
			{Date: day(3), Side: models.SideSell, Ticker: "AAPL", Shares: 5, Price: 130, Total: 650},
		},
	}

	require.NoError(t, w.Write(folio, tools.Snapshot{PriceLookups: 7, CacheHits: 4}))

	rows := readCSV(t, path)
	require.Len(t, rows, 5)
	assert.Equal(t, header, rows[0])

	// Buy rows carry no P&L.
	assert.Equal(t, "buy", rows[1][1])
	assert.Empty(t, rows[1][7])
	assert.Equal(t, "gpt-4o", rows[1][6])

	// Sell against the 110 weighted-average basis: (130-110)*5 = 100.
	sell := rows[3]
	assert.Equal(t, "sell", sell[1])
	assert.Equal(t, "100.00", sell[7])
	assert.Equal(t, "9.09", sell[8])

	// Trailing session row records the cache counters.
	session := rows[4]
	assert.Equal(t, "session", session[1])
	assert.Equal(t, "7", session[9])
	assert.Equal(t, "4", session[10])
}

func TestWriter_SellWithoutPriorBuysLeavesPnLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report-test.csv")
	w := NewWriter(path, "gpt-4o", log.New(&bytes.Buffer{}, "", 0))

	folio := &models.Portfolio{History: []models.Trade{
		{Date: time.Now(), Side: models.SideSell, Ticker: "TSLA", Shares: 3, Price: 250, Total: 750},
	}}
	require.NoError(t, w.Write(folio, tools.Snapshot{}))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Empty(t, rows[1][7])
	assert.Empty(t, rows[1][8])
}

func TestWriter_EmptyPortfolioStillRecordsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report-test.csv")
	w := NewWriter(path, "gpt-4o", log.New(&bytes.Buffer{}, "", 0))

	require.NoError(t, w.Write(models.EmptyPortfolio(), tools.Snapshot{PriceLookups: 2}))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "session", rows[1][1])
	assert.Equal(t, "2", rows[1][9])
	assert.Equal(t, "0", rows[1][10])
}

func TestWriter_RewritesWholeFileEachRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report-test.csv")
	w := NewWriter(path, "gpt-4o", log.New(&bytes.Buffer{}, "", 0))

	big := &models.Portfolio{History: []models.Trade{
		{Date: time.Now(), Side: models.SideBuy, Ticker: "MSFT", Shares: 2, Price: 400, Total: 800},
		{Date: time.Now(), Side: models.SideBuy, Ticker: "AAPL", Shares: 1, Price: 200, Total: 200},
	}}
	require.NoError(t, w.Write(big, tools.Snapshot{}))
	require.NoError(t, w.Write(&models.Portfolio{History: big.History[:1]}, tools.Snapshot{}))

	rows := readCSV(t, path)
	assert.Len(t, rows, 3, "stale rows from earlier runs must not survive")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
