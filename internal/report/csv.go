// Package report renders the reconciled portfolio into the per-profile CSV
// trade report. Reporting is best-effort: it consumes whatever the
// reconciler produced, including the degraded empty portfolio.
package report

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/portfolio"
	"github.com/jdelaney/brokerbot/internal/tools"
)

var header = []string{
	"Date", "Type", "Ticker", "Shares", "Price", "Total", "Model", "P&L", "P&L_Percent",
	"Price_Lookups", "Cache_Hits",
}

// Writer renders trade reports for one profile.
type Writer struct {
	path   string
	model  string
	logger *log.Logger
}

// NewWriter creates a report writer targeting the given CSV path.
func NewWriter(path, model string, logger *log.Logger) *Writer {
	return &Writer{path: path, model: model, logger: logger}
}

// Write renders the portfolio's trade history to the CSV file, followed by
// one session row carrying the price-cache counters. The whole file is
// rewritten each session from the authoritative history, so a report
// damaged by an earlier crash heals on the next run. Sell rows carry
// realized P&L against the weighted-average cost basis; rows with no prior
// buys leave the P&L columns empty.
func (w *Writer) Write(folio *models.Portfolio, stats tools.Snapshot) error {
	rows := make([][]string, 0, len(folio.History)+2)
	rows = append(rows, header)
	for _, trade := range folio.History {
		rows = append(rows, w.row(folio.History, trade))
	}
	rows = append(rows, []string{
		time.Now().UTC().Format(time.RFC3339),
		"session", "", "", "", "", w.model, "", "",
		strconv.Itoa(stats.PriceLookups),
		strconv.Itoa(stats.CacheHits),
	})

	if err := writeAtomic(w.path, rows); err != nil {
		return fmt.Errorf("writing trade report: %w", err)
	}
	w.logger.Printf("Trade report written: %s (%d trades)", w.path, len(folio.History))
	return nil
}

func (w *Writer) row(history []models.Trade, trade models.Trade) []string {
	pnlCol, pctCol := "", ""
	if pnl, pct, ok := portfolio.TradePnL(history, trade); ok {
		pnlCol = strconv.FormatFloat(pnl, 'f', 2, 64)
		pctCol = strconv.FormatFloat(pct, 'f', 2, 64)
	}
	return []string{
		trade.Date.Format(time.RFC3339),
		string(trade.Side),
		trade.Ticker,
		strconv.FormatFloat(trade.Shares, 'f', -1, 64),
		strconv.FormatFloat(trade.Price, 'f', 2, 64),
		strconv.FormatFloat(trade.Total, 'f', 2, 64),
		w.model,
		pnlCol,
		pctCol,
		"",
		"",
	}
}

// writeAtomic writes rows to path via a temp file and rename so a crash
// mid-write never leaves a truncated report.
func writeAtomic(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
