// Package data handles market data ingestion and result export. Bars
// come in as CSV with a header row; validation is delegated to the
// series package so bad files fail loudly at load time.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads a bar file and returns a validated series.
func LoadCSV(path string) (*series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return series.New(bars)
}

// ReadBars parses CSV bar rows. The first row must be the header
// timestamp,open,high,low,close,volume. Timestamps are RFC 3339 or
// unix seconds.
func ReadBars(r io.Reader) ([]types.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(csvHeader) {
		return nil, fmt.Errorf("header has %d columns, want %d", len(header), len(csvHeader))
	}
	for i, want := range csvHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != want {
			return nil, fmt.Errorf("header column %d is %q, want %q", i, header[i], want)
		}
	}

	var bars []types.Bar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(record []string) (types.Bar, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return types.Bar{}, err
	}
	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		v, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return types.Bar{}, fmt.Errorf("column %s: %w", csvHeader[i+1], err)
		}
		fields[i] = v
	}
	return types.Bar{
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// WriteTradeLog writes closed trades as CSV.
func WriteTradeLog(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "direction", "entry_time", "exit_time",
		"entry_price", "exit_price", "size", "fees", "pnl",
	}); err != nil {
		return err
	}
	for _, tr := range trades {
		if err := cw.Write([]string{
			tr.ID,
			string(tr.Direction),
			tr.EntryTime.UTC().Format(time.RFC3339),
			tr.ExitTime.UTC().Format(time.RFC3339),
			tr.EntryPrice.String(),
			tr.ExitPrice.String(),
			tr.Size.String(),
			tr.Fees.String(),
			tr.PnL.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportTradeLog writes the trade log to a file.
func ExportTradeLog(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteTradeLog(f, trades); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
