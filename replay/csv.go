package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// CSVSource reads bars from a directory of files named
//
//	<SYMBOL>_<timeframe>.csv    e.g. BTCUSD_15Min.csv, SPY_5Min.csv
//
// with rows
//
//	time,open,high,low,close,volume
//
// where time is RFC3339 or RFC3339Nano. A header row is allowed.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Path returns the file a symbol/timeframe pair is read from.
func (s *CSVSource) Path(symbol string, tf market.Timeframe) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.csv", market.FileKey(symbol), tf))
}

func (s *CSVSource) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	path := s.Path(symbol, tf)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: no file %s", ErrDataUnavailable, symbol, filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBarsCSV(ctx, f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	out := bars[:0]
	for _, b := range bars {
		if inRange(b.Time, start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ReadBarsCSV parses every bar row in r and stamps it with symbol.
func ReadBarsCSV(ctx context.Context, r io.Reader, symbol string) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		out      []market.Bar
		sawFirst bool
		line     int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, ok, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		b.Symbol = symbol
		out = append(out, b)
	}
}

func parseBarRow(row []string) (market.Bar, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Bar{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Bar{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return market.Bar{}, false, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}

	var vals [5]float64
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("bad field %d %q: %w", i, row[i], err)
		}
		vals[i-1] = v
	}

	return market.Bar{
		Time:   t.UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true, nil
}

// WriteBarsCSV writes bars in the format ReadBarsCSV accepts.
func WriteBarsCSV(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
