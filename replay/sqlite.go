package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/papertrader/market"
)

const barSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	ts INTEGER NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
);
`

// SQLiteSource is a bar store keyed by canonical symbol, timeframe and unix
// seconds.
type SQLiteSource struct {
	db *sql.DB
}

func OpenSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(barSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func (s *SQLiteSource) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	lo, hi := int64(0), int64(1<<62)
	if !start.IsZero() {
		lo = start.Unix()
	}
	if !end.IsZero() {
		hi = end.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		symbol, tf.String(), lo, hi,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Bar
	for rows.Next() {
		var (
			ts int64
			b  market.Bar
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Symbol = symbol
		b.Time = time.Unix(ts, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Import upserts bars for one symbol/timeframe in a single transaction and
// returns how many rows were written.
func (s *SQLiteSource) Import(ctx context.Context, symbol string, tf market.Timeframe, bars []market.Bar) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars
		(symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return n, fmt.Errorf("import %s: %w", symbol, err)
		}
		if _, err := stmt.ExecContext(ctx, symbol, tf.String(), b.Time.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return n, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
