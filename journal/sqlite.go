package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, strategy, symbol, side, qty, entry_price, exit_price,
		 open_time, close_time, commission, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Strategy, t.Symbol, t.Side, t.Qty, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.Commission, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, cash, equity, realized_pl, unrealized_pl, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UTC(), e.Cash, e.Equity, e.RealizedPL, e.UnrealizedPL, e.OpenPositions,
	)
	return err
}

// RecordRun upserts a run summary.
func (j *SQLite) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, strategy, start_time, end_time, initial_capital, final_equity, total_return,
		 sharpe, max_drawdown, trades, win_rate, profit_factor, fees, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Strategy, r.Start.UTC(), r.End.UTC(), r.InitialCapital, r.FinalEquity, r.TotalReturn,
		r.Sharpe, r.MaxDrawdown, r.Trades, r.WinRate, r.ProfitFactor, r.Fees, r.Cancelled,
	)
	return err
}

// ResetRun deletes the trades, equity samples and summary recorded under
// runID.
func (j *SQLite) ResetRun(ctx context.Context, runID string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, table := range []string{"trades", "equity", "runs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
