package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, run_id, strategy, symbol, side, qty, entry_price, exit_price,
	open_time, close_time, commission, realized_pl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Strategy,
		&rec.Symbol,
		&rec.Side,
		&rec.Qty,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.Commission,
		&rec.RealizedPL,
		&rec.Reason,
	)
	return rec, err
}

func (j *SQLite) queryTrades(ctx context.Context, query string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the trades of one run, or of every run when runID is
// empty, in close order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	if runID == "" {
		return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY close_time ASC, trade_id ASC`)
	}
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE run_id = ?
		ORDER BY close_time ASC, trade_id ASC`, runID)
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, trade_id ASC`, start.UTC(), end.UTC())
}

// ListEquity returns the equity samples of one run in time order.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, cash, equity, realized_pl, unrealized_pl, open_positions
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Cash, &e.Equity, &e.RealizedPL, &e.UnrealizedPL, &e.OpenPositions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRuns returns every recorded run summary, newest start first.
func (j *SQLite) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, strategy, start_time, end_time, initial_capital, final_equity, total_return,
		       sharpe, max_drawdown, trades, win_rate, profit_factor, fees, cancelled
		FROM runs
		ORDER BY start_time DESC, run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Start, &r.End, &r.InitialCapital, &r.FinalEquity,
			&r.TotalReturn, &r.Sharpe, &r.MaxDrawdown, &r.Trades, &r.WinRate, &r.ProfitFactor,
			&r.Fees, &r.Cancelled); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
