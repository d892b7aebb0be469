package strategies

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(symbol string, close float64, bars int, values map[string]float64) indicators.Snapshot {
	return indicators.Snapshot{Symbol: symbol, Close: close, Bars: bars, Values: values}
}

var weekdayOpen = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC) // 10:00 New York

func TestCryptoMeanReversion(t *testing.T) {
	t.Parallel()

	s := NewCryptoMeanReversion(DefaultCryptoParams())
	assert.Equal(t, []string{"BTC/USD", "ETH/USD", "SOL/USD"}, s.Symbols())
	flat := AccountState{Equity: 100_000, Cash: 100_000}

	tests := []struct {
		name   string
		snap   indicators.Snapshot
		acct   AccountState
		signal Signal
		size   float64
		stop   float64
	}{
		{
			name:   "oversold enters with atr stop",
			snap:   snap("BTC/USD", 50_000, 30, map[string]float64{indicators.RSI7: 22, indicators.ATR14: 400}),
			acct:   flat,
			signal: EnterLong,
			size:   0.10,
			stop:   49_400,
		},
		{
			name:   "sol is half sized",
			snap:   snap("SOL/USD", 100, 30, map[string]float64{indicators.RSI7: 10, indicators.ATR14: 2}),
			acct:   flat,
			signal: EnterLong,
			size:   0.025,
			stop:   97,
		},
		{
			name:   "rsi at threshold holds",
			snap:   snap("ETH/USD", 3_000, 30, map[string]float64{indicators.RSI7: 25, indicators.ATR14: 20}),
			acct:   flat,
			signal: Hold,
		},
		{
			name:   "too few bars",
			snap:   snap("BTC/USD", 50_000, 19, map[string]float64{indicators.RSI7: 10, indicators.ATR14: 400}),
			acct:   flat,
			signal: Hold,
		},
		{
			name:   "missing atr",
			snap:   snap("BTC/USD", 50_000, 30, map[string]float64{indicators.RSI7: 10}),
			acct:   flat,
			signal: Hold,
		},
		{
			name:   "recovered rsi exits",
			snap:   snap("BTC/USD", 50_000, 30, map[string]float64{indicators.RSI7: 45, indicators.ATR14: 400}),
			acct:   AccountState{Equity: 100_000, InPosition: true, Qty: 0.1},
			signal: Exit,
		},
		{
			name:   "still oversold in position holds",
			snap:   snap("BTC/USD", 50_000, 30, map[string]float64{indicators.RSI7: 12, indicators.ATR14: 400}),
			acct:   AccountState{Equity: 100_000, InPosition: true, Qty: 0.1},
			signal: Hold,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := s.Evaluate(weekdayOpen, tt.snap, tt.acct)
			assert.Equal(t, tt.signal, d.Signal, d.Reason)
			if tt.signal == EnterLong {
				assert.InDelta(t, tt.size, d.SizeHint, 1e-12)
				assert.InDelta(t, tt.stop, d.StopPrice, 1e-9)
			}
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestEquityMeanReversion(t *testing.T) {
	t.Parallel()

	s := NewEquityMeanReversion(DefaultEquityParams())
	ready := func(close, rsi float64) indicators.Snapshot {
		return snap("SPY", close, 30, map[string]float64{
			indicators.RSI7:     rsi,
			indicators.BBLower:  400,
			indicators.BBMiddle: 410,
			indicators.ATR14:    2,
		})
	}
	flat := AccountState{Equity: 100_000, Cash: 100_000}
	held := AccountState{Equity: 100_000, InPosition: true, Qty: 10}

	d := s.Evaluate(weekdayOpen, ready(399.5, 15), flat)
	require.Equal(t, EnterLong, d.Signal)
	assert.Equal(t, 0.05, d.SizeHint)
	assert.Equal(t, 396.5, d.StopPrice)

	assert.Equal(t, Hold, s.Evaluate(weekdayOpen, ready(401, 15), flat).Signal)
	assert.Equal(t, Hold, s.Evaluate(weekdayOpen, ready(399, 20), flat).Signal)

	assert.Equal(t, Exit, s.Evaluate(weekdayOpen, ready(410, 30), held).Signal)
	assert.Equal(t, Exit, s.Evaluate(weekdayOpen, ready(405, 50), held).Signal)
	assert.Equal(t, Hold, s.Evaluate(weekdayOpen, ready(405, 35), held).Signal)

	// simulated time drives the session check, not the wall clock
	saturday := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	d = s.Evaluate(saturday, ready(399.5, 15), flat)
	assert.Equal(t, Hold, d.Signal)
	assert.Equal(t, "market closed", d.Reason)

	few := ready(399.5, 15)
	few.Bars = 24
	assert.Equal(t, Hold, s.Evaluate(weekdayOpen, few, flat).Signal)
}

func TestMarketOpen(t *testing.T) {
	t.Parallel()

	ny := NewYork()
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 5, 9, 29, 0, 0, ny), false},
		{"open", time.Date(2024, 3, 5, 9, 30, 0, 0, ny), true},
		{"close bell", time.Date(2024, 3, 5, 16, 0, 0, 0, ny), true},
		{"after close", time.Date(2024, 3, 5, 16, 5, 0, 0, ny), false},
		{"sunday", time.Date(2024, 3, 10, 12, 0, 0, 0, ny), false},
		// 14:00 UTC is 10:00 EDT in July but 09:00 EST in January
		{"summer utc", time.Date(2024, 7, 9, 14, 0, 0, 0, time.UTC), true},
		{"winter utc", time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketOpen(tt.at, ny))
		})
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	all, err := ByName("all")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, CryptoMeanReversionName, all[0].Name())
	assert.Equal(t, EquityMeanReversionName, all[1].Name())

	one, err := ByName(" Crypto_Mean_Reversion ")
	require.NoError(t, err)
	require.Len(t, one, 1)

	_, err = ByName("momentum")
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
	assert.Contains(t, err.Error(), "equity_mean_reversion")
}
