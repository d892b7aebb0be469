// Package report turns a finished run's trades and equity curve into
// performance metrics and report files. Nothing here mutates its inputs.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/sim"
)

// RiskFreeRate is the annual rate subtracted in the Sharpe ratio.
const RiskFreeRate = 0.02

const year = 365.25 * 24 * time.Hour

// Metrics summarizes one run, or one strategy's slice of a run.
type Metrics struct {
	InitialCapital float64
	FinalEquity    float64

	Start time.Time
	End   time.Time
	Days  float64

	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64 // annualized from the sampling interval
	Sharpe           float64
	MaxDrawdown      float64 // positive fraction of peak
	Calmar           float64

	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	ProfitFactor float64 // 0 when there are no losing trades
	AvgTrade     float64
	AvgWin       float64
	AvgLoss      float64
	LargestWin   float64
	LargestLoss  float64
	Fees         float64
	NetPnL       float64
}

// Compute derives the curve and trade metrics. Returns and volatility are
// measured at the curve's own sampling interval and annualized from it.
func Compute(initial float64, curve []sim.EquityPoint, trades []sim.Trade) Metrics {
	m := Metrics{InitialCapital: initial, FinalEquity: initial}
	tradeStats(&m, trades)

	if len(curve) == 0 {
		return m
	}
	m.Start = curve[0].Time
	m.End = curve[len(curve)-1].Time
	m.FinalEquity = curve[len(curve)-1].Equity
	m.Days = m.End.Sub(m.Start).Hours() / 24

	if initial > 0 {
		m.TotalReturn = (m.FinalEquity - initial) / initial
	}
	span := m.End.Sub(m.Start)
	if span > 0 && m.TotalReturn > -1 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, float64(year)/float64(span)) - 1
	}

	m.MaxDrawdown = MaxDrawdown(curve)

	if rets := returns(curve); len(rets) > 1 && span > 0 {
		interval := span / time.Duration(len(curve)-1)
		perYear := float64(year) / float64(interval)
		m.Volatility = stddev(rets) * math.Sqrt(perYear)
	}
	if m.Volatility > 0 {
		m.Sharpe = (m.AnnualizedReturn - RiskFreeRate) / m.Volatility
	}
	if m.MaxDrawdown > 0 {
		m.Calmar = m.AnnualizedReturn / m.MaxDrawdown
	}
	return m
}

// MaxDrawdown is the largest fall from a running equity peak, as a fraction
// of that peak.
func MaxDrawdown(curve []sim.EquityPoint) float64 {
	var peak, dd float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if d := (peak - p.Equity) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

func returns(curve []sim.EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func tradeStats(m *Metrics, trades []sim.Trade) {
	m.Trades = len(trades)
	if len(trades) == 0 {
		return
	}
	var won, lost float64
	m.LargestWin = math.Inf(-1)
	m.LargestLoss = math.Inf(1)
	for _, t := range trades {
		m.NetPnL += t.PnL
		m.Fees += t.Commission
		switch {
		case t.PnL > 0:
			m.Wins++
			won += t.PnL
		case t.PnL < 0:
			m.Losses++
			lost += t.PnL
		}
		m.LargestWin = math.Max(m.LargestWin, t.PnL)
		m.LargestLoss = math.Min(m.LargestLoss, t.PnL)
	}

	m.WinRate = float64(m.Wins) / float64(m.Trades)
	m.AvgTrade = m.NetPnL / float64(m.Trades)
	if m.Wins > 0 {
		m.AvgWin = won / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = lost / float64(m.Losses)
		m.ProfitFactor = won / -lost
	}
}

// ByStrategy groups trade statistics per strategy name, sorted by name.
// Curve metrics are portfolio-wide and left zero.
func ByStrategy(trades []sim.Trade) []StrategyMetrics {
	groups := make(map[string][]sim.Trade)
	for _, t := range trades {
		groups[t.Strategy] = append(groups[t.Strategy], t)
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]StrategyMetrics, 0, len(names))
	for _, n := range names {
		var m Metrics
		tradeStats(&m, groups[n])
		out = append(out, StrategyMetrics{Strategy: n, Metrics: m})
	}
	return out
}

type StrategyMetrics struct {
	Strategy string
	Metrics
}
