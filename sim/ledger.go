// Package sim is the simulated brokerage: cash, positions, orders, fills and
// closed trades for one replay run.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/internal/logger"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrMaxPositions     = errors.New("max positions reached")
	ErrNoPrice          = errors.New("no price")
	ErrNoPosition       = errors.New("no position")
	ErrInvalidOrder     = errors.New("invalid order")
)

// cashEpsilon absorbs float noise when an order spends exactly all cash.
const cashEpsilon = 1e-9

type Config struct {
	RunID        string
	InitialCash  float64
	Costs        Costs
	MaxPositions int   // <= 0 means DefaultMaxPositions
	Seed         int64 // order and trade id entropy
}

// Account is a point-in-time view of the ledger. Equity always equals
// Cash plus the marked value of every open position.
type Account struct {
	Time        time.Time
	InitialCash float64
	Cash        float64
	Equity      float64
	// Realized sums the net P&L of closed round trips. Unrealized carries
	// everything else: marks, partial exits and commissions of open positions.
	Realized      float64
	Unrealized    float64
	Fees          float64
	OpenPositions int
}

type EquityPoint struct {
	Time   time.Time
	Equity float64
	Cash   float64
}

// Ledger is the authoritative simulated account. Positions are keyed by
// canonical symbol and orders by id; a position refers to its stop only by
// order id. A Ledger is driven by one replay loop and is not safe for
// concurrent use.
type Ledger struct {
	cfg     Config
	symbols *market.Symbols
	ids     *id.Generator
	journal journal.Journal
	log     *zap.Logger

	now      time.Time
	cash     float64
	realized float64
	fees     float64

	positions map[string]*Position
	orders    map[string]*Order
	pending   []string // resting limit orders, submission order
	marks     map[string]float64
	lastBar   map[string]time.Time

	trades     []Trade
	rejections []Rejection
	curve      []EquityPoint
}

func NewLedger(symbols *market.Symbols, cfg Config, j journal.Journal, log *zap.Logger) *Ledger {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = DefaultMaxPositions
	}
	if j == nil {
		j = journal.Nop{}
	}
	return &Ledger{
		cfg:       cfg,
		symbols:   symbols,
		ids:       id.NewGenerator(id.Scoped(cfg.Seed, cfg.RunID)),
		journal:   j,
		log:       logger.OrNop(log),
		cash:      cfg.InitialCash,
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
		marks:     make(map[string]float64),
		lastBar:   make(map[string]time.Time),
	}
}

func (l *Ledger) Costs() Costs { return l.cfg.Costs }

// SetTime moves the ledger clock forward. It never moves backwards.
func (l *Ledger) SetTime(t time.Time) {
	if t.After(l.now) {
		l.now = t
	}
}

func (l *Ledger) Now() time.Time { return l.now }

// Mark sets the reference price used for market fills and valuation.
func (l *Ledger) Mark(symbol string, price float64) error {
	canon, err := l.symbols.Resolve(symbol)
	if err != nil {
		return err
	}
	if price <= 0 {
		return fmt.Errorf("%w: mark %s at %.6f", ErrInvalidOrder, canon, price)
	}
	l.marks[canon] = price
	return nil
}

// Price returns the current mark for symbol.
func (l *Ledger) Price(symbol string) (float64, error) {
	canon, err := l.symbols.Resolve(symbol)
	if err != nil {
		return 0, err
	}
	p, ok := l.marks[canon]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, canon)
	}
	return p, nil
}

// Submit validates and records an order. Market orders fill immediately at
// the mark adjusted by slippage. Limit orders rest until EvaluateBar crosses
// them. Stop orders attach to the open position in Symbol. A refused order
// is returned with status Rejected alongside an error wrapping the reason.
func (l *Ledger) Submit(req OrderRequest) (Order, error) {
	o := &Order{
		ID:         l.ids.New(l.now),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		Kind:       req.Kind,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Strategy:   req.Strategy,
		Status:     Pending,
		Created:    l.now,
		Reason:     req.Reason,
	}
	l.orders[o.ID] = o

	canon, err := l.symbols.Resolve(req.Symbol)
	if err != nil {
		return l.reject(o, err)
	}
	o.Symbol = canon

	if req.Side != Buy && req.Side != Sell {
		return l.reject(o, fmt.Errorf("%w: side %s", ErrInvalidOrder, req.Side))
	}

	switch req.Kind {
	case Market:
		if req.Qty <= 0 || math.IsNaN(req.Qty) {
			return l.reject(o, fmt.Errorf("%w: qty %v", ErrInvalidOrder, req.Qty))
		}
		mark, ok := l.marks[canon]
		if !ok {
			return l.reject(o, fmt.Errorf("%w: %s", ErrNoPrice, canon))
		}
		err := l.fill(o, l.cfg.Costs.Slipped(mark, o.Side), o.Reason)
		return *o, err

	case Limit:
		if req.Qty <= 0 || math.IsNaN(req.Qty) {
			return l.reject(o, fmt.Errorf("%w: qty %v", ErrInvalidOrder, req.Qty))
		}
		if req.LimitPrice <= 0 {
			return l.reject(o, fmt.Errorf("%w: limit price %v", ErrInvalidOrder, req.LimitPrice))
		}
		l.pending = append(l.pending, o.ID)
		return *o, nil

	case Stop:
		return l.attachStop(o)
	}
	return l.reject(o, fmt.Errorf("%w: kind %s", ErrInvalidOrder, req.Kind))
}

// AttachStop places a protective stop on the open position in symbol,
// replacing any previous one. The stop always closes the whole position.
func (l *Ledger) AttachStop(symbol string, stopPrice float64) (Order, error) {
	return l.Submit(OrderRequest{Symbol: symbol, Side: Sell, Kind: Stop, StopPrice: stopPrice, Reason: "StopLoss"})
}

func (l *Ledger) attachStop(o *Order) (Order, error) {
	pos := l.positions[o.Symbol]
	if pos == nil {
		return l.reject(o, fmt.Errorf("%w: %s", ErrNoPosition, o.Symbol))
	}
	if o.StopPrice <= 0 || math.IsNaN(o.StopPrice) {
		return l.reject(o, fmt.Errorf("%w: stop price %v", ErrInvalidOrder, o.StopPrice))
	}

	o.Side = Sell
	if !pos.Long() {
		o.Side = Buy
	}
	o.Qty = abs(pos.Qty)
	o.Strategy = pos.Strategy

	if pos.StopOrderID != "" {
		l.retire(pos.StopOrderID, "replaced")
	}
	pos.StopOrderID = o.ID
	l.log.Debug("stop attached",
		zap.String("symbol", o.Symbol),
		zap.Float64("stop", o.StopPrice),
		zap.String("order", o.ID),
	)
	return *o, nil
}

// Cancel cancels a pending order. Cancelling a stop detaches it from its
// position.
func (l *Ledger) Cancel(orderID string) error {
	o, ok := l.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel: order %q not found", orderID)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("cancel: order %q is already %s", orderID, o.Status)
	}
	l.retire(orderID, "cancelled")
	return nil
}

// retire cancels a pending order and unlinks it from its position and the
// resting limit book.
func (l *Ledger) retire(orderID, reason string) {
	o, ok := l.orders[orderID]
	if !ok || o.Status.Terminal() {
		return
	}
	o.Status = Cancelled
	o.Reason = reason

	switch o.Kind {
	case Stop:
		if pos := l.positions[o.Symbol]; pos != nil && pos.StopOrderID == orderID {
			pos.StopOrderID = ""
		}
	case Limit:
		for i, pid := range l.pending {
			if pid == orderID {
				l.pending = append(l.pending[:i], l.pending[i+1:]...)
				break
			}
		}
	}
}

// EvaluateBar runs the stop and limit engine for one new bar, then marks the
// symbol at the bar's close. Each bar is evaluated at most once; a bar not
// newer than the last one seen for the symbol is ignored. It returns the
// orders that reached a terminal state because of the bar.
func (l *Ledger) EvaluateBar(bar market.Bar) ([]Order, error) {
	canon, err := l.symbols.Resolve(bar.Symbol)
	if err != nil {
		return nil, err
	}
	if last, ok := l.lastBar[canon]; ok && !bar.Time.After(last) {
		return nil, nil
	}
	l.lastBar[canon] = bar.Time
	l.SetTime(bar.Time)

	var events []Order

	if pos := l.positions[canon]; pos != nil && pos.StopOrderID != "" {
		o := l.orders[pos.StopOrderID]
		if o != nil && o.Status == Pending && stopHit(pos.Long(), o.StopPrice, bar) {
			o.Qty = abs(pos.Qty)
			if err := l.fill(o, l.cfg.Costs.Slipped(o.StopPrice, o.Side), "StopLoss"); err != nil {
				l.log.Warn("stop fill failed", zap.String("symbol", canon), zap.Error(err))
			}
			events = append(events, *o)
		}
	}

	remaining := l.pending[:0]
	for _, oid := range l.pending {
		o := l.orders[oid]
		if o.Status != Pending {
			continue
		}
		if o.Symbol != canon || !limitHit(o.Side, o.LimitPrice, bar) {
			remaining = append(remaining, oid)
			continue
		}
		// rejection is recorded on the order itself
		_ = l.fill(o, o.LimitPrice, "Limit")
		events = append(events, *o)
	}
	l.pending = remaining

	l.marks[canon] = bar.Close
	return events, nil
}

// ReducePosition closes min(|qty|, |held|) of the position at the mark with
// slippage. The sign of qty is ignored: a reduction can never flip or grow
// the position.
func (l *Ledger) ReducePosition(symbol string, qty float64, reason string) (Order, error) {
	canon, err := l.symbols.Resolve(symbol)
	if err != nil {
		return Order{}, err
	}
	pos := l.positions[canon]
	if pos == nil {
		return Order{}, fmt.Errorf("%w: %s", ErrNoPosition, canon)
	}

	q := math.Min(abs(qty), abs(pos.Qty))
	if q == 0 || math.IsNaN(q) {
		return Order{}, fmt.Errorf("%w: reduce %s by %v", ErrInvalidOrder, canon, qty)
	}
	side := Sell
	if !pos.Long() {
		side = Buy
	}
	return l.Submit(OrderRequest{
		Symbol:   canon,
		Side:     side,
		Qty:      q,
		Kind:     Market,
		Strategy: pos.Strategy,
		Reason:   reason,
	})
}

// ClosePosition flattens the position in symbol at the mark.
func (l *Ledger) ClosePosition(symbol, reason string) (Order, error) {
	canon, err := l.symbols.Resolve(symbol)
	if err != nil {
		return Order{}, err
	}
	pos := l.positions[canon]
	if pos == nil {
		return Order{}, fmt.Errorf("%w: %s", ErrNoPosition, canon)
	}
	return l.ReducePosition(canon, pos.Qty, reason)
}

// CloseAll flattens every open position in symbol order.
func (l *Ledger) CloseAll(reason string) error {
	var errs []error
	for _, sym := range l.openSymbols() {
		if _, err := l.ClosePosition(sym, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fill executes o at price. An order against an existing position is a
// reduction clamped to the held quantity; anything else opens or adds.
func (l *Ledger) fill(o *Order, price float64, reason string) error {
	inst, err := l.symbols.Lookup(o.Symbol)
	if err != nil {
		_, err = l.reject(o, err)
		return err
	}

	pos := l.positions[o.Symbol]
	sign := o.Side.sign()
	opening := pos == nil || pos.Qty*sign > 0

	qty := o.Qty
	if !opening && qty > abs(pos.Qty) {
		qty = abs(pos.Qty)
	}
	notional := qty * price
	commission := notional * l.cfg.Costs.CommissionRate(inst.Class)

	if opening {
		if pos == nil && len(l.positions) >= l.cfg.MaxPositions {
			_, err := l.reject(o, fmt.Errorf("%w: %d open", ErrMaxPositions, len(l.positions)))
			return err
		}
		if notional+commission > l.cash+cashEpsilon {
			_, err := l.reject(o, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, notional+commission, l.cash))
			return err
		}
	}

	l.cash -= sign * notional
	l.cash -= commission
	l.fees += commission

	o.Qty = qty
	o.Status = Filled
	o.FillPrice = price
	o.FilledAt = l.now
	o.Commission = commission

	l.log.Debug("fill",
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", o.Side),
		zap.Stringer("kind", o.Kind),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("commission", commission),
	)

	if opening {
		if pos == nil {
			pos = &Position{Symbol: o.Symbol, EntryTime: l.now, Strategy: o.Strategy}
			l.positions[o.Symbol] = pos
		}
		newQty := pos.Qty + sign*qty
		pos.AvgPrice = (abs(pos.Qty)*pos.AvgPrice + qty*price) / abs(newQty)
		pos.Qty = newQty
		pos.openedQty += qty
		pos.commission += commission
		l.resizeStop(pos)
		return nil
	}

	long := pos.Long()
	held := abs(pos.Qty)
	gross := (price - pos.AvgPrice) * qty
	if !long {
		gross = -gross
	}
	pos.grossPL += gross
	pos.commission += commission
	pos.exitQty += qty
	pos.exitValue += qty * price

	if qty >= held {
		pos.Qty = 0
		l.closeRoundTrip(pos, long, reason)
		return nil
	}
	pos.Qty += sign * qty
	l.resizeStop(pos)
	return nil
}

func (l *Ledger) resizeStop(pos *Position) {
	if pos.StopOrderID == "" {
		return
	}
	if o := l.orders[pos.StopOrderID]; o != nil && o.Status == Pending {
		o.Qty = abs(pos.Qty)
	}
}

// closeRoundTrip turns a flat position into a Trade and retires its stop in
// the same step.
func (l *Ledger) closeRoundTrip(pos *Position, long bool, reason string) {
	if pos.StopOrderID != "" {
		l.retire(pos.StopOrderID, "position closed")
	}
	delete(l.positions, pos.Symbol)

	exit := 0.0
	if pos.exitQty > 0 {
		exit = pos.exitValue / pos.exitQty
	}
	t := Trade{
		ID:         l.ids.New(l.now),
		Strategy:   pos.Strategy,
		Symbol:     pos.Symbol,
		Long:       long,
		Qty:        pos.openedQty,
		EntryPrice: pos.AvgPrice,
		ExitPrice:  exit,
		EntryTime:  pos.EntryTime,
		ExitTime:   l.now,
		GrossPnL:   pos.grossPL,
		Commission: pos.commission,
		PnL:        pos.grossPL - pos.commission,
		Reason:     reason,
	}
	l.trades = append(l.trades, t)
	l.realized += t.PnL

	l.log.Debug("trade closed",
		zap.String("symbol", t.Symbol),
		zap.String("strategy", t.Strategy),
		zap.Float64("pnl", t.PnL),
		zap.String("reason", reason),
	)

	if err := l.journal.RecordTrade(journal.TradeRecord{
		TradeID:    t.ID,
		RunID:      l.cfg.RunID,
		Strategy:   t.Strategy,
		Symbol:     t.Symbol,
		Side:       t.Side(),
		Qty:        t.Qty,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		OpenTime:   t.EntryTime,
		CloseTime:  t.ExitTime,
		Commission: t.Commission,
		RealizedPL: t.PnL,
		Reason:     reason,
	}); err != nil {
		l.log.Warn("journal trade", zap.String("trade", t.ID), zap.Error(err))
	}
}

func (l *Ledger) reject(o *Order, err error) (Order, error) {
	o.Status = Rejected
	o.Reason = err.Error()
	l.rejections = append(l.rejections, Rejection{
		Time:     l.now,
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      o.Qty,
		Strategy: o.Strategy,
		Reason:   o.Reason,
	})
	l.log.Debug("order rejected",
		zap.String("symbol", o.Symbol),
		zap.String("order", o.ID),
		zap.String("reason", o.Reason),
	)
	return *o, err
}

func (l *Ledger) openSymbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Account values every open position at its mark.
func (l *Ledger) Account() Account {
	a := Account{
		Time:          l.now,
		InitialCash:   l.cfg.InitialCash,
		Cash:          l.cash,
		Equity:        l.cash,
		Realized:      l.realized,
		Fees:          l.fees,
		OpenPositions: len(l.positions),
	}
	for _, sym := range l.openSymbols() {
		pos := l.positions[sym]
		mark, ok := l.marks[sym]
		if !ok {
			mark = pos.AvgPrice
		}
		a.Equity += pos.Qty * mark
		a.Unrealized += pos.grossPL + pos.Unrealized(mark) - pos.commission
	}
	return a
}

func (l *Ledger) Equity() float64 { return l.Account().Equity }

// Sample appends an equity curve point at t and journals it.
func (l *Ledger) Sample(t time.Time) (EquityPoint, error) {
	l.SetTime(t)
	a := l.Account()
	p := EquityPoint{Time: t, Equity: a.Equity, Cash: a.Cash}
	l.curve = append(l.curve, p)

	err := l.journal.RecordEquity(journal.EquitySnapshot{
		RunID:         l.cfg.RunID,
		Time:          t,
		Cash:          a.Cash,
		Equity:        a.Equity,
		RealizedPL:    a.Realized,
		UnrealizedPL:  a.Unrealized,
		OpenPositions: a.OpenPositions,
	})
	return p, err
}

// Position returns a copy of the open position in symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	canon, err := l.symbols.Resolve(symbol)
	if err != nil {
		return Position{}, false
	}
	pos, ok := l.positions[canon]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of every open position, by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, sym := range l.openSymbols() {
		out = append(out, *l.positions[sym])
	}
	return out
}

// Order returns a copy of an order by id.
func (l *Ledger) Order(orderID string) (Order, bool) {
	o, ok := l.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// PendingOrders returns every non-terminal order, ordered by id.
func (l *Ledger) PendingOrders() []Order {
	var out []Order
	for _, o := range l.orders {
		if o.Status == Pending {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) Trades() []Trade {
	return append([]Trade(nil), l.trades...)
}

func (l *Ledger) Rejections() []Rejection {
	return append([]Rejection(nil), l.rejections...)
}

func (l *Ledger) EquityCurve() []EquityPoint {
	return append([]EquityPoint(nil), l.curve...)
}
