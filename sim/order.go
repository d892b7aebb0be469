package sim

import (
	"fmt"
	"time"
)

type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// sign is +1 for buys and -1 for sells.
func (s Side) sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

type OrderKind int

const (
	Market OrderKind = iota
	Limit
	Stop
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type OrderStatus int

const (
	Pending OrderStatus = iota
	Filled
	Rejected
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Filled:
		return "filled"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the order can no longer change.
func (s OrderStatus) Terminal() bool { return s != Pending }

// OrderRequest is what a strategy runner asks the ledger to do.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Qty        float64
	Kind       OrderKind
	LimitPrice float64 // Limit only
	StopPrice  float64 // Stop only
	Strategy   string
	Reason     string
}

// Order is the ledger's record of a request. Stop orders are owned by the
// position they protect; Symbol is the only link back to it.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Qty        float64
	Kind       OrderKind
	LimitPrice float64
	StopPrice  float64
	Status     OrderStatus
	Strategy   string

	Created    time.Time
	FilledAt   time.Time
	FillPrice  float64
	Commission float64

	// Reason is the caller's reason on submission, and the rejection or
	// cancellation reason once the order is terminal.
	Reason string
}

// Rejection is a refused order kept for reporting.
type Rejection struct {
	Time     time.Time
	OrderID  string
	Symbol   string
	Side     Side
	Qty      float64
	Strategy string
	Reason   string
}
