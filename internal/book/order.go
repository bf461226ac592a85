package book

import (
	"container/list"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is which side of a pair an order rests on or takes from.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Type distinguishes resting limit orders from sweeping market orders.
type Type int

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Limit {
		return "limit"
	}
	return "market"
}

// Status is an order's position in its state machine. Pending and Partial
// are the only states in which an order may still be resting in a book.
type Status int

const (
	Pending Status = iota
	Partial
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Partial:
		return "partial"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is the immutable-identity, mutable-fill-state record for a single
// order. Identity (ID, User, Pair, Side, Type, Price, Quantity, Timestamp)
// never changes after construction; Filled and Status are mutated only by
// the book that owns the order, during matching or cancellation.
type Order struct {
	ID        int64
	User      string
	Pair      string
	Side      Side
	Type      Type
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Status    Status
	Timestamp time.Time

	// elem is the order's own slot in its resting price level's FIFO list,
	// set by the book when the order is inserted and cleared when it
	// leaves the book (fill or cancel). Non-owning, never read across a
	// lock boundary, never exposed outside the book package.
	elem *list.Element
}

// NewOrder constructs a fresh order in Pending status with zero fill.
func NewOrder(id int64, user, pair string, side Side, typ Type, price, quantity decimal.Decimal, now time.Time) *Order {
	return &Order{
		ID:        id,
		User:      user,
		Pair:      pair,
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Status:    Pending,
		Timestamp: now,
	}
}

// Remaining returns the unfilled quantity of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Quantity)
}

// fill applies qty to the order's cumulative filled amount and advances its
// status. qty must never take Filled above Quantity; callers (the book's
// matching step) are responsible for clamping qty to Remaining() first.
func (o *Order) fill(qty decimal.Decimal) {
	o.Filled = o.Filled.Add(qty)
	if o.IsFilled() {
		o.Status = Filled
	} else {
		o.Status = Partial
	}
}

// cancel marks the order cancelled. Terminal; never called on an order
// already Filled or Cancelled by the owning book.
func (o *Order) cancel() {
	o.Status = Cancelled
}

// Copy returns a value copy of the order, safe to hand to a caller after the
// owning book's lock has been released.
func (o *Order) Copy() Order {
	cp := *o
	cp.elem = nil
	return cp
}

func (o *Order) String() string {
	return fmt.Sprintf(
		"Order{ID:%d User:%s Pair:%s Side:%s Type:%s Price:%s Quantity:%s Filled:%s Status:%s}",
		o.ID, o.User, o.Pair, o.Side, o.Type, o.Price, o.Quantity, o.Filled, o.Status,
	)
}
