package book

import (
	"container/list"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// PriceLevel is a FIFO queue of resting orders sharing one price on one side
// of one pair. orders preserves insertion order (time priority); total is
// the aggregated remaining quantity across every order currently on the
// level, kept incrementally up to date so depth queries are O(levels) rather
// than O(orders).
type PriceLevel struct {
	Price  decimal.Decimal
	orders *list.List
	total  decimal.Decimal
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, orders: list.New(), total: decimal.Zero}
}

func (l *PriceLevel) empty() bool {
	return l.orders.Len() == 0
}

// pushBack appends an order to the tail of the level (newest arrival, lowest
// time priority) and folds its remaining quantity into the level total.
func (l *PriceLevel) pushBack(o *Order) {
	o.elem = l.orders.PushBack(o)
	l.total = l.total.Add(o.Remaining())
}

// front returns the earliest-arrived order, or nil if the level is empty.
func (l *PriceLevel) front() *Order {
	e := l.orders.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Order)
}

// remove evicts o from the level's FIFO list and total. o must currently be
// resting on this level.
func (l *PriceLevel) remove(o *Order) {
	l.total = l.total.Sub(o.Remaining())
	l.orders.Remove(o.elem)
	o.elem = nil
}

// Orders returns every resting order on the level, in FIFO order. Callers
// must not mutate the returned orders directly.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Order))
	}
	return out
}

// ladder is a sorted set of price levels on one side of one book, kept
// best-first by the comparator passed to newLadder: descending for bids,
// ascending for asks.
type ladder = btree.BTreeG[*PriceLevel]

func newLadder(less func(a, b *PriceLevel) bool) *ladder {
	return btree.NewBTreeG(less)
}

func bidLess(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
func askLess(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }

// levelAt returns the existing level at price, creating and inserting an
// empty one if absent.
func levelAt(l *ladder, price decimal.Decimal) *PriceLevel {
	probe := &PriceLevel{Price: price}
	if lvl, ok := l.GetMut(probe); ok {
		return lvl
	}
	lvl := newPriceLevel(price)
	l.Set(lvl)
	return lvl
}

// dropIfEmpty removes lvl from the ladder if it no longer holds any orders.
func dropIfEmpty(l *ladder, lvl *PriceLevel) {
	if lvl.empty() {
		l.Delete(lvl)
	}
}

// best returns the top-of-book level (best price first per the ladder's
// comparator), or nil if the ladder is empty.
func best(l *ladder) *PriceLevel {
	lvl, ok := l.Min()
	if !ok {
		return nil
	}
	return lvl
}
