// Package book implements a single trading pair's price-time-priority limit
// order book: two priority-ordered price ladders, an id-indexed directory of
// resting orders, and the matching algorithm that runs them against each
// other.
package book

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrWrongPair is returned by Insert when an order's pair does not match
// the book's own. It indicates a caller-side bug; the engine is expected to
// route orders to the correct book before they ever reach one.
var ErrWrongPair = errors.New("book: order pair does not match book pair")

// DefaultDepth is the number of price levels returned by Depth when k is
// not positive.
const DefaultDepth = 10

// DepthLevel is one (price, aggregated remaining quantity) entry of a depth
// snapshot, best-first.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Book holds the resting state of one trading pair: bid ladder, ask ladder,
// and an id-indexed directory covering every resting order on either side.
// Every public method acquires the book's own lock for its full duration:
// one lock per book, covering both ladders and the directory together so
// depth/best-price queries are observed atomically.
type Book struct {
	Pair string

	mu        sync.RWMutex
	bids      *ladder
	asks      *ladder
	directory map[int64]*Order

	clock func() time.Time
}

// New constructs an empty book for pair. clock supplies the wall-clock "now"
// stamped onto trades; pass nil to default to time.Now, or a fixed/pluggable
// clock in tests.
func New(pair string, clock func() time.Time) *Book {
	if clock == nil {
		clock = time.Now
	}
	return &Book{
		Pair:      pair,
		bids:      newLadder(bidLess),
		asks:      newLadder(askLess),
		directory: make(map[int64]*Order),
		clock:     clock,
	}
}

// Insert runs order through the matching algorithm against the opposite
// side, then, if order is a limit order with remaining quantity, rests it on
// its own side. Returns the trades produced, in execution order.
func (b *Book) Insert(order *Order) ([]Trade, error) {
	if order.Pair != b.Pair {
		return nil, ErrWrongPair
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	trades := b.match(order)

	if order.Type == Limit && order.Remaining().IsPositive() {
		b.rest(order)
	}

	log.Debug().
		Str("pair", b.Pair).
		Int64("order", order.ID).
		Str("side", order.Side.String()).
		Str("type", order.Type.String()).
		Int("trades", len(trades)).
		Str("status", order.Status.String()).
		Msg("book: order processed")

	return trades, nil
}

// match sweeps the opposite ladder against taker, per price-time priority:
// best opposite price first, FIFO within a level, strictly better prices
// exhausted before a worse price is touched. Market takers have no
// acceptability predicate and sweep until filled or the ladder is exhausted;
// any residual quantity on a market order is simply left unfilled by the
// caller (it is never rested).
func (b *Book) match(taker *Order) []Trade {
	opposite := b.oppositeLadder(taker.Side)

	var trades []Trade
	for !taker.IsFilled() {
		lvl := best(opposite)
		if lvl == nil {
			break
		}
		if taker.Type == Limit && !priceAcceptable(taker, lvl.Price) {
			break
		}

		for !taker.IsFilled() && !lvl.empty() {
			maker := lvl.front()
			qty := decimalMin(taker.Remaining(), maker.Remaining())
			px := maker.Price

			taker.fill(qty)
			maker.fill(qty)
			lvl.total = lvl.total.Sub(qty)

			trades = append(trades, newTrade(taker, maker, px, qty, b.clock()))

			if maker.IsFilled() {
				lvl.orders.Remove(maker.elem)
				maker.elem = nil
				delete(b.directory, maker.ID)
			}
		}

		dropIfEmpty(opposite, lvl)
	}
	return trades
}

// rest appends order to the tail of its own-side price level (creating the
// level if absent) and records it in the directory. Called only for limit
// orders with positive remaining quantity after matching.
func (b *Book) rest(order *Order) {
	lvl := levelAt(b.ownLadder(order.Side), order.Price)
	lvl.pushBack(order)
	b.directory[order.ID] = order
}

// Cancel removes the order with id from its price level and the directory
// and marks it Cancelled. Returns true iff the id was found resting; an
// unknown or already-terminal id is not an error, it simply returns false.
func (b *Book) Cancel(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.directory[id]
	if !ok {
		return false
	}
	delete(b.directory, id)

	l := b.ownLadder(order.Side)
	if lvl, ok := l.GetMut(&PriceLevel{Price: order.Price}); ok {
		lvl.remove(order)
		dropIfEmpty(l, lvl)
	}
	order.cancel()

	log.Debug().Str("pair", b.Pair).Int64("order", id).Msg("book: order cancelled")
	return true
}

// BestBid returns the top bid price, or the zero-value sentinel if the bid
// ladder is empty.
func (b *Book) BestBid() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lvl := best(b.bids); lvl != nil {
		return lvl.Price
	}
	return decimal.Zero
}

// BestAsk returns the top ask price, or the zero-value sentinel if the ask
// ladder is empty.
func (b *Book) BestAsk() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lvl := best(b.asks); lvl != nil {
		return lvl.Price
	}
	return decimal.Zero
}

// Depth returns up to k price levels from the best side of side, best-first.
// k defaults to DefaultDepth when not positive; fewer levels are returned if
// the book is shallower.
func (b *Book) Depth(side Side, k int) []DepthLevel {
	if k <= 0 {
		k = DefaultDepth
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	l := b.ownLadder(side)
	out := make([]DepthLevel, 0, k)
	l.Scan(func(lvl *PriceLevel) bool {
		out = append(out, DepthLevel{Price: lvl.Price, Quantity: lvl.total})
		return len(out) < k
	})
	return out
}

// UserOrders returns a value-copy snapshot of every resting order belonging
// to user, in unspecified order. Copies are handed out rather than live
// pointers so a caller's read remains valid after the book's lock is
// released.
func (b *Book) UserOrders(user string) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Order, 0)
	for _, o := range b.directory {
		if o.User == user {
			out = append(out, o.Copy())
		}
	}
	return out
}

func (b *Book) ownLadder(side Side) *ladder {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeLadder(side Side) *ladder {
	if side == Buy {
		return b.asks
	}
	return b.bids
}

func priceAcceptable(taker *Order, restingPrice decimal.Decimal) bool {
	if taker.Side == Buy {
		return restingPrice.LessThanOrEqual(taker.Price)
	}
	return restingPrice.GreaterThanOrEqual(taker.Price)
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
