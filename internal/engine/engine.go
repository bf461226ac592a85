// Package engine is the matching engine's façade: it owns the registry of
// per-pair books, allocates order ids, validates submissions, dispatches to
// the right book, and exposes the consolidated market-data and user-order
// queries. It is the only package external callers use directly.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ledgerbook/internal/book"
	"ledgerbook/internal/metrics"
)

var (
	// ErrInvalidArgument is returned when quantity or (for limit orders)
	// price is non-positive.
	ErrInvalidArgument = errors.New("engine: invalid argument")
	// ErrUnknownPair is returned when a symbol has not been registered.
	ErrUnknownPair = errors.New("engine: unknown pair")
)

// MarketData is a consolidated snapshot of one pair's top of book and depth.
type MarketData struct {
	Pair     string
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	Spread   decimal.Decimal
	BidDepth []book.DepthLevel
	AskDepth []book.DepthLevel
}

// Engine registers books by pair symbol and allocates a single,
// engine-wide, strictly increasing order id sequence. Books, once
// registered, are never removed.
type Engine struct {
	mu      sync.Mutex
	books   map[string]*book.Book
	nextID  int64
	clock   func() time.Time
	metrics *metrics.Collector
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the wall-clock source used to stamp trades. Intended
// for tests; production callers can omit it to default to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithMetrics attaches a Prometheus collector that the engine records
// submit/cancel/trade events to. Omit it to run without metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// New constructs an empty engine, optionally pre-registering pairs.
func New(pairs []string, opts ...Option) *Engine {
	e := &Engine{
		books: make(map[string]*book.Book),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, pair := range pairs {
		e.RegisterPair(pair)
	}
	return e
}

// RegisterPair idempotently creates a book for symbol. Returns true on first
// creation, false if the pair was already registered. Books are never
// removed once created.
func (e *Engine) RegisterPair(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.books[symbol]; ok {
		return false
	}
	e.books[symbol] = book.New(symbol, e.clock)
	log.Info().Str("pair", symbol).Msg("engine: pair registered")
	return true
}

// Submit validates and allocates an id for a new order, inserts it into the
// pair's book, and returns the allocated id together with the resulting
// trades. A failed submission leaves all book state unchanged and allocates
// no id (the returned id is 0 on every error path).
func (e *Engine) Submit(user, symbol string, side book.Side, typ book.Type, price, quantity decimal.Decimal) (int64, []book.Trade, error) {
	if !quantity.IsPositive() {
		return 0, nil, ErrInvalidArgument
	}
	if typ == book.Limit && !price.IsPositive() {
		return 0, nil, ErrInvalidArgument
	}

	b, id, err := e.admit(symbol)
	if err != nil {
		return 0, nil, err
	}

	order := book.NewOrder(id, user, symbol, side, typ, price, quantity, e.clock())
	trades, err := b.Insert(order)
	if err != nil {
		// The engine just looked the book up by this exact symbol, so a
		// WrongPair here is a structural bug in the engine itself, not a
		// recoverable user-facing condition.
		log.Error().Err(err).Str("pair", symbol).Msg("engine: book rejected order it was routed to")
		return 0, nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordSubmit(symbol, side)
		for _, tr := range trades {
			e.metrics.RecordTrade(symbol, tr.Quantity)
		}
	}

	log.Info().
		Str("pair", symbol).
		Int64("order", id).
		Str("user", user).
		Str("side", side.String()).
		Str("type", typ.String()).
		Int("trades", len(trades)).
		Msg("engine: order submitted")

	return id, trades, nil
}

// admit looks up the book for symbol and allocates a fresh id under the
// engine's own lock, then releases it before any matching work happens.
// The engine never holds its lock across a book's (potentially slower)
// matching step.
func (e *Engine) admit(symbol string) (*book.Book, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[symbol]
	if !ok {
		return nil, 0, ErrUnknownPair
	}
	e.nextID++
	return b, e.nextID, nil
}

// Cancel forwards to the book for symbol. Returns false if the symbol is
// unknown or the id is not currently resting.
func (e *Engine) Cancel(id int64, symbol string) bool {
	b, ok := e.lookup(symbol)
	if !ok {
		return false
	}
	ok = b.Cancel(id)
	if ok && e.metrics != nil {
		e.metrics.RecordCancel(symbol)
	}
	return ok
}

// MarketData returns a consolidated snapshot of symbol's book: best bid,
// best ask, spread (ask-bid if both sides are non-empty, else zero), and
// default-depth listings on both sides.
func (e *Engine) MarketData(symbol string) (MarketData, error) {
	b, ok := e.lookup(symbol)
	if !ok {
		return MarketData{}, ErrUnknownPair
	}

	bid := b.BestBid()
	ask := b.BestAsk()
	spread := decimal.Zero
	if bid.IsPositive() && ask.IsPositive() {
		spread = ask.Sub(bid)
	}

	return MarketData{
		Pair:     symbol,
		BestBid:  bid,
		BestAsk:  ask,
		Spread:   spread,
		BidDepth: b.Depth(book.Buy, book.DefaultDepth),
		AskDepth: b.Depth(book.Sell, book.DefaultDepth),
	}, nil
}

// UserOrders returns user's resting orders on symbol, or an empty slice if
// symbol is unknown.
func (e *Engine) UserOrders(user, symbol string) []book.Order {
	b, ok := e.lookup(symbol)
	if !ok {
		return nil
	}
	return b.UserOrders(user)
}

// TotalOrders returns the number of order ids allocated over the engine's
// lifetime (submitted and accepted, whether still resting or not).
func (e *Engine) TotalOrders() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextID
}

// PairCount returns the number of registered pairs.
func (e *Engine) PairCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.books)
}

func (e *Engine) lookup(symbol string) (*book.Book, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	return b, ok
}
