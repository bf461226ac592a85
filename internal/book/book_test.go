package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pair = "ETH/USDT"

var fixedClock = func() time.Time { return time.Unix(1700000000, 0) }

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// newTestBook returns a fresh book plus an id allocator mirroring the
// engine's monotone, strictly-increasing sequence.
func newTestBook() (*Book, func() int64) {
	b := New(pair, fixedClock)
	next := int64(0)
	return b, func() int64 {
		next++
		return next
	}
}

func mustInsert(t *testing.T, b *Book, o *Order) []Trade {
	t.Helper()
	trades, err := b.Insert(o)
	require.NoError(t, err)
	return trades
}

// --- S1: non-crossing book population ---------------------------------------

func TestScenario_NonCrossingBookPopulation(t *testing.T) {
	b, id := newTestBook()

	mustInsert(t, b, NewOrder(id(), "u1", pair, Buy, Limit, d("2000.0"), d("1.5"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u2", pair, Buy, Limit, d("1990.0"), d("2.0"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u3", pair, Buy, Limit, d("1995.0"), d("1.0"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u4", pair, Sell, Limit, d("2010.0"), d("1.0"), fixedClock()))
	trades := mustInsert(t, b, NewOrder(id(), "u5", pair, Sell, Limit, d("2020.0"), d("2.5"), fixedClock()))

	assert.Empty(t, trades)
	assert.True(t, b.BestBid().Equal(d("2000.0")))
	assert.True(t, b.BestAsk().Equal(d("2010.0")))

	bidDepth := b.Depth(Buy, 10)
	require.Len(t, bidDepth, 3)
	assertDepthLevel(t, bidDepth[0], "2000.0", "1.5")
	assertDepthLevel(t, bidDepth[1], "1995.0", "1.0")
	assertDepthLevel(t, bidDepth[2], "1990.0", "2.0")

	askDepth := b.Depth(Sell, 10)
	require.Len(t, askDepth, 2)
	assertDepthLevel(t, askDepth[0], "2010.0", "1.0")
	assertDepthLevel(t, askDepth[1], "2020.0", "2.5")
}

func assertDepthLevel(t *testing.T, lvl DepthLevel, price, qty string) {
	t.Helper()
	assert.Truef(t, lvl.Price.Equal(d(price)), "price: want %s got %s", price, lvl.Price)
	assert.Truef(t, lvl.Quantity.Equal(d(qty)), "quantity: want %s got %s", qty, lvl.Quantity)
}

// --- S2: market sweep ---------------------------------------------------------

func TestScenario_MarketSweep(t *testing.T) {
	b, id := newTestBook()

	u1 := NewOrder(id(), "u1", pair, Buy, Limit, d("2000.0"), d("1.5"), fixedClock())
	mustInsert(t, b, u1)
	mustInsert(t, b, NewOrder(id(), "u2", pair, Buy, Limit, d("1990.0"), d("2.0"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u3", pair, Buy, Limit, d("1995.0"), d("1.0"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u4", pair, Sell, Limit, d("2010.0"), d("1.0"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u5", pair, Sell, Limit, d("2020.0"), d("2.5"), fixedClock()))

	u6 := NewOrder(id(), "u6", pair, Sell, Market, decimal.Zero, d("1.2"), fixedClock())
	trades := mustInsert(t, b, u6)

	require.Len(t, trades, 1)
	assert.Equal(t, u1.ID, trades[0].BuyerOrderID)
	assert.Equal(t, u6.ID, trades[0].SellerOrderID)
	assert.True(t, trades[0].Price.Equal(d("2000.0")))
	assert.True(t, trades[0].Quantity.Equal(d("1.2")))

	assert.True(t, u1.Filled.Equal(d("1.2")))
	assert.Equal(t, Partial, u1.Status)

	assert.True(t, b.BestBid().Equal(d("2000.0")))
	bidDepth := b.Depth(Buy, 10)
	require.Len(t, bidDepth, 3)
	assertDepthLevel(t, bidDepth[0], "2000.0", "0.3")
	assertDepthLevel(t, bidDepth[1], "1995.0", "1.0")
	assertDepthLevel(t, bidDepth[2], "1990.0", "2.0")

	askDepth := b.Depth(Sell, 10)
	require.Len(t, askDepth, 2)
	assertDepthLevel(t, askDepth[0], "2010.0", "1.0")
	assertDepthLevel(t, askDepth[1], "2020.0", "2.5")
}

// --- S3: crossing limit --------------------------------------------------------

func TestScenario_CrossingLimit(t *testing.T) {
	b, id := newTestBook()

	sA := NewOrder(id(), "sA", pair, Sell, Limit, d("100.0"), d("5"), fixedClock())
	mustInsert(t, b, sA)

	bB := NewOrder(id(), "bB", pair, Buy, Limit, d("101.0"), d("3"), fixedClock())
	trades := mustInsert(t, b, bB)

	require.Len(t, trades, 1)
	assert.Equal(t, bB.ID, trades[0].BuyerOrderID)
	assert.Equal(t, sA.ID, trades[0].SellerOrderID)
	assert.True(t, trades[0].Price.Equal(d("100.0")))
	assert.True(t, trades[0].Quantity.Equal(d("3")))

	assert.True(t, sA.Remaining().Equal(d("2")))
	assert.Equal(t, Partial, sA.Status)

	assert.Equal(t, Filled, bB.Status)
	orders := b.UserOrders("bB")
	assert.Empty(t, orders)

	assert.True(t, b.BestBid().IsZero())
	assert.True(t, b.BestAsk().Equal(d("100.0")))
}

// --- S4: multi-level sweep with FIFO -------------------------------------------

func TestScenario_MultiLevelSweepFIFO(t *testing.T) {
	b, id := newTestBook()

	s1 := NewOrder(id(), "s1", pair, Sell, Limit, d("10.0"), d("1"), fixedClock())
	mustInsert(t, b, s1)
	s2 := NewOrder(id(), "s2", pair, Sell, Limit, d("10.0"), d("2"), fixedClock())
	mustInsert(t, b, s2)
	s3 := NewOrder(id(), "s3", pair, Sell, Limit, d("11.0"), d("5"), fixedClock())
	mustInsert(t, b, s3)

	taker := NewOrder(id(), "taker", pair, Buy, Market, decimal.Zero, d("4"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 3)

	assert.Equal(t, s1.ID, trades[0].SellerOrderID)
	assert.True(t, trades[0].Quantity.Equal(d("1")))
	assert.True(t, trades[0].Price.Equal(d("10.0")))

	assert.Equal(t, s2.ID, trades[1].SellerOrderID)
	assert.True(t, trades[1].Quantity.Equal(d("2")))
	assert.True(t, trades[1].Price.Equal(d("10.0")))

	assert.Equal(t, s3.ID, trades[2].SellerOrderID)
	assert.True(t, trades[2].Quantity.Equal(d("1")))
	assert.True(t, trades[2].Price.Equal(d("11.0")))

	assert.True(t, s3.Remaining().Equal(d("4")))
	assert.Equal(t, Partial, s3.Status)

	assert.Empty(t, b.UserOrders("s1"))
	assert.Empty(t, b.UserOrders("s2"))

	askDepth := b.Depth(Sell, 10)
	require.Len(t, askDepth, 1)
	assertDepthLevel(t, askDepth[0], "11.0", "4")
}

// --- S5: cancel frees level -----------------------------------------------------

func TestScenario_CancelFreesLevel(t *testing.T) {
	b, id := newTestBook()

	b1 := NewOrder(id(), "b1", pair, Buy, Limit, d("50"), d("1"), fixedClock())
	mustInsert(t, b, b1)

	assert.True(t, b.Cancel(b1.ID))
	assert.True(t, b.BestBid().IsZero())
	assert.Empty(t, b.UserOrders("b1"))
	assert.Equal(t, Cancelled, b1.Status)

	assert.False(t, b.Cancel(b1.ID))
}

// --- S6 (book-level slice): WrongPair --------------------------------------------

func TestInsert_WrongPair(t *testing.T) {
	b, id := newTestBook()
	o := NewOrder(id(), "u1", "BTC/USDT", Buy, Limit, d("1"), d("1"), fixedClock())
	trades, err := b.Insert(o)
	assert.ErrorIs(t, err, ErrWrongPair)
	assert.Nil(t, trades)
}

// --- Universal invariants and laws -----------------------------------------------

func TestInvariant_BidsDescendingAsksAscending(t *testing.T) {
	b, id := newTestBook()
	mustInsert(t, b, NewOrder(id(), "u", pair, Buy, Limit, d("10"), d("1"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u", pair, Buy, Limit, d("12"), d("1"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u", pair, Buy, Limit, d("11"), d("1"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u", pair, Sell, Limit, d("20"), d("1"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u", pair, Sell, Limit, d("18"), d("1"), fixedClock()))
	mustInsert(t, b, NewOrder(id(), "u", pair, Sell, Limit, d("19"), d("1"), fixedClock()))

	bidDepth := b.Depth(Buy, 10)
	require.Len(t, bidDepth, 3)
	assert.True(t, bidDepth[0].Price.Equal(d("12")))
	assert.True(t, bidDepth[1].Price.Equal(d("11")))
	assert.True(t, bidDepth[2].Price.Equal(d("10")))

	askDepth := b.Depth(Sell, 10)
	require.Len(t, askDepth, 3)
	assert.True(t, askDepth[0].Price.Equal(d("18")))
	assert.True(t, askDepth[1].Price.Equal(d("19")))
	assert.True(t, askDepth[2].Price.Equal(d("20")))

	assert.True(t, b.BestBid().LessThan(b.BestAsk()))
}

func TestLaw_FIFOWithinLevel(t *testing.T) {
	b, id := newTestBook()

	first := NewOrder(id(), "first", pair, Sell, Limit, d("10"), d("1"), fixedClock())
	mustInsert(t, b, first)
	second := NewOrder(id(), "second", pair, Sell, Limit, d("10"), d("1"), fixedClock())
	mustInsert(t, b, second)

	taker := NewOrder(id(), "taker", pair, Buy, Limit, d("10"), d("1"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 1)
	assert.Equal(t, first.ID, trades[0].SellerOrderID)
	assert.Equal(t, Filled, first.Status)
	assert.Equal(t, Pending, second.Status)
}

func TestLaw_PriceImprovementFavorsTaker(t *testing.T) {
	b, id := newTestBook()

	maker := NewOrder(id(), "maker", pair, Sell, Limit, d("95"), d("1"), fixedClock())
	mustInsert(t, b, maker)

	taker := NewOrder(id(), "taker", pair, Buy, Limit, d("100"), d("1"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("95")))
	assert.True(t, trades[0].Price.LessThanOrEqual(d("100")))
}

func TestLaw_BestPriceFirstAcrossLevels(t *testing.T) {
	b, id := newTestBook()

	worse := NewOrder(id(), "worse", pair, Sell, Limit, d("102"), d("5"), fixedClock())
	mustInsert(t, b, worse)
	better := NewOrder(id(), "better", pair, Sell, Limit, d("100"), d("5"), fixedClock())
	mustInsert(t, b, better)

	taker := NewOrder(id(), "taker", pair, Buy, Limit, d("110"), d("3"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 1)
	assert.Equal(t, better.ID, trades[0].SellerOrderID)
	assert.True(t, better.Remaining().Equal(d("2")))
	assert.True(t, worse.Remaining().Equal(d("5")))
}

func TestLaw_QuantityConservation(t *testing.T) {
	b, id := newTestBook()

	maker := NewOrder(id(), "maker", pair, Sell, Limit, d("10"), d("5"), fixedClock())
	mustInsert(t, b, maker)

	taker := NewOrder(id(), "taker", pair, Buy, Limit, d("10"), d("3"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 1)
	tradeQty := trades[0].Quantity
	assert.True(t, taker.Filled.Equal(tradeQty))
	assert.True(t, maker.Filled.Equal(tradeQty))
}

func TestLaw_NoOverFill(t *testing.T) {
	b, id := newTestBook()

	maker := NewOrder(id(), "maker", pair, Sell, Limit, d("10"), d("2"), fixedClock())
	mustInsert(t, b, maker)

	taker := NewOrder(id(), "taker", pair, Buy, Limit, d("10"), d("10"), fixedClock())
	mustInsert(t, b, taker)

	assert.True(t, maker.Filled.LessThanOrEqual(maker.Quantity))
	assert.True(t, taker.Filled.LessThanOrEqual(taker.Quantity))
	assert.True(t, maker.IsFilled())
	assert.False(t, taker.IsFilled())
	assert.True(t, taker.Remaining().Equal(d("8")))
}

func TestMarketOrder_ResidualDroppedNotRested(t *testing.T) {
	b, id := newTestBook()

	maker := NewOrder(id(), "maker", pair, Sell, Limit, d("10"), d("1"), fixedClock())
	mustInsert(t, b, maker)

	taker := NewOrder(id(), "taker", pair, Buy, Market, decimal.Zero, d("5"), fixedClock())
	trades := mustInsert(t, b, taker)

	require.Len(t, trades, 1)
	assert.True(t, taker.Remaining().Equal(d("4")))
	assert.Empty(t, b.UserOrders("taker"))
	assert.True(t, b.BestBid().IsZero())
}

func TestCancel_UnknownIDReturnsFalse(t *testing.T) {
	b, _ := newTestBook()
	assert.False(t, b.Cancel(999))
}

func TestUserOrders_ExcludesCancelledAndFilled(t *testing.T) {
	b, id := newTestBook()

	resting := NewOrder(id(), "u", pair, Buy, Limit, d("10"), d("1"), fixedClock())
	mustInsert(t, b, resting)
	toCancel := NewOrder(id(), "u", pair, Buy, Limit, d("9"), d("1"), fixedClock())
	mustInsert(t, b, toCancel)
	b.Cancel(toCancel.ID)
	toFill := NewOrder(id(), "u", pair, Sell, Limit, d("20"), d("1"), fixedClock())
	mustInsert(t, b, toFill)
	mustInsert(t, b, NewOrder(id(), "other", pair, Buy, Limit, d("20"), d("1"), fixedClock()))
	require.Equal(t, Filled, toFill.Status)

	orders := b.UserOrders("u")
	require.Len(t, orders, 1)
	assert.Equal(t, resting.ID, orders[0].ID)
}
