package book

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the immutable record emitted at the instant of a match. It is
// never stored inside the book; it is returned as the value of the
// submission that caused it. This shape (buyer id, seller id, price,
// quantity, timestamp) is the core's only externally-consumed data type;
// any collaborator translating it to a wire or persisted form must preserve
// these fields.
type Trade struct {
	TradeID       string
	BuyerOrderID  int64
	SellerOrderID int64
	Pair          string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Timestamp     time.Time
}

// newTrade derives buyer/seller from the two matched orders' sides, at
// execution price px (always the resting maker's price, per price
// improvement) and quantity qty.
func newTrade(taker, maker *Order, px, qty decimal.Decimal, now time.Time) Trade {
	buyer, seller := taker, maker
	if taker.Side == Sell {
		buyer, seller = maker, taker
	}
	return Trade{
		TradeID:       uuid.New().String(),
		BuyerOrderID:  buyer.ID,
		SellerOrderID: seller.ID,
		Pair:          taker.Pair,
		Price:         px,
		Quantity:      qty,
		Timestamp:     now,
	}
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{ID:%s Pair:%s Buyer:%d Seller:%d Price:%s Quantity:%s}",
		t.TradeID, t.Pair, t.BuyerOrderID, t.SellerOrderID, t.Price, t.Quantity,
	)
}
