// Package metrics wires the matching engine's observable events into
// Prometheus, the way this repo's ambient logging and error-handling are
// wired: a small struct with a constructor and narrow, per-event methods.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"ledgerbook/internal/book"
)

// Collector holds the Prometheus instruments recorded by the engine at
// submit, trade, and cancel time. It never reads book state directly; the
// engine calls Record* from its own Submit and Cancel methods.
type Collector struct {
	ordersSubmitted *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	tradeVolume     *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
}

// NewCollector creates and registers the matching engine's instruments
// against reg. Pass prometheus.NewRegistry() in tests, or
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_orders_submitted_total",
			Help: "Orders accepted by the matching engine, by pair and side.",
		}, []string{"pair", "side"}),
		tradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_trades_executed_total",
			Help: "Trades produced by the matching engine, by pair.",
		}, []string{"pair"}),
		tradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_trade_volume_total",
			Help: "Cumulative executed trade quantity, by pair.",
		}, []string{"pair"}),
		ordersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_orders_cancelled_total",
			Help: "Orders cancelled, by pair.",
		}, []string{"pair"}),
	}
	reg.MustRegister(c.ordersSubmitted, c.tradesExecuted, c.tradeVolume, c.ordersCancelled)
	return c
}

// RecordSubmit records one accepted order submission.
func (c *Collector) RecordSubmit(pair string, side book.Side) {
	c.ordersSubmitted.WithLabelValues(pair, side.String()).Inc()
}

// RecordTrade records one executed trade and its executed quantity.
func (c *Collector) RecordTrade(pair string, tradeQuantity decimal.Decimal) {
	c.tradesExecuted.WithLabelValues(pair).Inc()
	qty, _ := tradeQuantity.Float64()
	c.tradeVolume.WithLabelValues(pair).Add(qty)
}

// RecordCancel records one successful cancellation.
func (c *Collector) RecordCancel(pair string) {
	c.ordersCancelled.WithLabelValues(pair).Inc()
}
