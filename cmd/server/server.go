// Command server runs the matching engine behind the TCP wire protocol in
// internal/net, with Prometheus metrics exposed for scraping.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"ledgerbook/internal/engine"
	"ledgerbook/internal/metrics"
	ledgernet "ledgerbook/internal/net"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Setup the matching engine and the TCP server fronting it.
	eng := engine.New(
		[]string{"ETH/USDT", "BTC/USDT"},
		engine.WithMetrics(collector),
	)
	srv := ledgernet.New("0.0.0.0", 9001, eng)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe("0.0.0.0:9090", mux); err != nil {
			log.Error().Err(err).Msg("cmd/server: metrics listener exited")
		}
	}()

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("cmd/server: server exited")
		}
	}()

	// Block on running the server.
	<-ctx.Done()
}
