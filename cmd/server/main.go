package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dstrelec/tcpchat/internal/chat"
)

func main() {
	cfg := chat.ConfigFromEnv()

	addr := flag.String("addr", cfg.Addr, "chat listen address")
	maxClients := flag.Int("max-clients", cfg.MaxClients, "maximum concurrent clients")
	maxMessage := flag.Int("max-message-bytes", cfg.MaxMessageBytes, "maximum message length in bytes")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "metrics listen address")
	flag.Parse()

	cfg.Addr = *addr
	cfg.MaxClients = *maxClients
	cfg.MaxMessageBytes = *maxMessage

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	go serveMetrics(*metricsAddr, logger)

	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srv.Stop()
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
