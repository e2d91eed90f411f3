package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/lumenpay/service/config"
	"github.com/brojonat/lumenpay/service/db"
	"github.com/brojonat/lumenpay/service/events"
	"github.com/brojonat/lumenpay/service/metrics"
	"github.com/brojonat/lumenpay/service/payment"
	"github.com/brojonat/lumenpay/service/server"
	"github.com/brojonat/lumenpay/service/session"
	"github.com/brojonat/lumenpay/service/stellar"
	"github.com/brojonat/lumenpay/service/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"horizon_url", cfg.HorizonURL,
		"wallet_bridge", cfg.WalletBridge,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Horizon client. No client timeout; the transaction's own validity
	// window bounds how long a submission matters.
	horizon := stellar.NewHorizonClient(cfg.HorizonURL, &http.Client{})
	ledger := stellar.NewClient(horizon, m, logger)
	logger.Info("initialized horizon client", "url", cfg.HorizonURL)

	w, closeWallet, err := buildWallet(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize wallet bridge", "error", err)
		os.Exit(1)
	}
	defer closeWallet()
	w = wallet.WithMetrics(w, m)

	sess := session.NewController(w, ledger, m, logger)
	orch := payment.NewOrchestrator(sess, ledger, w, payment.Params{
		NetworkPassphrase: cfg.NetworkPassphrase,
		BaseFee:           cfg.BaseFee,
		ValidFor:          cfg.TxTimeout,
	}, m, logger)

	// Attempt events and the SSE stream built on them
	var stream *server.AttemptStream
	if cfg.EventsEnabled {
		publisher, err := events.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize event publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		orch.SetPublisher(publisher)

		stream, err = server.NewAttemptStream(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize attempt stream", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("attempt events disabled")
	}

	// Optional audit store
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool, m)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		orch.SetRecorder(store)
		logger.Info("connected to database, recording attempt outcomes")
	}

	httpServer := server.New(cfg.ServerAddr, sess, orch, stream, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		// An attempt waiting on the wallet can outlive the grace period.
		done := make(chan struct{})
		go func() {
			orch.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("payment attempt still in flight at shutdown")
		}

		logger.Info("server shutdown complete")
	}
}

// buildWallet creates the wallet bridge selected by cfg.WalletBridge.
func buildWallet(cfg *config.Config, logger *slog.Logger) (wallet.Wallet, func(), error) {
	switch cfg.WalletBridge {
	case config.WalletBridgeHTTP:
		logger.Info("using HTTP wallet bridge", "url", cfg.WalletURL)
		return wallet.NewHTTPBridge(cfg.WalletURL, nil, logger), func() {}, nil

	case config.WalletBridgeNATS:
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("lumenpay-wallet-bridge"),
			nats.Timeout(10*time.Second),
			nats.ReconnectWait(1*time.Second),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		logger.Info("using NATS wallet bridge", "nats_url", cfg.NATSURL, "sign_timeout", cfg.SignTimeout)
		return wallet.NewNATSBridge(nc, cfg.SignTimeout, logger), nc.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown wallet bridge %q", cfg.WalletBridge)
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
