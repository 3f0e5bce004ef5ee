package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tavernapos/cashcore/internal/config"
	"github.com/tavernapos/cashcore/internal/database"
	cashHttp "github.com/tavernapos/cashcore/internal/http"
	ledgerHandler "github.com/tavernapos/cashcore/internal/http/ledger"
	paymentHandler "github.com/tavernapos/cashcore/internal/http/payment"
	reportHandler "github.com/tavernapos/cashcore/internal/http/report"
	settlementHandler "github.com/tavernapos/cashcore/internal/http/settlement"
	"github.com/tavernapos/cashcore/internal/ledger"
	ledgerStore "github.com/tavernapos/cashcore/internal/ledger/store"
	"github.com/tavernapos/cashcore/internal/payment"
	paymentStore "github.com/tavernapos/cashcore/internal/payment/store"
	"github.com/tavernapos/cashcore/internal/report"
	"github.com/tavernapos/cashcore/internal/settlement"
)

func main() {
	// A missing .env is fine in deployed environments.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	var (
		ledgerService     = ledger.NewService(ledgerStore.New(db))
		paymentService    = payment.NewService(paymentStore.New(db))
		settlementService = settlement.NewService(paymentService)
		reportService     = report.NewService(ledgerService, paymentService)
	)

	var (
		ledgerH     = ledgerHandler.NewHandler(ledgerService)
		paymentH    = paymentHandler.NewHandler(paymentService)
		settlementH = settlementHandler.NewHandler(settlementService)
		reportH     = reportHandler.NewHandler(reportService)
	)

	router := cashHttp.New(ledgerH, paymentH, settlementH, reportH, cfg.Server.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := payment.NewSweeper(paymentService, cfg.Sweep.Interval)
	go sweeper.Run(ctx)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
