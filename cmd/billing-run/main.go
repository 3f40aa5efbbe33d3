// Command billing-run executes a single forced billing pass and prints its
// result as JSON. It is meant for cron jobs outside the server and for
// catching up after downtime.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/cache"
	"github.com/kost/backend/internal/infrastructure/config"
	"github.com/kost/backend/internal/infrastructure/logger"
	"github.com/kost/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// exitTenantFailures is returned when the pass ran but some tenants failed
const exitTenantFailures = 2

func main() {
	var (
		logLevel string
		timeout  time.Duration
	)
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Abort the pass after this long")
	flag.Parse()

	os.Exit(run(logLevel, timeout))
}

func run(logLevel string, timeout time.Duration) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// logs go to stderr so stdout carries only the JSON result
	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel)))
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer func() {
		_ = db.Close()
	}()

	var passLock appbilling.DistributedLock
	if cfg.Billing.DistributedLock {
		lock, client, err := cache.NewPassLockFactory(cfg.Redis, cfg.Billing.LockTTL,
			cache.WithLogger(log),
			cache.WithLocalFallback(false),
		).CreateLock()
		if err != nil {
			log.Error("Failed to create billing pass lock", zap.Error(err))
			return 1
		}
		defer func() {
			_ = client.Close()
		}()
		passLock = lock
	}

	loc, err := cfg.Billing.Location()
	if err != nil {
		log.Error("Invalid billing timezone", zap.Error(err))
		return 1
	}

	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	orchestrator := appbilling.NewOrchestrator(appbilling.OrchestratorDeps{
		Clock:     shared.SystemClock{},
		ReadModel: persistence.NewGormBillingReadModel(db.DB),
		Store:     invoiceRepo,
		Runs:      persistence.NewGormBillingRunRepository(db.DB),
		Lock:      passLock,
		Logger:    log,
	}, appbilling.OrchestratorConfig{
		LookaheadDays: cfg.Billing.LookaheadDays,
		DueDays:       cfg.Billing.DueDays,
		TenantTimeout: cfg.Billing.TenantTimeout,
		Location:      loc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := orchestrator.RunPass(ctx, appbilling.PassOptions{Force: true, Trigger: billing.TriggerCLI})
	if err != nil {
		log.Error("Billing pass failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Error("Failed to write result", zap.Error(err))
		return 1
	}

	if result.Failed > 0 {
		return exitTenantFailures
	}
	return 0
}
