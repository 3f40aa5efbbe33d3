package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	appbilling "github.com/kost/backend/internal/application/billing"
	invoicingapp "github.com/kost/backend/internal/application/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/auth"
	"github.com/kost/backend/internal/infrastructure/cache"
	"github.com/kost/backend/internal/infrastructure/config"
	"github.com/kost/backend/internal/infrastructure/logger"
	"github.com/kost/backend/internal/infrastructure/persistence"
	"github.com/kost/backend/internal/infrastructure/scheduler"
	"github.com/kost/backend/internal/infrastructure/storage"
	"github.com/kost/backend/internal/infrastructure/telemetry"
	"github.com/kost/backend/internal/interfaces/http/handler"
	"github.com/kost/backend/internal/interfaces/http/middleware"
	"github.com/kost/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OTLP log export tees a second core onto the zap logger
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logsProvider, logger.ParseLevel(cfg.Log.Level))
		if log, err = logger.New(logCfg, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting kost billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Warn("Profiler not started", zap.Error(err))
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if profiler != nil {
			if err := profiler.Stop(); err != nil {
				log.Warn("Error stopping profiler", zap.Error(err))
			}
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down log provider", zap.Error(err))
		}
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	runRepo := persistence.NewGormBillingRunRepository(db.DB)
	readModel := persistence.NewGormBillingReadModel(db.DB)

	// Cross-instance pass lock
	var passLock appbilling.DistributedLock
	if cfg.Billing.DistributedLock {
		lockFactory := cache.NewPassLockFactory(cfg.Redis, cfg.Billing.LockTTL,
			cache.WithLogger(log),
			cache.WithLocalFallback(cfg.App.Env != "production"),
		)
		lock, redisClient, err := lockFactory.CreateLock()
		if err != nil {
			log.Fatal("Failed to create billing pass lock", zap.Error(err))
		}
		if redisClient != nil {
			defer func() {
				_ = redisClient.Close()
			}()
		}
		passLock = lock
	}

	// Payment proof storage
	var proofStorage invoicingapp.ProofStorage
	switch {
	case cfg.Storage.Enabled:
		s3Storage, err := storage.NewS3ObjectStorage(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
		)
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 30*time.Second)
		err = s3Storage.EnsureBucket(bucketCtx)
		cancelBucket()
		if err != nil {
			log.Fatal("Failed to prepare object storage bucket", zap.Error(err))
		}
		proofStorage = s3Storage
	case cfg.App.Env == "development":
		proofStorage = storage.NewStubObjectStorage("")
		log.Info("Object storage disabled, using stub presigned URLs")
	default:
		log.Info("Object storage disabled, payment proof uploads are unavailable")
	}

	billingLocation, err := cfg.Billing.Location()
	if err != nil {
		log.Fatal("Invalid billing timezone", zap.Error(err))
	}
	gateConfig := scheduler.GateConfig{
		Hour:     cfg.Billing.RunHour,
		Minute:   cfg.Billing.RunMinute,
		Timezone: cfg.Billing.Timezone,
	}
	gate, err := scheduler.NewScheduleGate(gateConfig, log)
	if err != nil {
		log.Fatal("Invalid billing schedule", zap.Error(err))
	}

	var passMetrics appbilling.PassMetrics
	var httpMeter metric.Meter
	if meterProvider.IsEnabled() {
		httpMeter = meterProvider.Meter("kost-backend/http")
		m, err := appbilling.NewOTelMetrics(meterProvider.Meter("kost-backend/billing"))
		if err != nil {
			log.Fatal("Failed to create billing metrics", zap.Error(err))
		}
		passMetrics = m
	}

	orchestrator := appbilling.NewOrchestrator(appbilling.OrchestratorDeps{
		Clock:     shared.SystemClock{},
		Gate:      gate,
		ReadModel: readModel,
		Store:     invoiceRepo,
		Runs:      runRepo,
		Lock:      passLock,
		Metrics:   passMetrics,
		Logger:    log,
	}, appbilling.OrchestratorConfig{
		LookaheadDays: cfg.Billing.LookaheadDays,
		DueDays:       cfg.Billing.DueDays,
		TenantTimeout: cfg.Billing.TenantTimeout,
		Location:      billingLocation,
	})
	invoiceService := invoicingapp.NewService(invoiceRepo, proofStorage, shared.SystemClock{},
		invoicingapp.ServiceConfig{URLExpiry: cfg.Storage.PresignExpiration}, log)

	// Scheduled trigger
	triggerCtx, cancelTrigger := context.WithCancel(context.Background())
	defer cancelTrigger()

	var trigger scheduler.Trigger
	if cfg.Billing.Enabled {
		trigger, err = newTrigger(cfg.Billing, gateConfig, gate, orchestrator, log)
		if err != nil {
			log.Fatal("Failed to create billing trigger", zap.Error(err))
		}
		if err := trigger.Start(triggerCtx); err != nil {
			log.Fatal("Failed to start billing trigger", zap.Error(err))
		}
		log.Info("Billing engine started",
			zap.String("mode", cfg.Billing.TriggerMode),
			zap.String("timezone", cfg.Billing.Timezone),
			zap.Int("run_hour", cfg.Billing.RunHour),
			zap.Int("run_minute", cfg.Billing.RunMinute),
			zap.Int("lookahead_days", cfg.Billing.LookaheadDays),
		)
	} else {
		log.Info("Billing engine disabled, passes run only on request")
	}

	// HTTP handlers
	healthHandler := handler.NewHealthHandler(db)
	billingHandler := handler.NewBillingHandler(orchestrator, trigger)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	tracingConfig := middleware.DefaultTracingConfig(cfg.Telemetry.ServiceName)
	tracingConfig.Enabled = tracerProvider.IsEnabled()
	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = profiler != nil && profiler.IsEnabled()

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(tracingConfig))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(middleware.DefaultMaxBodySize))
	engine.Use(middleware.HTTPMetrics(httpMeter))
	engine.Use(middleware.Profiling(profilingConfig))

	engine.GET("/health", healthHandler.Check)

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(middleware.AdminAuth(auth.NewJWTService(cfg.JWT), log), middleware.SpanEnricher()),
	)

	billingRoutes := router.NewDomainGroup("billing", "/billing")
	billingRoutes.GET("/status", billingHandler.GetStatus)
	billingRoutes.GET("/runs", billingHandler.ListRuns)
	billingRoutes.POST("/runs", billingHandler.TriggerRun)

	invoiceRoutes := router.NewDomainGroup("invoices", "/invoices")
	invoiceRoutes.GET("", invoiceHandler.List)
	invoiceRoutes.GET("/:id", invoiceHandler.Get)
	invoiceRoutes.POST("/:id/void", invoiceHandler.Void)
	invoiceRoutes.GET("/:id/payments", invoiceHandler.ListPayments)
	invoiceRoutes.POST("/:id/payments", invoiceHandler.RecordPayment)
	invoiceRoutes.POST("/:id/proof-upload", invoiceHandler.RequestProofUpload)

	r.Register(billingRoutes).Register(invoiceRoutes)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		// let an in-flight pass finish before the database closes
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping billing trigger", zap.Error(err))
		}
	}
	cancelTrigger()

	log.Info("Server exited gracefully")
}

// newTrigger builds the daily trigger selected by billing.trigger_mode
func newTrigger(cfg config.BillingConfig, gateConfig scheduler.GateConfig, gate *scheduler.ScheduleGate,
	runner scheduler.PassRunner, log *zap.Logger) (scheduler.Trigger, error) {
	if scheduler.Mode(cfg.TriggerMode) == scheduler.ModeGate {
		return scheduler.NewGateTrigger(scheduler.GateTriggerConfig{TickInterval: cfg.TickInterval},
			gate, runner, shared.SystemClock{}, log)
	}
	return scheduler.NewCronTrigger(gateConfig, runner, log)
}
