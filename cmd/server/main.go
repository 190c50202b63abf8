package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/infrastructure/cache"
	"github.com/makao/backend/internal/infrastructure/config"
	"github.com/makao/backend/internal/infrastructure/daraja"
	"github.com/makao/backend/internal/infrastructure/event"
	"github.com/makao/backend/internal/infrastructure/logger"
	"github.com/makao/backend/internal/infrastructure/notification"
	"github.com/makao/backend/internal/infrastructure/persistence"
	"github.com/makao/backend/internal/infrastructure/scheduler"
	"github.com/makao/backend/internal/interfaces/http/handler"
	"github.com/makao/backend/internal/interfaces/http/middleware"
	"github.com/makao/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Makao Ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Redis backs callback idempotency and the token blacklist
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()
	idempotencyStore := cache.NewRedisIdempotencyStoreWithClient(redisClient, "")
	tokenBlacklist := auth.NewRedisTokenBlacklist(redisClient)

	// Mobile money provider adapter
	gateway, err := daraja.NewAdapter(&daraja.Config{
		Env:                cfg.Mpesa.Env,
		ConsumerKey:        cfg.Mpesa.ConsumerKey,
		ConsumerSecret:     cfg.Mpesa.ConsumerSecret,
		ShortCode:          cfg.Mpesa.ShortCode,
		Passkey:            cfg.Mpesa.Passkey,
		InitiatorName:      cfg.Mpesa.InitiatorName,
		SecurityCredential: cfg.Mpesa.SecurityCredential,
		CallbackBaseURL:    cfg.Mpesa.CallbackBaseURL,
		Timeout:            cfg.Mpesa.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	// Repositories and transaction scope
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	transactionRepo := persistence.NewGormMpesaTransactionRepository(db.DB)
	unmatchedRepo := persistence.NewGormUnmatchedPaymentRepository(db.DB)
	tenancies := persistence.NewGormTenancyDirectory(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	// Application services
	allocationService := ledgerapp.NewAllocationService(scope, log)
	balanceService := ledgerapp.NewBalanceService(scope, invoiceRepo, log)
	paymentService := ledgerapp.NewPaymentService(scope, paymentRepo, allocationService, log)
	billingService := ledgerapp.NewBillingService(scope, invoiceRepo, paymentRepo, tenancies, allocationService, log)
	pushService := mpesaapp.NewPushPaymentService(scope, gateway, tenancies, log)
	callbackService := mpesaapp.NewCallbackService(scope, tenancies, allocationService, idempotencyStore,
		shared.IdempotencyConfig{TTL: cfg.Mpesa.IdempotencyTTL, Enabled: true}, log)
	disbursementService := mpesaapp.NewDisbursementService(scope, gateway, log)
	unmatchedService := mpesaapp.NewUnmatchedService(scope, unmatchedRepo, tenancies, allocationService, log)
	sweepService := mpesaapp.NewSweepService(scope, gateway, callbackService, balanceService,
		unmatchedRepo, idempotencyStore, mpesaapp.SweepConfig{
			PendingCutoff:    cfg.Sweep.PendingCutoff,
			AbandonAfter:     cfg.Sweep.AbandonAfter,
			BatchSize:        cfg.Sweep.BatchSize,
			LockTTL:          cfg.Sweep.LockTTL,
			OverdueNoticeTTL: mpesaapp.DefaultSweepConfig().OverdueNoticeTTL,
		}, log)

	jwtService := auth.NewJWTService(cfg.JWT)

	// Event bus carries ledger events to the notification dispatcher
	eventBus := event.NewInMemoryEventBus(log)
	notifier := buildNotifier(cfg.Notify, log)
	dispatcher := notification.NewDispatcher(notifier, tenancies, log)
	eventBus.Subscribe(dispatcher)
	allocationService.SetEventPublisher(eventBus)
	callbackService.SetEventPublisher(eventBus)
	sweepService.SetEventPublisher(eventBus)

	// Background jobs
	rootCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	if cfg.Sweep.Enabled {
		sweepScheduler := scheduler.NewSweepScheduler(sweepService, cfg.Sweep.Interval, log)
		sweepScheduler.Start(rootCtx)
		defer func() {
			if err := sweepScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping sweep scheduler", zap.Error(err))
			}
		}()
		log.Info("Sweep scheduler started", zap.Duration("interval", cfg.Sweep.Interval))
	}

	if cfg.Billing.AutoGenerate {
		billingTrigger, err := scheduler.NewBillingTrigger(billingService, cfg.Billing.CronSchedule, cfg.Billing.DueDays, log)
		if err != nil {
			log.Fatal("Invalid billing schedule", zap.Error(err))
		}
		billingTrigger.Start(rootCtx)
		defer func() {
			if err := billingTrigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping billing trigger", zap.Error(err))
			}
		}()
		log.Info("Billing trigger started",
			zap.String("schedule", cfg.Billing.CronSchedule),
			zap.Int("due_days", cfg.Billing.DueDays),
		)
	}

	// Set Gin mode based on environment
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

	// Middleware stack: request ID first so every later stage can log it
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: joinOrDefault(cfg.HTTP.CORSAllowMethods, middleware.DefaultCORSConfig().AllowMethods),
		AllowHeaders: joinOrDefault(cfg.HTTP.CORSAllowHeaders, middleware.DefaultCORSConfig().AllowHeaders),
	}))

	// Liveness and readiness outside API versioning
	systemHandler := handler.NewSystemHandler(map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return db.Ping() },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	engine.GET("/ping", systemHandler.Ping)
	engine.GET("/health", systemHandler.Health)

	// Provider callbacks sit outside authentication; the provider cannot
	// carry our tokens
	handler.NewMpesaCallbackHandler(callbackService, log).RegisterPublicRoutes(engine)

	// Authenticated API surface
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths:      []string{"/ping", "/health"},
		SkipPathPrefixes: []string{
			"/api/v1/mpesa/callbacks",
		},
		Logger: log,
	}))

	r.Register(handler.NewPaymentHandler(paymentService, allocationService)).
		Register(handler.NewInvoiceHandler(billingService, balanceService)).
		Register(handler.NewMpesaHandler(pushService, transactionRepo, sweepService)).
		Register(handler.NewUnmatchedHandler(unmatchedService)).
		Register(handler.NewDisbursementHandler(disbursementService)).
		Setup()

	// Create HTTP server with config
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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// buildNotifier picks the tenant notification channel from config
func buildNotifier(cfg config.NotifyConfig, log *zap.Logger) notification.Notifier {
	if cfg.Provider == "http" {
		notifier, err := notification.NewHTTPSMSNotifier(cfg)
		if err != nil {
			log.Warn("Falling back to log notifier", zap.Error(err))
			return notification.NewLogNotifier(log)
		}
		return notifier
	}
	return notification.NewLogNotifier(log)
}

func joinOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	joined := values[0]
	for _, v := range values[1:] {
		joined += ", " + v
	}
	return joined
}
