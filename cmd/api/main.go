package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/dashboard"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/outbox"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/sweep"
	transactionUseCase "github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/webhook"

	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/routes"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/memory"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/notifier"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/payment"
	timeProvider "github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/time"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate essential configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	appLogger := logger.NewZapLogger(cfg.Environment == config.Production)
	appLogger.SetLevel(coreport.ParseLogLevel(cfg.Logger.Level))
	defer appLogger.Flush()

	tp := timeProvider.NewRealTimeProvider()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: the in-memory store or a SQL database behind the same unit of work port
	var (
		uow    persistence.UnitOfWork
		pinger handler.Pinger
	)
	if cfg.Database.Driver == "memory" {
		appLogger.Warn("Using in-memory store; data is lost on restart", nil)
		uow = memory.NewUnitOfWork(memory.NewStore(), appLogger)
	} else {
		dbManager := database.NewManager(database.CreateConfigFromViperConfig(cfg), appLogger, tp)
		if _, err := dbManager.Connect(); err != nil {
			appLogger.Error("Failed to connect to database", map[string]any{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		defer dbManager.Close()

		if cfg.Database.AutoMigrate {
			if err := dbManager.Migrate(ctx); err != nil {
				appLogger.Error("Failed to run migrations", map[string]any{
					"error": err.Error(),
				})
				os.Exit(1)
			}
		}

		uow = dbManager.CreateUnitOfWork()
		pinger = dbManager
	}

	// Initialize use cases
	escrowController := escrow.NewController(uow, tp, appLogger)
	transactionService := transactionUseCase.NewTransactionService(uow, escrowController, tp, appLogger, transactionUseCase.Options{
		CancellationWindow: cfg.Lifecycle.CancellationWindow,
		ConflictRetries:    cfg.Lifecycle.ConflictRetries,
		DefaultCurrency:    cfg.Currency,
	})
	verifier := payment.NewHMACVerifier(cfg.Webhook.SigningSecrets(), cfg.Webhook.Tolerance, tp)
	reconciler := webhook.NewReconciler(uow, verifier, transactionService.Manager(), tp, appLogger)
	dashboardService := dashboard.NewService(uow, escrowController, appLogger, cfg.Dashboard.PageLimit)

	broadcaster := notifier.NewBroadcaster(appLogger)

	// Background workers stop with ctx
	var workers sync.WaitGroup
	if cfg.Outbox.Enabled {
		relay := outbox.NewRelay(uow, notifier.Multi{notifier.NewLogNotifier(appLogger), broadcaster},
			tp, appLogger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
		workers.Add(1)
		go func() {
			defer workers.Done()
			relay.Run(ctx)
		}()
	}
	if cfg.Lifecycle.SweepEnabled {
		sweeper := sweep.NewSweeper(uow, transactionService.Manager(), tp, appLogger, sweep.Config{
			Interval:    cfg.Lifecycle.SweepInterval,
			BatchSize:   cfg.Lifecycle.SweepBatchSize,
			Parallelism: cfg.Lifecycle.SweepParallelism,
		})
		workers.Add(1)
		go func() {
			defer workers.Done()
			sweeper.Run(ctx)
		}()
	}

	// Initialize API handlers
	handlers := routes.Handlers{
		Transactions: handler.NewTransactionHandler(transactionService, appLogger),
		Webhooks:     handler.NewWebhookHandler(reconciler, appLogger),
		Dashboard:    handler.NewDashboardHandler(dashboardService, appLogger),
		Health:       handler.NewHealthHandler(pinger, cfg.Database.Driver, tp),
	}
	if cfg.Outbox.Enabled {
		handlers.Stream = handler.NewStreamHandler(broadcaster, cfg.Outbox.StreamBuffer, appLogger)
	}

	router := gin.New()
	routes.SetupMiddlewares(router, appLogger, tp, cfg.Server.AllowedOrigins)
	routes.SetupRoutes(router, handlers)

	// Create HTTP server with configurable timeout values
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Starting server", map[string]any{
			"addr":     server.Addr,
			"env":      cfg.Environment,
			"driver":   cfg.Database.Driver,
			"currency": cfg.Currency,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Failed to start server", map[string]any{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", map[string]any{
			"error": err.Error(),
		})
	}

	workers.Wait()
	appLogger.Info("Server exited gracefully", nil)
}

// validateConfig ensures all required configuration values are present
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var missingConfigs []string

	if cfg.Server.Port == 0 {
		missingConfigs = append(missingConfigs, "server.port")
	}
	if cfg.Server.ReadTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.readTimeout")
	}
	if cfg.Server.ShutdownTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.shutdownTimeout")
	}

	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Host == "" && os.Getenv("ESC_DB_HOST") == "" {
			missingConfigs = append(missingConfigs, "database.host (or ESC_DB_HOST environment variable)")
		}
		if cfg.Database.Username == "" && os.Getenv("ESC_DB_USERNAME") == "" {
			missingConfigs = append(missingConfigs, "database.username (or ESC_DB_USERNAME environment variable)")
		}
		if cfg.Database.Password == "" && os.Getenv("ESC_DB_PASSWORD") == "" {
			missingConfigs = append(missingConfigs, "database.password (or ESC_DB_PASSWORD environment variable)")
		}
	}
	if cfg.Database.Driver != "memory" && cfg.Database.Database == "" && os.Getenv("ESC_DB_NAME") == "" {
		missingConfigs = append(missingConfigs, "database.database (or ESC_DB_NAME environment variable)")
	}

	// Environment should be set with a valid value
	if cfg.Environment != config.Development &&
		cfg.Environment != config.Production &&
		cfg.Environment != config.Test {
		return fmt.Errorf("invalid environment value: %s, must be one of: %s, %s, or %s",
			cfg.Environment, config.Development, config.Production, config.Test)
	}

	if cfg.Logger.Level == "" {
		missingConfigs = append(missingConfigs, "logger.level")
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configurations: %v", missingConfigs)
	}

	// If we're in production, do additional validation for sensitive settings
	if cfg.Environment == config.Production {
		var warnings []string

		if cfg.Database.Driver == "memory" {
			warnings = append(warnings, "database.driver 'memory' does not persist transactions")
		}
		if cfg.Database.Driver == "postgres" {
			sslMode := strings.ToLower(cfg.Database.SSLMode)
			if sslMode != "require" && sslMode != "verify-ca" && sslMode != "verify-full" {
				warnings = append(warnings, "database.sslMode should be set to 'require', 'verify-ca', or 'verify-full' in production")
			}
		}
		if cfg.Server.ReadTimeout < 5*time.Second {
			warnings = append(warnings, "server.readTimeout is too low for production")
		}
		if cfg.Webhook.Tolerance > 10*time.Minute {
			warnings = append(warnings, "webhook.tolerance above 10m widens the replay window")
		}

		if len(warnings) > 0 {
			log.Printf("Warning: potential security issues in production configuration: %v", warnings)
		}
	}

	return nil
}
