// @title Bible Plan API
// @version 1.0
// @description Daily credits, paid tier and promotional codes for the Bible study app.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/pratik-mahalle/bibleplan/docs"
	"github.com/pratik-mahalle/bibleplan/internal/api/handlers"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/api/router"
	"github.com/pratik-mahalle/bibleplan/internal/auth"
	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/validator"
	"github.com/pratik-mahalle/bibleplan/internal/providers"
	"github.com/pratik-mahalle/bibleplan/internal/repository/postgres"
	"github.com/pratik-mahalle/bibleplan/internal/services"
	"github.com/pratik-mahalle/bibleplan/internal/worker"
	"github.com/pratik-mahalle/bibleplan/migrations"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.FatalWithErr(err, "Server exited")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(db, cfg.Database.Driver, migrations.GetFS())
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"driver":  cfg.Database.Driver,
		"applied": applied,
	}).Info("Database ready")

	// Stores
	entitlementStore := postgres.NewEntitlementStore(db, cfg.Database.Driver)
	auditRepo := postgres.NewAuditRepository(db, cfg.Database.Driver)
	customerRepo := postgres.NewCustomerRepository(db, cfg.Database.Driver)

	// Token verification
	var verifier auth.Verifier
	if cfg.Auth.JWKSURL != "" {
		jwks, err := auth.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.JWKSRefresh, func(err error) {
			log.WarnWithErr(err, "JWKS refresh failed")
		})
		if err != nil {
			return fmt.Errorf("load jwks: %w", err)
		}
		defer jwks.Close()
		verifier = jwks
	} else {
		verifier = auth.NewHMACVerifier(cfg.Auth.JWTSecret)
	}

	// Services
	entitlementService := services.NewEntitlementService(entitlementStore, auditRepo, services.EntitlementOptions{
		Allowance:   cfg.Entitlement.DailyAllowance,
		Actions:     cfg.Entitlement.ActionTypes,
		Codes:       cfg.Entitlement.PromoCodes,
		MaxAttempts: cfg.Entitlement.MaxConsumeAttempts,
	}, log.With("service", "entitlement"))

	billingService := services.NewBillingService(
		providers.NewStripeProvider(cfg.Billing),
		customerRepo,
		entitlementService,
		log.With("service", "billing"),
	)

	var completer chat.Completer
	if oc, err := providers.NewOpenAICompleter(cfg.Chat); err == nil {
		completer = oc
	} else {
		log.WarnWithErr(err, "Chat companion disabled")
	}
	chatService := services.NewChatService(entitlementService, completer, cfg.Chat.SystemPrompt, log.With("service", "chat"))

	// Handlers
	val := validator.New()
	h := &router.Handlers{
		Health:      handlers.NewHealthHandler(db, version, log),
		Entitlement: handlers.NewEntitlementHandler(entitlementService, entitlementService.Actions(), log, val),
		Billing:     handlers.NewBillingHandler(billingService, log),
		Chat:        handlers.NewChatHandler(chatService, log, val),
	}

	limiters := router.Limiters{
		IP:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		User: middleware.NewRateLimiter(cfg.RateLimit.UserRequestsPerSecond, cfg.RateLimit.UserBurst),
	}
	go limiters.IP.RunCleanup(ctx, time.Minute)
	go limiters.User.RunCleanup(ctx, time.Minute)

	// Background workers
	if cfg.Analytics.RollupEnabled {
		rollup := worker.NewUsageRollup(auditRepo, cfg.Analytics.RollupSchedule, log)
		go func() {
			if err := rollup.Start(ctx); err != nil {
				log.ErrorWithErr(err, "Usage rollup worker failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, verifier, limiters, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        srv.Addr,
			"environment": cfg.Server.Environment,
			"version":     version,
		}).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
