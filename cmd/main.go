package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courseloft/teams-api/billing"
	"github.com/courseloft/teams-api/config"
	"github.com/courseloft/teams-api/db"
	"github.com/courseloft/teams-api/handlers"
	"github.com/courseloft/teams-api/live"
	"github.com/courseloft/teams-api/middleware"
	"github.com/courseloft/teams-api/repositories"
	api "github.com/courseloft/teams-api/routes"
	"github.com/courseloft/teams-api/services"
	"github.com/courseloft/teams-api/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const (
	maintenanceInterval  = 1 * time.Hour
	eventLedgerRetention = 30 * 24 * time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Provider client is constructed eagerly so a bad key fails here,
	// not on the first webhook.
	providerClient, err := billing.NewClient(billing.ClientConfig{
		APIURL:    cfg.ProviderAPIURL,
		SecretKey: cfg.ProviderSecretKey,
	})
	if err != nil {
		logger.Error("failed to initialize provider client", slog.Any("error", err))
		os.Exit(1)
	}

	var archiver storage.Archiver
	if cfg.ArchiveEnabled() {
		archiver, err = storage.NewS3Archiver(storage.S3ArchiverConfig{
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			BucketName:      cfg.ArchiveBucket,
		})
		if err != nil {
			logger.Error("failed to initialize event archive", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("webhook event archive enabled", slog.String("bucket", cfg.ArchiveBucket))
	}

	hub := live.NewHub(logger)
	go hub.Run()

	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	memberRepo := repositories.NewPostgresMemberRepository(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	eventRepo := repositories.NewPostgresEventRepository(dbConn)

	emailService := services.NewEmailService(services.EmailConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	})

	plans := map[string]services.Plan{
		cfg.PriceMonthlyID: {Name: "monthly", Term: 30 * 24 * time.Hour},
		cfg.PriceAnnualID:  {Name: "annual", Term: 365 * 24 * time.Hour},
	}

	inviteService := services.NewInviteService(teamRepo, memberRepo, userRepo, emailService, hub, cfg.PublicURL, logger)
	dashboardService := services.NewDashboardService(teamRepo, memberRepo, userRepo)
	reconciler := services.NewReconciler(teamRepo, memberRepo, userRepo, eventRepo, providerClient, plans, nil, hub, logger)
	logger.Info("services initialized")

	// Idempotency-ledger retention is bounded by a maintenance ticker.
	go func() {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-eventLedgerRetention)
			pruned, err := eventRepo.DeleteOlderThan(context.Background(), cutoff)
			if err != nil {
				logger.Error("ledger prune failed", slog.Any("error", err))
				continue
			}
			if pruned > 0 {
				logger.Info("webhook event ledger pruned", slog.Int64("removed", pruned))
			}
		}
	}()

	webhookHandler := handlers.NewWebhookHandler(cfg.ProviderWebhookSecret, reconciler, archiver, logger)
	memberHandler := handlers.NewMemberHandler(inviteService, dashboardService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, dashboardService, cfg.PublicURL, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		middleware.Authenticate([]byte(cfg.JWTSecretKey)),
		webhookHandler,
		memberHandler,
		dashboardHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}
