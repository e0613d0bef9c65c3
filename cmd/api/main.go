package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/buildinfo"
	"github.com/xelth-com/eckbackoffice/internal/config"
	"github.com/xelth-com/eckbackoffice/internal/database"
	"github.com/xelth-com/eckbackoffice/internal/handlers"
	"github.com/xelth-com/eckbackoffice/internal/logger"
	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/services/allocator"
	"github.com/xelth-com/eckbackoffice/internal/services/approval"
	"github.com/xelth-com/eckbackoffice/internal/services/clients"
	"github.com/xelth-com/eckbackoffice/internal/services/notify"
	"github.com/xelth-com/eckbackoffice/internal/services/settings"
	"github.com/xelth-com/eckbackoffice/internal/services/tiers"
	"github.com/xelth-com/eckbackoffice/internal/services/traites"
	"github.com/xelth-com/eckbackoffice/internal/validation"
	"github.com/xelth-com/eckbackoffice/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database, lg)
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	sugar.Info("Synchronizing database schema...")
	if err := models.Migrate(db.DB); err != nil {
		sugar.Warnf("Migration warning: %v", err)
	} else {
		sugar.Info("Schema synchronized successfully")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Notification fan-out
	hub := websocket.NewHub(lg.Named("ws"))
	go hub.Run(ctx)

	store := notify.NewStore(db.DB)
	sinks := notify.Multi{store, notify.NewHubSink(hub)}
	if mail := notify.NewMailSink(db.DB, cfg.Mail); mail != nil {
		sinks = append(sinks, mail)
		sugar.Infof("Mail notifications enabled via %s", cfg.Mail.Host)
	}

	// 5. Services
	v := validation.New()
	alloc := allocator.New(cfg.Accounts.Width, cfg.Accounts.MaxAttempts)
	act := activity.NewLogger(db.DB, lg.Named("activity"))
	loginLimiter := middleware.NewLoginRateLimiter()
	go loginLimiter.Run(ctx, time.Hour)

	router := handlers.NewRouter(handlers.Deps{
		DB:            db.DB,
		JWTSecret:     cfg.JWTSecret,
		Logger:        lg.Named("http"),
		Hub:           hub,
		Authenticator: access.NewLocalAuthenticator(db.DB),
		Allocator:     alloc,
		Clients:       clients.NewService(db.DB, v, lg.Named("clients")),
		Approval: approval.NewEngine(db.DB, approval.Options{
			Allocator:     alloc,
			Sink:          sinks,
			Logger:        lg.Named("approval"),
			InsertRetries: cfg.Approval.InsertRetries,
		}),
		Tiers:         tiers.NewService(db.DB, act, v, lg.Named("tiers")),
		Traites:       traites.NewService(db.DB, act, v, lg.Named("traites")),
		Activity:      act,
		Notifications: store,
		Settings:      settings.NewService(db.DB),
		Validator:     v,
		LoginLimiter:  loginLimiter,
	})

	// 6. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infof("Server %s (%s) starting on port %s", buildinfo.Version(), cfg.NodeEnv, cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	sugar.Info("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("HTTP server shutdown error: %v", err)
	}

	// Close database (this also stops embedded PostgreSQL)
	sugar.Info("Closing database connection...")
	if err := db.Close(); err != nil {
		sugar.Errorf("Database close error: %v", err)
	}

	lg.Info("shutdown complete", zap.Int("websocketClients", hub.ClientCount()))
}
