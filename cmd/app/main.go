package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liyaqa/internal/booking"
	"liyaqa/internal/config"
	"liyaqa/internal/db"
	"liyaqa/internal/email"
	"liyaqa/internal/ledger"
	"liyaqa/internal/logger"
	"liyaqa/internal/member"
	"liyaqa/internal/schedule"
	"liyaqa/internal/scheduler"
	"liyaqa/internal/server"
	"liyaqa/internal/subscription"
)

func main() {
	logger.Init()
	logger.Info("Starting Liyaqa application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	emailService := email.New(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)
	defer emailService.Close()
	logger.Info("Email service initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emailService.Start(ctx)

	bookingService := booking.NewService(
		database,
		booking.NewRepository(database),
		schedule.NewRepository(database),
		subscription.NewRepository(database),
		ledger.NewRepository(database),
		member.NewRepository(database),
		emailService,
		cfg.Booking,
	)
	subscriptionService := subscription.NewService(subscription.NewRepository(database))

	sweep := scheduler.New(subscriptionService, bookingService, cfg.Sweep.Interval)
	go sweep.Start(ctx)

	srv := server.New(database, cfg, emailService, bookingService)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
