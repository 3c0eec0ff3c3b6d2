package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/config"
	"github.com/marinapark/booking-backend/internal/database"
	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/repository"
	"github.com/marinapark/booking-backend/internal/service"
	"github.com/marinapark/booking-backend/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "reconcile-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Reconcile Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize event publisher
	var publisher service.EventPublisher = service.NoOpEventPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPub, err := service.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic)
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		} else {
			publisher = kafkaPub
			appLog.Info("Kafka event publisher connected")
		}
	}
	defer publisher.Close()

	clk := clock.New()
	orderRepo := repository.NewPostgresOrderRepository(db.Pool())
	reconcile := service.NewReconcileService(orderRepo, publisher, clk, cfg.Reconcile.RetryBudget)

	w := worker.NewReconcileWorker(reconcile, &worker.ReconcileWorkerConfig{
		Interval:  cfg.Reconcile.Interval,
		BatchSize: cfg.Reconcile.BatchSize,
	})
	if err := w.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start worker: %v", err))
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	w.Stop()
	appLog.Info("Worker exited gracefully")
}
