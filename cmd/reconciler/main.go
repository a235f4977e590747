package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/app/reconciler"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/config"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
	orders_http "github.com/williamfortunademoraes/woocommerce-asaas/internal/handler/http/orders"
	webhook_http "github.com/williamfortunademoraes/woocommerce-asaas/internal/handler/http/webhook"
	kafka_handler "github.com/williamfortunademoraes/woocommerce-asaas/internal/handler/kafka"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/infrastructure/database"
	kafka_infra "github.com/williamfortunademoraes/woocommerce-asaas/internal/infrastructure/kafka"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/inventory"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/outbox"
	notification_pg "github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/notification_repo/postgres"
	order_pg "github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/order_repo/postgres"
	outbox_pg "github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/outbox_repo/postgres"
)

func ensureKafkaTopics(ctx context.Context, brokerURLs []string, topics []string, logger *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		if err == kafka.TopicAlreadyExists {
			logger.Info("One or more Kafka topics already exist, skipping creation.")
		} else {
			return fmt.Errorf("failed to create Kafka topics: %w", err)
		}
	} else {
		logger.Info("Kafka topics ensured successfully.", zap.Strings("topics", topics))
	}

	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Reconciler service starting...")

	dbConfig := database.Config{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		}
	}()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaBrokers := cfg.GetKafkaBrokers()
	requiredTopics := []string{
		cfg.KafkaAlertsTopic,
		cfg.KafkaStockTopic,
		cfg.KafkaReplayTopic,
	}
	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer topicCancel()
	if err := ensureKafkaTopics(topicCtx, kafkaBrokers, requiredTopics, appLogger); err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	orderRepository := order_pg.NewOrderRepository()
	notificationRepository := notification_pg.NewNotificationRepository()
	outboxRepository := outbox_pg.NewOutboxRepository()

	asaasClient := asaas.NewClient(asaas.Config{
		BaseURL: cfg.AsaasBaseURL,
		Token:   cfg.AsaasToken,
		Timeout: cfg.AsaasTimeout,
	}, appLogger.With(zap.String("component", "AsaasClient")))

	kafkaProducer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	stockInventory := inventory.NewKafkaInventory(
		kafkaProducer,
		cfg.KafkaStockTopic,
		appLogger.With(zap.String("component", "Inventory")),
	)

	reconcilerService := reconciler.NewService(
		db,
		orderRepository,
		notificationRepository,
		outboxRepository,
		asaasClient,
		stockInventory,
		reconciler.Options{
			InvoicePrefix:      cfg.InvoicePrefix,
			ConfirmStatus:      cfg.TrustMode == config.TrustModeConfirm,
			CreditedIsTerminal: cfg.CreditedIsTerminal,
			AlertsTopic:        cfg.KafkaAlertsTopic,
		},
		appLogger.With(zap.String("component", "ReconcilerService")),
	)
	appLogger.Info("Reconciler service initialized.")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	webhook_http.RegisterRoutes(router, reconcilerService, appLogger)
	orders_http.RegisterRoutes(router, reconcilerService, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		kafkaProducer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	replayHandler := kafka_handler.NotificationReplayHandler(
		reconcilerService,
		appLogger.With(zap.String("component", "ReplayHandler")),
	)
	replayConsumer := kafka_infra.NewConsumer(
		kafkaBrokers,
		cfg.KafkaConsumerGroup,
		cfg.KafkaReplayTopic,
		appLogger.With(zap.String("component", "ReplayConsumer")),
	)

	ctxMain, cancelMain := context.WithCancel(context.Background())

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		outboxProcessor.Start(ctxMain)
	}()

	go func() {
		if err := replayConsumer.Start(ctxMain, replayHandler); err != nil {
			if err != context.Canceled && err != context.DeadlineExceeded {
				appLogger.Error("Notification replay consumer failed", zap.Error(err))
			}
		}
		appLogger.Info("Notification replay consumer stopped.")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	cancelMain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	replayConsumer.Stop()

	appLogger.Info("Application gracefully shut down.")
}
