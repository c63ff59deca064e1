package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-service/config"
	"rental-service/internal/api"
	"rental-service/internal/broker"
	"rental-service/internal/objectstore/local"
	"rental-service/internal/payments/mpesa"
	"rental-service/internal/payments/pesapal"
	"rental-service/internal/realtime"
	"rental-service/internal/redisclient"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/util"
	"rental-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger().With(zap.String("instance_id", cfg.Server.InstanceID))
	logger.Info("Starting rental service")

	tp, err := util.InitTracer("rental-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	logger.Info("Database connected", zap.String("driver", db.Driver()))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	media, err := local.New(cfg.Storage.MediaPath)
	if err != nil {
		logger.Fatal("Failed to open media storage", zap.Error(err))
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	var providers service.Providers
	if cfg.Mpesa.Enabled() {
		providers.Mpesa = mpesa.NewClient(cfg.Mpesa, redisClient)
		logger.Info("M-Pesa payments enabled", zap.String("base_url", cfg.Mpesa.BaseURL))
	} else {
		logger.Warn("M-Pesa credentials missing, STK push disabled")
	}
	if cfg.Pesapal.Enabled() {
		providers.Pesapal = pesapal.NewClient(cfg.Pesapal, redisClient)
		if providers.Pesapal.NotificationID() == "" && cfg.Pesapal.IPNURL != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			id, err := providers.Pesapal.RegisterIPN(ctx, cfg.Pesapal.IPNURL)
			cancel()
			if err != nil {
				logger.Error("Failed to register Pesapal IPN", zap.Error(err))
			} else {
				logger.Info("Pesapal IPN registered", zap.String("ipn_id", id))
			}
		}
		logger.Info("Pesapal payments enabled", zap.String("base_url", cfg.Pesapal.BaseURL))
	} else {
		logger.Warn("Pesapal credentials missing, hosted checkout disabled")
	}

	plans := service.NewPlans(cfg.Business.BasicPlanPrice, cfg.Business.PremiumPlanPrice)
	services := api.Services{
		Profiles:      service.NewProfileService(db, redisClient),
		Listings:      service.NewListingService(db, redisClient, media, cfg.Business.FreeListingLimit),
		Bookings:      service.NewBookingService(db, redisClient, eventPublisher, cfg.Business.BookingTimeout),
		Subscriptions: service.NewSubscriptionService(db, plans),
		Payments: service.NewPaymentService(db, redisClient, eventPublisher, providers, plans, service.PaymentTimeouts{
			Mpesa:   cfg.Business.PaymentTimeout,
			Pesapal: cfg.Business.PesapalTimeout,
		}),
		Wallet:   service.NewWalletService(db, eventPublisher, cfg.Business.CommissionPercent, cfg.Business.MinWithdrawal),
		Messages: service.NewMessageService(db, eventPublisher),
	}
	hub := realtime.NewHub(32)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// Every instance reads the whole stream for its own connected users
	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents,
		cfg.Kafka.NotifyGroup+"-"+cfg.Server.InstanceID, kafka.LastOffset)
	notificationWorker := worker.NewNotificationWorker(notifyConsumer, hub)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	earningsConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.EarningsGroup, kafka.FirstOffset)
	earningsWorker := worker.NewEarningsWorker(earningsConsumer, db, services.Wallet)
	go func() {
		if err := earningsWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Earnings worker error", zap.Error(err))
		}
	}()

	maintenance := worker.NewMaintenanceLoop(services.Payments, services.Bookings, services.Subscriptions, services.Wallet,
		cfg.Business.MaintenanceInterval)
	go func() {
		if err := maintenance.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Maintenance loop error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, hub, cfg.Auth.JWTSecret, map[string]api.Pinger{
		"database": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(hub.CloseAll)

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Error stopping notification worker", zap.Error(err))
	}
	if err := earningsWorker.Stop(); err != nil {
		logger.Warn("Error stopping earnings worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
