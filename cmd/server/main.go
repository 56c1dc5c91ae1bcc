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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/notify"
	"storefront/internal/payments"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/shipping"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
)

// shipmentRetryInterval is how often the backlog of paid-but-unshipped
// orders is swept.
const shipmentRetryInterval = 5 * time.Minute

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	splitCalc := payments.NewSplitCalculator(cfg.Gateway.CommissionPercent, cfg.Gateway.MinOrderAmount)
	verifier := payments.NewVerifier(cfg.Gateway.CashfreeSecret, cfg.Gateway.RazorpaySecret)
	gatewayClient := payments.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)

	carrier := shipping.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.Email, cfg.Carrier.Password, cfg.Carrier.PickupLocation)

	var emailTransport notify.EmailTransport
	if cfg.Notify.EmailAPIKey != "" {
		emailTransport = notify.NewEmailClient(cfg.Notify.EmailAPIURL, cfg.Notify.EmailAPIKey, cfg.Notify.EmailFrom)
	}
	var messageTransport notify.MessageTransport
	if cfg.Notify.WhatsAppAPIURL != "" {
		messageTransport = notify.NewWhatsAppClient(cfg.Notify.WhatsAppAPIURL, cfg.Notify.WhatsAppSID, cfg.Notify.WhatsAppToken, cfg.Notify.WhatsAppFrom)
	}
	dispatcher := notify.NewDispatcher(emailTransport, messageTransport)

	engine := service.NewReconciliationEngine(db, redisClient, eventPublisher, splitCalc)
	walletLedger := service.NewWalletLedger(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	shipmentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents, cfg.Kafka.ShipmentGroup)
	shipmentWorker := worker.NewShipmentWorker(shipmentConsumer, db, carrier, eventPublisher)
	go func() {
		if err := shipmentWorker.Start(workerCtx); err != nil {
			log.Printf("Shipment worker error: %v", err)
		}
	}()

	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents, cfg.Kafka.NotificationGroup)
	notificationWorker := worker.NewNotificationWorker(notifyConsumer, db, dispatcher)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	// out-of-band sweep for orders whose booking failed
	go func() {
		ticker := time.NewTicker(shipmentRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(workerCtx, time.Minute)
				if err := shipmentWorker.RetryPending(ctx, 50); err != nil {
					log.Printf("Shipment retry sweep error: %v", err)
				}
				cancel()
			}
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(engine, walletLedger, verifier, gatewayClient, redisClient,
		cfg.Wallet.WebhookSecret, cfg.Gateway.VerifyPayments)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	shipmentWorker.Stop()
	notificationWorker.Stop()

	log.Println("Server exited")
}
