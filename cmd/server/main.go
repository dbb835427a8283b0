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

	"payment-service/config"
	"payment-service/internal/api"
	"payment-service/internal/broker"
	"payment-service/internal/chain"
	"payment-service/internal/ratelimit"
	"payment-service/internal/redisclient"
	"payment-service/internal/service"
	"payment-service/internal/store"
	"payment-service/internal/util"
	"payment-service/internal/webhook"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting payment service")

	tp, err := util.InitTracer("payment-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	chainTimeout := time.Duration(cfg.Business.ChainTimeoutSeconds) * time.Second
	bscMatcher := chain.NewBscMatcher(
		cfg.Chains.BSC.APIURL,
		cfg.Chains.BSC.APIKey,
		cfg.Chains.BSC.WalletAddress,
		cfg.Chains.BSC.TokenContract,
		cfg.Chains.BSC.TokenDecimals,
		chainTimeout,
	)
	solanaMatcher := chain.NewSolanaMatcher(
		cfg.Chains.Solana.RPCURL,
		cfg.Chains.Solana.WalletAddress,
		cfg.Chains.Solana.TokenAccount,
		cfg.Chains.Solana.TokenMint,
		cfg.Chains.Solana.TokenDecimals,
		chainTimeout,
	)
	arbiter := chain.NewArbiter(chainTimeout, bscMatcher, solanaMatcher)

	catalog := service.NewStaticCatalog(
		cfg.Business.TierPriceCents,
		cfg.Business.CoursePriceCents,
		cfg.Business.Currency,
	)
	fulfillment := service.NewFulfillmentService(db, eventPublisher, cfg.Business.TopTier)
	orderService := service.NewOrderService(
		db,
		arbiter,
		fulfillment,
		eventPublisher,
		catalog,
		redisClient,
		service.ChainAddresses{
			BSC:    cfg.Chains.BSC.WalletAddress,
			Solana: cfg.Chains.Solana.WalletAddress,
		},
		time.Duration(cfg.Business.OrderTTLMinutes)*time.Minute,
		cfg.Business.RedirectURL,
	)
	webhookService := service.NewWebhookService(db, fulfillment)

	limiter := ratelimit.NewLimiter(
		redisClient,
		time.Duration(cfg.Business.RateLimitWindowSec)*time.Second,
		int64(cfg.Business.RateLimitMax),
	)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// SetupRoutes installs Logger and Recovery; gin.Default would add a
	// second copy of each.
	router := gin.New()
	handler := api.NewHandler(
		orderService,
		webhookService,
		fulfillment,
		webhook.NewBinancePayVerifier(cfg.Webhooks.BinancePaySecret),
		webhook.NewWalletPayVerifier(cfg.Webhooks.WalletPaySecret),
		limiter,
		cfg.Server.AdminToken,
	)
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

	log.Println("Server exited")
}
