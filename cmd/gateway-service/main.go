package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ms-settlement/internal/config"
	gateway_handlers "ms-settlement/internal/gateway/handler"
	gateway_services "ms-settlement/internal/gateway/services"
	gateway_storage "ms-settlement/internal/gateway/storage"
	"ms-settlement/internal/kafka"
	"ms-settlement/internal/logger"
)

// Standalone payment gateway service: charge creation against Stripe,
// inbound settlement callbacks, payment events out to Kafka.
func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()

	stripeService, err := gateway_services.NewStripeService(cfg.Settlement.Currency, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	store, err := gateway_storage.NewPostgreSQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Transaction store initialization failed: %v", err))
	}
	defer store.Close()

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.PaymentEvents}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
	}

	chargeHandler := gateway_handlers.NewChargeHandler(stripeService, store, kafkaProducer, cfg.Kafka.Topics.PaymentEvents, log)

	g := gin.Default()
	// The webhook stays open for the processor; charge endpoints require
	// caller claims.
	g.POST("/gateway/webhook", chargeHandler.HandleCallback)
	charges := g.Group("/gateway/charges", gateway_handlers.RequireClaims(log))
	charges.POST("", chargeHandler.CreateCharge)
	charges.GET("/:bookingId", chargeHandler.GetChargeStatus)
	g.GET("/healthz", func(c *gin.Context) {
		if err := store.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:    cfg.Gateway.Port,
		Handler: g,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Gateway Service running on %s", cfg.Gateway.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	log.Info("HTTP", "✅ Gateway Service exited gracefully")
}
