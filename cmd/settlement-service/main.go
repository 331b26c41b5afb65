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
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/booking"
	booking_api "ms-settlement/internal/booking/api"
	booking_db "ms-settlement/internal/booking/db"
	"ms-settlement/internal/config"
	"ms-settlement/internal/gateway"
	"ms-settlement/internal/kafka"
	"ms-settlement/internal/ledger"
	ledger_api "ms-settlement/internal/ledger/api"
	ledger_db "ms-settlement/internal/ledger/db"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/notify"
	"ms-settlement/internal/payout"
	payout_api "ms-settlement/internal/payout/api"
	payout_db "ms-settlement/internal/payout/db"
	payout_redis "ms-settlement/internal/payout/redis"
	"ms-settlement/internal/sse"
	"ms-settlement/internal/tier"
	tier_api "ms-settlement/internal/tier/api"
	tier_db "ms-settlement/internal/tier/db"
)

// Standalone settlement service: booking lifecycle, ledger, payouts and
// tier reads, with the payment-event consumer and background sweeps. The
// gateway runs as its own binary.
func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.Database.Username, cfg.Database.Password,
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()

	tierStore := tier_db.NewDB(bunDB)
	oauthCfg := models.OAuthClientConfig{
		IssuerURL:    os.Getenv("OIDC_ISSUER_BASE"),
		Realm:        os.Getenv("OIDC_REALM"),
		ClientID:     os.Getenv("OIDC_CLIENT_ID"),
		ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
	}
	tokenCache := auth.NewRedisTokenCache(redisClient)
	profileClient := tier.NewProfileClient(cfg.Profile.BaseURL, oauthCfg, tokenCache, log)
	tierService := tier.NewService(tierStore, profileClient, log)

	bookingService := booking.NewService(
		&booking_db.DB{Bun: bunDB},
		tierService,
		gateway.NewClient(cfg.Gateway.BaseURL, oauthCfg, tokenCache, log),
		notify.NewVoucherGenerator(os.Getenv("VOUCHER_SECRET")),
		tierStore,
		log,
		cfg.Settlement.PaymentWindow,
	)
	bookingEvents := sse.NewBookingEventEmitter()
	bookingService.Events = bookingEvents
	bookingHandler := booking_api.NewHandler(bookingService, log)
	sseHandler := booking_api.NewSSEHandler(log, bookingEvents)

	ledgerService := ledger.NewService(&ledger_db.DB{Bun: bunDB}, log)
	ledgerHandler := ledger_api.NewHandler(ledgerService, cfg.Settlement.Currency, log)

	payoutService := payout.NewService(
		&payout_db.DB{Bun: bunDB},
		payout_redis.NewRedis(redisClient, cfg.Settlement.PayoutLockTTL),
		ledgerService,
		log,
	)
	payoutHandler := payout_api.NewHandler(payoutService, log)
	tierHandler := tier_api.NewHandler(tierService, log)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", bookingHandler.CreateBooking)
				r.Get("/{bookingId}", bookingHandler.GetBooking)
				r.Post("/{bookingId}/advance", bookingHandler.AdvanceBooking)
				r.Post("/{bookingId}/cancel", bookingHandler.CancelBooking)
			})

			r.Route("/talents/{talentId}", func(r chi.Router) {
				r.Get("/bookings", bookingHandler.ListTalentBookings)
				r.Get("/bookings/stream", sseHandler.HandleTalentBookings)
				r.Get("/balance", ledgerHandler.GetBalance)
				r.Get("/transactions", ledgerHandler.GetHistory)
				r.Get("/tier", tierHandler.GetTier)
			})
			r.Get("/customers/{customerId}/bookings", bookingHandler.ListCustomerBookings)
			r.Get("/customers/{customerId}/bookings/stream", sseHandler.HandleCustomerBookings)

			r.Route("/payouts", func(r chi.Router) {
				r.Post("/", payoutHandler.RequestPayout)
				r.Get("/{requestId}", payoutHandler.GetPayout)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAdmin)
					r.Get("/", payoutHandler.ListPayouts)
					r.Post("/{requestId}/decision", payoutHandler.DecidePayout)
					r.Post("/{requestId}/processed", payoutHandler.MarkProcessed)
				})
			})
		})
	})

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentEvents, cfg.Kafka.GroupID)
		defer consumer.Close()
		go consumer.StartPaymentEvents(ctx, func(event models.PaymentEvent) {
			if err := bookingService.HandlePaymentEvent(ctx, event); err != nil {
				log.Error("KAFKA", fmt.Sprintf("payment event for %s failed: %v", event.BookingID, err))
			}
		})

		dispatcher := &notify.Dispatcher{
			Bun:      bunDB,
			Producer: kafkaProducer,
			Topic:    cfg.Kafka.Topics.Notifications,
			Log:      log,
		}
		go dispatcher.Run(ctx, cfg.Settlement.OutboxInterval)
	} else {
		log.Warn("KAFKA", "Kafka disabled, payment events and notifications will not flow")
	}
	go tierService.Run(ctx, cfg.Settlement.TierSweepInterval)

	go func() {
		ticker := time.NewTicker(cfg.Settlement.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := bookingService.SweepExpiredPending(ctx); err != nil {
					log.Error("BOOKING", fmt.Sprintf("timeout sweep failed: %v", err))
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Settlement Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	log.Info("HTTP", "✅ Settlement Service exited gracefully")
}
