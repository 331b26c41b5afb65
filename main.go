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

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/booking"
	booking_api "ms-settlement/internal/booking/api"
	booking_db "ms-settlement/internal/booking/db"
	"ms-settlement/internal/config"
	"ms-settlement/internal/database/migrations"
	"ms-settlement/internal/gateway"
	gateway_handlers "ms-settlement/internal/gateway/handler"
	gateway_services "ms-settlement/internal/gateway/services"
	gateway_storage "ms-settlement/internal/gateway/storage"
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

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.Database.Username, cfg.Database.Password,
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Settlement Engine initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Schema migration failed: %v", err))
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()
	log.Info("KAFKA", "Kafka producer initialized successfully")

	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.PaymentEvents,
			cfg.Kafka.Topics.Notifications,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, payment events and notifications will not flow")
	}

	// --- Tier ---
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

	// --- Booking ---
	voucher := notify.NewVoucherGenerator(os.Getenv("VOUCHER_SECRET"))
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, oauthCfg, tokenCache, log)
	bookingService := booking.NewService(
		&booking_db.DB{Bun: bunDB},
		tierService,
		gatewayClient,
		voucher,
		tierStore,
		log,
		cfg.Settlement.PaymentWindow,
	)
	bookingEvents := sse.NewBookingEventEmitter()
	bookingService.Events = bookingEvents
	bookingHandler := booking_api.NewHandler(bookingService, log)
	sseHandler := booking_api.NewSSEHandler(log, bookingEvents)

	// --- Ledger ---
	ledgerService := ledger.NewService(&ledger_db.DB{Bun: bunDB}, log)
	ledgerHandler := ledger_api.NewHandler(ledgerService, cfg.Settlement.Currency, log)

	// --- Payout ---
	payoutLock := payout_redis.NewRedis(redisClient, cfg.Settlement.PayoutLockTTL)
	payoutService := payout.NewService(&payout_db.DB{Bun: bunDB}, payoutLock, ledgerService, log)
	payoutHandler := payout_api.NewHandler(payoutService, log)

	tierHandler := tier_api.NewHandler(tierService, log)

	// --- Settlement HTTP API (chi) ---
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
	log.Info("ROUTER", "Settlement routes registered under /api/v1")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// --- Gateway HTTP API (gin) ---
	var gatewayServer *http.Server
	stripeService, err := gateway_services.NewStripeService(cfg.Settlement.Currency, log)
	if err != nil {
		log.Warn("GATEWAY", fmt.Sprintf("Stripe unavailable, gateway endpoints disabled: %v", err))
	} else {
		txnStore := gateway_storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
		chargeHandler := gateway_handlers.NewChargeHandler(stripeService, txnStore, kafkaProducer, cfg.Kafka.Topics.PaymentEvents, log)

		g := gin.Default()
		// The webhook stays open for the processor; charge endpoints
		// require caller claims.
		g.POST("/gateway/webhook", chargeHandler.HandleCallback)
		charges := g.Group("/gateway/charges", gateway_handlers.RequireClaims(log))
		charges.POST("", chargeHandler.CreateCharge)
		charges.GET("/:bookingId", chargeHandler.GetChargeStatus)

		gatewayServer = &http.Server{
			Addr:    cfg.Gateway.Port,
			Handler: g,
		}
		go func() {
			log.Info("HTTP", fmt.Sprintf("🚀 Gateway endpoints running on %s", cfg.Gateway.Port))
			if err := gatewayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("HTTP", fmt.Sprintf("Gateway server error: %v", err))
			}
		}()
	}

	// --- Background workers ---
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
				n, err := bookingService.SweepExpiredPending(ctx)
				if err != nil {
					log.Error("BOOKING", fmt.Sprintf("timeout sweep failed: %v", err))
				} else if n > 0 {
					log.Info("BOOKING", fmt.Sprintf("timeout sweep cancelled %d bookings", n))
				}
			}
		}
	}()

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Settlement Engine running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if gatewayServer != nil {
		if err := gatewayServer.Shutdown(ctxShutdown); err != nil {
			log.Error("HTTP", fmt.Sprintf("Gateway shutdown failed: %v", err))
		}
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Settlement Engine shutdown complete")
	}
}
