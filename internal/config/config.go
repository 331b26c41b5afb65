package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Settlement SettlementConfig
	Profile    ProfileConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	PaymentEvents string
	Notifications string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// SettlementConfig holds the engine's own knobs: how long an unpaid booking
// may sit pending before the sweep cancels it, sweep cadences, and the TTL
// of the per-talent payout lock.
type SettlementConfig struct {
	PaymentWindow     time.Duration
	SweepInterval     time.Duration
	TierSweepInterval time.Duration
	PayoutLockTTL     time.Duration
	OutboxInterval    time.Duration
	Currency          string
}

type ProfileConfig struct {
	BaseURL string
}

// GatewayConfig covers both sides of the payment gateway service: the port
// it listens on and the base URL other services reach it at.
type GatewayConfig struct {
	Port    string
	BaseURL string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "settlement_user"),
			Password:     getEnv("DB_PASSWORD", "settlement_pass"),
			Database:     getEnv("DB_NAME", "settlement"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "settlement-engine-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				PaymentEvents: getEnv("KAFKA_TOPIC_PAYMENT_EVENTS", "payment-events"),
				Notifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "notification-events"),
			},
		},
		Settlement: SettlementConfig{
			PaymentWindow:     time.Duration(getEnvInt("PAYMENT_WINDOW_MINUTES", 30)) * time.Minute,
			SweepInterval:     time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
			TierSweepInterval: time.Duration(getEnvInt("TIER_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
			PayoutLockTTL:     time.Duration(getEnvInt("PAYOUT_LOCK_TTL_SECONDS", 30)) * time.Second,
			OutboxInterval:    time.Duration(getEnvInt("OUTBOX_INTERVAL_SECONDS", 10)) * time.Second,
			Currency:          getEnv("SETTLEMENT_CURRENCY", "idr"),
		},
		Profile: ProfileConfig{
			BaseURL: getEnv("PROFILE_SERVICE_URL", "http://localhost:8081"),
		},
		Gateway: GatewayConfig{
			Port:    getEnv("GATEWAY_PORT", ":8082"),
			BaseURL: getEnv("GATEWAY_SERVICE_URL", "http://localhost:8082"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
