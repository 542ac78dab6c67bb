package config

import (
	"os"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
		Exchange string
	}
	Service struct {
		Port      int
		JWTSecret string
	}
	WebSocket struct {
		Port int
	}
	Ledger struct {
		Endpoint     string
		SignerSecret string
		Account      string
		WriteTimeout time.Duration
	}
	Engagement struct {
		ConfirmationTimeout time.Duration
		GeofenceInterval    time.Duration
		PickupRadiusMeters  float64
		DropoffRadiusMeters float64
		PositionMaxAge      time.Duration
		EnableAttestations  bool
		WithPickupStage     bool
	}
	Routing struct {
		SettleDelay  time.Duration
		PollInterval time.Duration
		RetryAfter   time.Duration
		StuckAfter   time.Duration
		AvgSpeedKmh  float64
	}
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = gotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "engage_user")
	cfg.Database.Password = getEnv("DB_PASSWORD", "engage_pass")
	cfg.Database.Name = getEnv("DB_NAME", "engage_db")

	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port = getEnvInt("RABBITMQ_PORT", 5672)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", "guest")
	cfg.RabbitMQ.Exchange = getEnv("RABBITMQ_EXCHANGE", "engagement.events")

	cfg.Service.Port = getEnvInt("ENGAGEMENT_SERVICE_PORT", 3000)
	cfg.Service.JWTSecret = getEnv("JWT_SECRET", "super-secret-key")

	cfg.WebSocket.Port = getEnvInt("WS_PORT", 8080)

	cfg.Ledger.Endpoint = getEnv("LEDGER_ENDPOINT", "http://localhost:8545")
	cfg.Ledger.SignerSecret = getEnv("LEDGER_SIGNER_SECRET", "")
	cfg.Ledger.Account = getEnv("LEDGER_ACCOUNT", "")
	cfg.Ledger.WriteTimeout = time.Duration(getEnvInt("LEDGER_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond

	cfg.Engagement.ConfirmationTimeout = time.Duration(getEnvInt("CONFIRMATION_TIMEOUT_MS", 30000)) * time.Millisecond
	cfg.Engagement.GeofenceInterval = time.Duration(getEnvInt("GEOFENCE_INTERVAL_MS", 3000)) * time.Millisecond
	cfg.Engagement.PickupRadiusMeters = getEnvFloat("PICKUP_RADIUS_METERS", 50)
	cfg.Engagement.DropoffRadiusMeters = getEnvFloat("DROPOFF_RADIUS_METERS", 50)
	cfg.Engagement.PositionMaxAge = time.Duration(getEnvInt("POSITION_MAX_AGE_MS", 15000)) * time.Millisecond
	cfg.Engagement.EnableAttestations = getEnvBool("ENABLE_ATTESTATIONS", true)
	cfg.Engagement.WithPickupStage = getEnvBool("WITH_PICKUP_STAGE", false)

	cfg.Routing.SettleDelay = time.Duration(getEnvInt("ROUTING_SETTLE_DELAY_MS", 500)) * time.Millisecond
	cfg.Routing.PollInterval = time.Duration(getEnvInt("ROUTING_POLL_INTERVAL_MS", 500)) * time.Millisecond
	cfg.Routing.RetryAfter = time.Duration(getEnvInt("ROUTING_RETRY_AFTER_MS", 5000)) * time.Millisecond
	cfg.Routing.StuckAfter = time.Duration(getEnvInt("ROUTING_STUCK_AFTER_MS", 15000)) * time.Millisecond
	cfg.Routing.AvgSpeedKmh = getEnvFloat("ROUTING_AVG_SPEED_KMH", 30)

	return cfg, nil
}
