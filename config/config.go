package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	JWT         JWTConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	NATS        NATSConfig
	OrderStore  OrderStoreConfig
	RateLimiter RateLimiterConfig
	Bulkhead    BulkheadConfig
	Sim         SimConfig
	Sweep       SweepConfig
	Drone       DroneConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type NATSConfig struct {
	URL     string // empty disables the publisher
	Subject string
}

type OrderStoreConfig struct {
	BaseURL           string
	RestaurantBaseURL string
	Timeout           time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type BulkheadConfig struct {
	TrackingPool int
	MutationPool int
	AdminPool    int
}

// SimConfig tunes the movement loop. Step and tolerance are in coordinate
// degrees; one tick moves the drone at most one step.
type SimConfig struct {
	TickInterval        time.Duration
	StepDegrees         float64
	ArrivalToleranceDeg float64
	BatteryDrainPerTick float64
}

type SweepConfig struct {
	OrderBatchLimit int
	Interval        time.Duration // zero disables the periodic sweep
}

type DroneConfig struct {
	SpeedKMH            float64
	LocationCacheTTLSec int
	IdempotencyTTLSec   int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvInt("PORT", getenvInt("SERVER_PORT", 8080)),
			ShutdownTimeout: time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:      getenv("JWT_SECRET", "default-secret-change-me"),
			ExpiryHours: time.Duration(getenvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:      getenv("DATABASE_URL", ""),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "dispatch_admin"),
			Password: getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:       getenv("POSTGRES_DB", "drone_dispatch"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:     getenv("NATS_URL", ""),
			Subject: getenv("NATS_SUBJECT", "dispatch.events"),
		},
		OrderStore: OrderStoreConfig{
			BaseURL:           getenv("ORDER_SERVICE_URL", "http://localhost:8081"),
			RestaurantBaseURL: getenv("RESTAURANT_SERVICE_URL", ""),
			Timeout:           time.Duration(getenvInt("ORDER_SERVICE_TIMEOUT_SECONDS", 5)) * time.Second,
			BreakerThreshold:  getenvInt("ORDER_SERVICE_CB_THRESHOLD", 5),
			BreakerCooldown:   time.Duration(getenvInt("ORDER_SERVICE_CB_COOLDOWN_SECONDS", 30)) * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Bulkhead: BulkheadConfig{
			TrackingPool: getenvInt("BULKHEAD_TRACKING_POOL", 100),
			MutationPool: getenvInt("BULKHEAD_MUTATION_POOL", 50),
			AdminPool:    getenvInt("BULKHEAD_ADMIN_POOL", 20),
		},
		Sim: SimConfig{
			TickInterval:        time.Duration(getenvInt("SIM_TICK_MS", 2000)) * time.Millisecond,
			StepDegrees:         getenvFloat("SIM_STEP_DEGREES", 0.002),
			ArrivalToleranceDeg: getenvFloat("SIM_ARRIVAL_TOLERANCE_DEGREES", 0.0005),
			BatteryDrainPerTick: getenvFloat("SIM_BATTERY_DRAIN_PER_TICK", 0.1),
		},
		Sweep: SweepConfig{
			OrderBatchLimit: getenvInt("SWEEP_ORDER_BATCH_LIMIT", 50),
			Interval:        time.Duration(getenvInt("SWEEP_INTERVAL_SECONDS", 0)) * time.Second,
		},
		Drone: DroneConfig{
			SpeedKMH:            getenvFloat("DRONE_SPEED_KMH", 30),
			LocationCacheTTLSec: getenvInt("DRONE_LOCATION_CACHE_TTL_SECONDS", 60),
			IdempotencyTTLSec:   getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
	}

	return cfg, nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
