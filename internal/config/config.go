package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort string
	GRPCPort string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	StoreDriver    string
	SQLitePath     string
	MigrationsPath string
	DB             DB

	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	KafkaBrokers   []string
	OrdersTopic    string
	OrdersGroupID  string
	OutboxInterval time.Duration

	MongoURI string
	MongoDB  string

	Currency string
}

type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:   getEnv("APP_ENV", "local"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50051"),

		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StoreDriver:    getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "./storefront.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		DB: DB{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "storefront"),
		},

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CartCacheTTL:  getEnvDuration("CART_CACHE_TTL", time.Minute),

		KafkaBrokers:   getEnvList("KAFKA_BROKERS"),
		OrdersTopic:    getEnv("ORDERS_TOPIC", "order-events"),
		OrdersGroupID:  getEnv("ORDERS_GROUP_ID", "storefront-orders"),
		OutboxInterval: getEnvDuration("OUTBOX_INTERVAL", time.Second),

		MongoURI: getEnv("MONGO_URI", ""),
		MongoDB:  getEnv("MONGO_DB", "storefront"),

		Currency: getEnv("CURRENCY", "USD"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
