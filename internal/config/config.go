package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application runtime configuration.
type Config struct {
	Env               string
	HTTPPort          string
	StoreDriver       string
	DatabaseURL       string
	DBMaxConns        int
	MigrateOnStart    bool
	LogLevel          string
	LogFile           string
	PrintLimit        int
	KafkaBrokers      []string
	KafkaTopic        string
	RedisAddr         string
	RedisPassword     string
	LockTTL           time.Duration
	RateLimit         int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHierarchyDepth int
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getInt("DB_MAX_CONNS", 10),
		MigrateOnStart:    getBool("MIGRATE_ON_START", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		PrintLimit:        getInt("PRINT_LIMIT", 3),
		KafkaBrokers:      getList("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "payin.captured"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		LockTTL:           getDuration("LOCK_TTL", 30*time.Second),
		RateLimit:         getInt("RATE_LIMIT_PER_MINUTE", 200),
		ReadTimeout:       getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHierarchyDepth: getInt("MAX_HIERARCHY_DEPTH", 64),
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
	case "memory":
	default:
		return cfg, errors.New("STORE_DRIVER must be postgres or memory")
	}
	if cfg.PrintLimit < 1 {
		return cfg, errors.New("PRINT_LIMIT must be at least 1")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
