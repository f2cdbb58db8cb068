package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Built from environment
// variables so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string

	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// Scheduler cadence for date-triggered transitions. Daily in production;
	// tests drive ticks directly.
	SchedulerInterval time.Duration

	// DefaultReviewFrequency applies when a document has none of its own.
	DefaultReviewFrequency time.Duration
}

// RedisConfig configures the leader-lock client. An empty URL disables Redis
// and the scheduler runs unguarded (single-node deployments).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification outbox publisher. Empty brokers
// disable publishing; intents stay in the outbox table.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envOr("CHARTER_ADDR", ":8080"),
		JWTSigningKey: envOr("CHARTER_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresDSN:   os.Getenv("CHARTER_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("CHARTER_REDIS_URL"),
			PoolSize:     envIntOr("CHARTER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("CHARTER_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("CHARTER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("CHARTER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("CHARTER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("CHARTER_KAFKA_BROKERS")),
			Topic:   envOr("CHARTER_KAFKA_TOPIC", "charter.notifications"),
		},
		SchedulerInterval:      envDurationOr("CHARTER_SCHEDULER_INTERVAL", 24*time.Hour),
		DefaultReviewFrequency: envDurationOr("CHARTER_DEFAULT_REVIEW_FREQUENCY", 365*24*time.Hour),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if part := csv[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
