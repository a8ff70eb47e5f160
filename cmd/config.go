package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

const (
	defaultHTTPAddr   = ":8080"
	defaultRedisAddr  = "127.0.0.1:6379"
	defaultRedisDB    = 0
	defaultWindowSize = 50
	defaultThreshold  = 0.5
	defaultQueueSize  = 1024
	defaultLogLevel   = "info"
)

type config struct {
	httpAddr      string
	redisAddr     string
	redisPassword string
	redisDB       int
	windowSize    int
	threshold     float64
	queueSize     int
	logLevel      string
}

// RegisterFlags registers the service flags. Environment variables provide
// the defaults so containers can be configured either way.
func (c *config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.httpAddr, "http.addr", readEnv("HTTP_ADDR", defaultHTTPAddr), "Address the HTTP server listens on.")
	f.StringVar(&c.redisAddr, "redis.addr", readEnv("REDIS_ADDR", defaultRedisAddr), "Redis address.")
	f.StringVar(&c.redisPassword, "redis.password", readEnv("REDIS_PASSWORD", ""), "Redis password.")
	f.IntVar(&c.redisDB, "redis.db", readEnvInt("REDIS_DB", defaultRedisDB), "Redis database number.")
	f.IntVar(&c.windowSize, "analytics.window", readEnvInt("ANALYTICS_WINDOW", defaultWindowSize), "Number of samples in each smoothing window.")
	f.Float64Var(&c.threshold, "analytics.threshold", readEnvFloat("ANALYTICS_THRESHOLD", defaultThreshold), "Relative deviation from the rolling median that marks a spike.")
	f.IntVar(&c.queueSize, "ingest.queue-size", readEnvInt("INGEST_QUEUE_SIZE", defaultQueueSize), "Samples buffered between ingestion and analysis.")
	f.StringVar(&c.logLevel, "log.level", readEnv("LOG_LEVEL", defaultLogLevel), "Only log messages with the given severity or above. One of: debug, info, warn, error.")
}

func (c *config) Validate() error {
	if c.windowSize <= 0 {
		return errors.Errorf("analytics window must be positive, got %d", c.windowSize)
	}
	if c.threshold < 0 {
		return errors.Errorf("analytics threshold must not be negative, got %g", c.threshold)
	}
	if c.queueSize <= 0 {
		return errors.Errorf("ingest queue size must be positive, got %d", c.queueSize)
	}
	return nil
}

func readEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
