package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the core consumes from the environment. Poll
// cadence and the expiry budget are externally supplied, never hardcoded in
// the poller.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	PollInterval    time.Duration
	MaxPollAttempts int

	RetentionWindow time.Duration
	SweepInterval   time.Duration

	GatewaySuccessRate  float64
	GatewayPendingTicks int

	ShutdownTimeout time.Duration
}

func Load() Config {
	return Config{
		ServiceName: getenv("SERVICE_NAME", "chatshop"),
		Env:         getenv("ENV", "dev"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		PollInterval:    getduration("POLL_INTERVAL", 30*time.Second),
		MaxPollAttempts: getint("MAX_POLL_ATTEMPTS", 20),

		RetentionWindow: getduration("RETENTION_WINDOW", 24*time.Hour),
		SweepInterval:   getduration("SWEEP_INTERVAL", time.Hour),

		GatewaySuccessRate:  getfloat("GATEWAY_SUCCESS_RATE", 0.7),
		GatewayPendingTicks: getint("GATEWAY_PENDING_TICKS", 2),

		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
