package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the hookline binary.
// Values are loaded from environment variables; see printUsage() in
// cmd/hookline for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	// WorkerDrainTimeout bounds how long in-flight fan-outs may run
	// after a shutdown signal before the worker force-terminates.
	WorkerDrainTimeout    time.Duration `json:"-"`
	WorkerDrainTimeoutStr string        `json:"worker_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// BatchMaxSize is the maximum number of events per inbound batch.
	BatchMaxSize int `json:"batch_max_size"`

	// Webhook sender knobs. RetryDelay is the base of the exponential
	// backoff (delay * 2^(attempt-1)).
	WebhookMaxAttempts   int           `json:"webhook_max_attempts"`
	WebhookRetryDelay    time.Duration `json:"-"`
	WebhookRetryDelayStr string        `json:"webhook_retry_delay"`
	WebhookTimeout       time.Duration `json:"-"`
	WebhookTimeoutStr    string        `json:"webhook_timeout"`

	// Queue runtime knobs. Concurrency is the number of worker slots;
	// the rate limit bounds total dispatch across all slots.
	WorkerConcurrency int `json:"worker_concurrency"`
	RateLimitMax      int `json:"rate_limit_max"`

	RateLimitWindow    time.Duration `json:"-"`
	RateLimitWindowStr string        `json:"rate_limit_window"`

	QueuePollInterval    time.Duration `json:"-"`
	QueuePollIntervalStr string        `json:"queue_poll_interval"`

	QueueJobAttempts int `json:"queue_job_attempts"`

	QueueBackoffBase    time.Duration `json:"-"`
	QueueBackoffBaseStr string        `json:"queue_backoff_base"`

	QueueLeaseDuration    time.Duration `json:"-"`
	QueueLeaseDurationStr string        `json:"queue_lease_duration"`

	// ReconcileThreshold must exceed QueueLeaseDuration or healthy
	// in-flight jobs would be requeued mid-delivery.
	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`
	ReconcileBatchSize   int           `json:"reconcile_batch_size"`

	JanitorEnabled  bool   `json:"janitor_enabled"`
	JanitorSchedule string `json:"janitor_schedule"`

	CompletedKeepCount  int           `json:"completed_keep_count"`
	CompletedKeepAge    time.Duration `json:"-"`
	CompletedKeepAgeStr string        `json:"completed_keep_age"`
	DeadKeepCount       int           `json:"dead_keep_count"`
	DeadKeepAge         time.Duration `json:"-"`
	DeadKeepAgeStr      string        `json:"dead_keep_age"`

	// CircuitBreakerThreshold: 0 disables the breaker entirely.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		DBOpTimeoutStr:         os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		WorkerDrainTimeoutStr:  os.Getenv("WORKER_DRAIN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		MetricsPort:            os.Getenv("METRICS_PORT"),
		WebhookRetryDelayStr:   os.Getenv("WEBHOOK_RETRY_DELAY"),
		WebhookTimeoutStr:      os.Getenv("WEBHOOK_TIMEOUT"),
		RateLimitWindowStr:     os.Getenv("RATE_LIMIT_WINDOW"),
		QueuePollIntervalStr:   os.Getenv("QUEUE_POLL_INTERVAL"),
		QueueBackoffBaseStr:    os.Getenv("QUEUE_BACKOFF_BASE"),
		QueueLeaseDurationStr:  os.Getenv("QUEUE_LEASE_DURATION"),
		ReconcileEnabled:       os.Getenv("RECONCILE_ENABLED") != "false",
		ReconcileIntervalStr:   os.Getenv("RECONCILE_INTERVAL"),
		JanitorEnabled:         os.Getenv("JANITOR_ENABLED") != "false",
		JanitorSchedule:        os.Getenv("JANITOR_SCHEDULE"),
		CompletedKeepAgeStr:    os.Getenv("COMPLETED_KEEP_AGE"),
		DeadKeepAgeStr:         os.Getenv("DEAD_KEEP_AGE"),
	}

	cfg.BatchMaxSize = intEnv("BATCH_SIZE", 100)
	cfg.WebhookMaxAttempts = intEnv("WEBHOOK_MAX_ATTEMPTS", 3)
	cfg.WorkerConcurrency = intEnv("WORKER_CONCURRENCY", 5)
	cfg.RateLimitMax = intEnv("RATE_LIMIT_MAX", 100)
	cfg.QueueJobAttempts = intEnv("QUEUE_JOB_ATTEMPTS", 3)
	cfg.ReconcileBatchSize = intEnv("RECONCILE_BATCH_SIZE", 100)
	cfg.CompletedKeepCount = intEnv("COMPLETED_KEEP_COUNT", 1000)
	cfg.DeadKeepCount = intEnv("DEAD_KEEP_COUNT", 5000)
	cfg.DBMaxOpenConns = intEnv("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = intEnv("DB_MAX_IDLE_CONNS", 5)

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, breaker disabled", cbThreshStr)
		}
	}
	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	// Support platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.WorkerDrainTimeoutStr == "" {
		cfg.WorkerDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.WebhookRetryDelayStr == "" {
		cfg.WebhookRetryDelayStr = "2500ms"
	}
	if cfg.WebhookTimeoutStr == "" {
		cfg.WebhookTimeoutStr = "5s"
	}
	if cfg.RateLimitWindowStr == "" {
		cfg.RateLimitWindowStr = "10s"
	}
	if cfg.QueuePollIntervalStr == "" {
		cfg.QueuePollIntervalStr = "500ms"
	}
	if cfg.QueueBackoffBaseStr == "" {
		cfg.QueueBackoffBaseStr = "5s"
	}
	if cfg.QueueLeaseDurationStr == "" {
		cfg.QueueLeaseDurationStr = "1m"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "1m"
	}
	if cfg.JanitorSchedule == "" {
		cfg.JanitorSchedule = "*/15 * * * *"
	}
	if cfg.CompletedKeepAgeStr == "" {
		cfg.CompletedKeepAgeStr = "24h"
	}
	if cfg.DeadKeepAgeStr == "" {
		cfg.DeadKeepAgeStr = "168h"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "30s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.WorkerDrainTimeoutStr); err == nil {
		cfg.WorkerDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.WebhookRetryDelayStr); err == nil {
		cfg.WebhookRetryDelay = d
	}
	if d, err := time.ParseDuration(cfg.WebhookTimeoutStr); err == nil {
		cfg.WebhookTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RateLimitWindowStr); err == nil {
		cfg.RateLimitWindow = d
	}
	if d, err := time.ParseDuration(cfg.QueuePollIntervalStr); err == nil {
		cfg.QueuePollInterval = d
	}
	if d, err := time.ParseDuration(cfg.QueueBackoffBaseStr); err == nil {
		cfg.QueueBackoffBase = d
	}
	if d, err := time.ParseDuration(cfg.QueueLeaseDurationStr); err == nil {
		cfg.QueueLeaseDuration = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.CompletedKeepAgeStr); err == nil {
		cfg.CompletedKeepAge = d
	}
	if d, err := time.ParseDuration(cfg.DeadKeepAgeStr); err == nil {
		cfg.DeadKeepAge = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}

	return cfg
}

// intEnv reads a positive integer env var, falling back to def on
// absence or garbage.
func intEnv(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret hides the userinfo portion of a connection URL while
// keeping enough of it to recognize the target.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	at := strings.LastIndex(s, "@")
	scheme := strings.Index(s, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return "****"
	}
	return s[:scheme+3] + "****" + s[at:]
}
