package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	} else if _, err := url.Parse(cfg.DatabaseURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: fmt.Sprintf("invalid url: %v", err),
		})
	}

	errs = appendDurationErr(errs, "DB_OP_TIMEOUT", cfg.DBOpTimeoutStr)
	errs = appendDurationErr(errs, "WEBHOOK_RETRY_DELAY", cfg.WebhookRetryDelayStr)
	errs = appendDurationErr(errs, "WEBHOOK_TIMEOUT", cfg.WebhookTimeoutStr)
	errs = appendDurationErr(errs, "RATE_LIMIT_WINDOW", cfg.RateLimitWindowStr)
	errs = appendDurationErr(errs, "QUEUE_POLL_INTERVAL", cfg.QueuePollIntervalStr)
	errs = appendDurationErr(errs, "QUEUE_BACKOFF_BASE", cfg.QueueBackoffBaseStr)
	errs = appendDurationErr(errs, "QUEUE_LEASE_DURATION", cfg.QueueLeaseDurationStr)
	errs = appendDurationErr(errs, "RECONCILE_INTERVAL", cfg.ReconcileIntervalStr)
	errs = appendDurationErr(errs, "WORKER_DRAIN_TIMEOUT", cfg.WorkerDrainTimeoutStr)

	if cfg.WebhookMaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "WEBHOOK_MAX_ATTEMPTS",
			Message: "must be at least 1",
		})
	}
	if cfg.QueueJobAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "QUEUE_JOB_ATTEMPTS",
			Message: "must be at least 1",
		})
	}

	// Requeuing a job whose lease is still live would race the worker
	// holding it.
	if cfg.ReconcileEnabled && cfg.QueueLeaseDuration > 0 && cfg.ReconcileInterval > 0 &&
		cfg.ReconcileInterval < cfg.QueuePollInterval {
		errs = append(errs, ValidationError{
			Field:   "RECONCILE_INTERVAL",
			Message: "must not be shorter than QUEUE_POLL_INTERVAL",
		})
	}

	if cfg.JanitorEnabled && cfg.JanitorSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(cfg.JanitorSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "JANITOR_SCHEDULE",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationErr(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
