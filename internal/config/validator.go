package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
	r.Valid = false
}

// AddWarning adds a validation warning
func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	switch c.Storage.Backend {
	case "file", "":
	case "redis":
		if c.Storage.RedisAddr == "" {
			result.AddError("redis_addr", "", "required when storage_backend=redis")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("postgres_dsn", "", "required when storage_backend=postgres")
		}
	case "mongodb":
		if c.Storage.MongoURI == "" {
			result.AddError("mongodb_uri", "", "required when storage_backend=mongodb")
		}
	case "git":
	default:
		result.AddError("storage_backend", c.Storage.Backend, "unknown backend")
	}

	if c.Credentials.MaxKeys <= 0 || c.Credentials.MaxKeys > 100 {
		result.AddError("max_keys", strconv.Itoa(c.Credentials.MaxKeys), "must be between 1 and 100")
	}
	if c.Credentials.FailureThreshold <= 0 {
		result.AddError("consecutive_failure_threshold", strconv.Itoa(c.Credentials.FailureThreshold), "must be positive")
	}
	if c.Credentials.Cooldown <= 0 {
		result.AddError("cooldown_hours", c.Credentials.Cooldown.String(), "must be positive")
	}

	if _, err := url.ParseRequestURI(c.Generation.Endpoint); err != nil {
		result.AddError("endpoint", c.Generation.Endpoint, "invalid URL")
	}
	if c.Generation.ProxyURL != "" {
		if _, err := url.Parse(c.Generation.ProxyURL); err != nil {
			result.AddError("proxy_url", c.Generation.ProxyURL, "invalid URL")
		}
	}
	if c.Generation.RetryMax > 10 {
		result.AddWarning("retry_max", strconv.Itoa(c.Generation.RetryMax), "high retry counts multiply quota usage")
	}

	if c.Batch.PauseSlice <= 0 || c.Batch.PauseSlice > MaxPauseSliceMs*time.Millisecond {
		result.AddError("pause_slice_ms", c.Batch.PauseSlice.String(), "must be between 1 and 500 ms")
	}

	if c.Server.ManagementKey == "" {
		if c.Server.AllowRemote {
			result.AddError("management_key", "", "required when management_allow_remote is set")
		} else {
			result.AddWarning("management_key", "", "management API is unauthenticated (loopback only)")
		}
	}

	return result
}
