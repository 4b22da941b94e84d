package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ConfigValidationError is returned when config validation fails.
type ConfigValidationError struct {
	Errors []ValidationError
}

func (e *ConfigValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + e.Errors[0].Field + ": " + e.Errors[0].Message
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validatePredictorAPI(&c.PredictorAPI)...)
	errors = append(errors, validateCache(&c.Cache)...)
	errors = append(errors, validateDashboard(&c.Dashboard)...)
	errors = append(errors, validateDigest(&c.Digest)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

// Err returns the validation failures as an error, or nil if the config is valid.
func (c *Config) Err() error {
	result := c.Validate()
	if result.Valid {
		return nil
	}
	return &ConfigValidationError{Errors: result.Errors}
}

func validatePredictorAPI(api *PredictorAPIConfig) []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(api.BaseURL)
	if api.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "predictor_api.base_url",
			Message: "must be an absolute URL",
		})
	}

	if api.Timeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "predictor_api.timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateCache(cache *CacheConfig) []ValidationError {
	var errors []ValidationError

	if cache.Lifetime <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.lifetime",
			Message: "must be positive",
		})
	}

	return errors
}

func validateDashboard(d *DashboardConfig) []ValidationError {
	var errors []ValidationError

	if !d.Enabled {
		return errors
	}

	if d.Port < 1 || d.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "dashboard.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", d.Port),
		})
	}

	if d.PushInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "dashboard.push_interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateDigest(d *DigestConfig) []ValidationError {
	var errors []ValidationError

	if d.Enabled && d.Interval < 1*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "digest.interval",
			Message: "must be at least 1 minute",
		})
	}

	return errors
}
