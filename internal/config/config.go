// Package config defines the configuration structure for the Stormwatch
// pipeline services. Configuration is loaded once at process start and is
// immutable thereafter; values come from the OS environment with an
// optional .env overlay for local development.
//
// Any missing required value or invalid format fails the process
// immediately on startup.
package config

import (
	"time"

	"stormwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for values that must never appear in logs.
type SecretString = types.SecretString

// Config is the top-level configuration shared by all Stormwatch binaries.
// Sub-components receive only the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"stormwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Scoring  ScoringConfig
	Alerts   AlertsConfig
	Geodata  GeodataConfig
}

// ServerConfig holds HTTP server settings for the API binary.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-west-2"`

	DispatchQueueURL string `envconfig:"SQS_ALERT_DISPATCH" validate:"required,url"`
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"Stormwatch"`

	// LocalStack support, empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ScoringConfig tunes the sample scoring pipeline.
type ScoringConfig struct {
	BatchSize       int  `envconfig:"SCORING_BATCH_SIZE" default:"1000" validate:"min=1"`
	MaxConcurrency  int  `envconfig:"SCORING_MAX_CONCURRENCY" default:"8" validate:"min=1"`
	MaxErrors       int  `envconfig:"SCORING_MAX_ERRORS" default:"50"`
	ContinueOnError bool `envconfig:"SCORING_CONTINUE_ON_ERROR" default:"true"`
}

// AlertsConfig tunes the subscription alert run.
type AlertsConfig struct {
	MaxViolationsPerMessage int `envconfig:"ALERTS_MAX_VIOLATIONS_PER_MESSAGE" default:"50" validate:"min=1"`
}

// GeodataConfig points at the reference GeoJSON datasets used for facility
// spatial enrichment. The URLs may serve gzip-compressed payloads.
type GeodataConfig struct {
	CountiesURL   string        `envconfig:"GEODATA_COUNTIES_URL" validate:"required,url"`
	WatershedsURL string        `envconfig:"GEODATA_WATERSHEDS_URL" validate:"required,url"`
	DACURL        string        `envconfig:"GEODATA_DAC_URL" validate:"required,url"`
	MS4URL        string        `envconfig:"GEODATA_MS4_URL" validate:"required,url"`
	FetchTimeout  time.Duration `envconfig:"GEODATA_FETCH_TIMEOUT" default:"2m"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates environment values could not be parsed into
	// their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
