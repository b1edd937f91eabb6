package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // RECURRING_TIMEZONE must resolve in distroless images

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"gagyebu/internal/core"
)

type Config struct {
	// HTTP Server
	Port string `env:"PORT" envDefault:"8081"`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/gagyebu.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"gagyebu"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"generated_transactions"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `env:"GOOGLE_SHEET_NAME" envDefault:"Ledger"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// Sync worker
	SyncBatchSize int           `env:"SYNC_BATCH_SIZE" envDefault:"10"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`

	// Recurring scheduler
	ProcessorInterval time.Duration `env:"RECURRING_PROCESSOR_INTERVAL" envDefault:"1h"`
	Timezone          string        `env:"RECURRING_TIMEZONE" envDefault:"Asia/Seoul"`
	RangePolicy       string        `env:"RECURRING_RANGE_POLICY" envDefault:"fail-fast"`
	MaxRangeDays      int           `env:"RECURRING_MAX_RANGE_DAYS" envDefault:"31"`
	RunTimeout        time.Duration `env:"RECURRING_RUN_TIMEOUT" envDefault:"5m"`
	WeeklyMultiDay    bool          `env:"RECURRING_WEEKLY_MULTI_DAY" envDefault:"false"`
	SchedulerAPIKey   string        `env:"RECURRING_SCHEDULER_API_KEY"`

	// Auth
	JWTSecret string `env:"JWT_SECRET"`

	// Requests per minute per client IP on the POST trigger routes
	HTTPRateLimit int `env:"RECURRING_HTTP_RATE_LIMIT" envDefault:"60"`

	// Telemetry
	OTELEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
	OTELEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

var validBackends = []string{"sqlite", "postgres", "memory"}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when using postgres backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.ProcessorInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid processor interval %v: must be at least 1 minute", c.ProcessorInterval))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if !core.RangePolicy(c.RangePolicy).IsValid() {
		errs = append(errs, fmt.Sprintf("invalid range policy '%s': must be '%s' or '%s'", c.RangePolicy, core.RangeFailFast, core.RangeIsolate))
	}

	if c.MaxRangeDays < 1 {
		errs = append(errs, fmt.Sprintf("invalid max range days %d: must be at least 1", c.MaxRangeDays))
	}

	if c.RunTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid run timeout %v: must be positive", c.RunTimeout))
	}

	if c.HTTPRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("invalid http rate limit %d: must be at least 1", c.HTTPRateLimit))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Location returns the scheduler's time zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ParseOptions() core.ParseOptions {
	return core.ParseOptions{AllowMultipleWeekdays: c.WeeklyMultiDay}
}

// SheetsEnabled reports whether generated transactions are mirrored to a spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// TracingEnabled reports whether spans are exported.
func (c *Config) TracingEnabled() bool {
	return c.OTELEnabled && c.OTELEndpoint != ""
}
