// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/engagement.db"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Engagement EngagementConfig
	Ingest     IngestConfig
	Reports    ReportConfig
	EventLog   EventLogConfig
	SSE        SSEConfig
	Telemetry  TelemetryConfig
}

// EngagementConfig controls the trigger state machine and event fan-out.
type EngagementConfig struct {
	MinDwell    time.Duration `env:"ENGAGEMENT_MIN_DWELL" envDefault:"6s"`
	Cooldown    time.Duration `env:"ENGAGEMENT_COOLDOWN" envDefault:"15s"`
	RotationRaw string        `env:"ENGAGEMENT_ROTATION" envDefault:"poll,summary,break,recap"`
	EventBuffer int           `env:"ENGAGEMENT_EVENT_BUFFER" envDefault:"64"`

	// Rotation is RotationRaw parsed by Load.
	Rotation []domain.PromptType
}

// IngestConfig controls the sample submission endpoints.
type IngestConfig struct {
	RateLimit    int           `env:"SAMPLE_RATE_LIMIT" envDefault:"120"`
	RateWindow   time.Duration `env:"SAMPLE_RATE_WINDOW" envDefault:"10s"`
	MaxBodyBytes int64         `env:"MAX_REQUEST_BODY_BYTES" envDefault:"1048576"`
}

// ReportConfig controls the archive of ended-session reports.
type ReportConfig struct {
	Retention     time.Duration `env:"REPORT_RETENTION" envDefault:"168h"`
	SweepInterval time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"5m"`
	// EndedSessionGrace is how long an ended session stays in memory
	// before only its archived report remains.
	EndedSessionGrace time.Duration `env:"ENDED_SESSION_GRACE" envDefault:"1h"`
}

// EventLogConfig controls NDJSON per-session event logging.
type EventLogConfig struct {
	Enabled   bool   `env:"EVENT_LOG_ENABLED" envDefault:"true"`
	Dir       string `env:"EVENT_LOG_DIR" envDefault:"./data/logs/sessions"`
	QueueSize int    `env:"EVENT_LOG_QUEUE_SIZE" envDefault:"1000"`
}

// SSEConfig controls the server-sent events stream.
type SSEConfig struct {
	KeepaliveInterval time.Duration `env:"SSE_KEEPALIVE_INTERVAL" envDefault:"10s"`
	RetryDelay        time.Duration `env:"SSE_RETRY_DELAY" envDefault:"5s"`
	ReplaySize        int           `env:"SSE_REPLAY_SIZE" envDefault:"100"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	rotation, err := domain.ParseRotation(cfg.Engagement.RotationRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: ENGAGEMENT_ROTATION: %w", err)
	}
	cfg.Engagement.Rotation = rotation

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.Engagement.MinDwell <= 0 {
		return errors.New("ENGAGEMENT_MIN_DWELL must be > 0")
	}
	if c.Engagement.Cooldown <= 0 {
		return errors.New("ENGAGEMENT_COOLDOWN must be > 0")
	}
	if len(c.Engagement.Rotation) == 0 {
		return errors.New("ENGAGEMENT_ROTATION cannot be empty")
	}
	if c.Engagement.EventBuffer <= 0 {
		return errors.New("ENGAGEMENT_EVENT_BUFFER must be > 0")
	}
	if c.Ingest.RateLimit <= 0 || c.Ingest.RateWindow <= 0 {
		return errors.New("SAMPLE_RATE_LIMIT and SAMPLE_RATE_WINDOW must be > 0")
	}
	if c.Ingest.MaxBodyBytes <= 0 {
		return errors.New("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Reports.Retention <= 0 {
		return errors.New("REPORT_RETENTION must be > 0")
	}
	if c.Reports.SweepInterval <= 0 {
		return errors.New("RETENTION_SWEEP_INTERVAL must be > 0")
	}
	if c.Reports.EndedSessionGrace < 0 {
		return errors.New("ENDED_SESSION_GRACE must be >= 0")
	}
	if c.EventLog.Enabled && c.EventLog.Dir == "" {
		return errors.New("EVENT_LOG_DIR cannot be empty")
	}
	if c.EventLog.QueueSize <= 0 {
		return errors.New("EVENT_LOG_QUEUE_SIZE must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return errors.New("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.SSE.ReplaySize < 0 {
		return errors.New("SSE_REPLAY_SIZE must be >= 0")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel returns the configured log level. Validate has already
// rejected unknown names.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := ParseLogLevel(c.LogLevel)
	return lvl
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
}
