package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	PayPal    PayPalConfig    `yaml:"paypal"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Saga      SagaConfig      `yaml:"saga"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains the HTTP and health listener settings
type ServerConfig struct {
	Host       string `yaml:"host"`
	HTTPPort   int    `yaml:"http_port" split_words:"true"`
	HealthPort int    `yaml:"health_port" split_words:"true"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode" split_words:"true"`
	MaxOpenConns int    `yaml:"max_open_conns" split_words:"true"`
}

// RabbitMQConfig contains the bus connection and topology names
type RabbitMQConfig struct {
	URL                string `yaml:"url"`
	Exchange           string `yaml:"exchange"`
	DeadLetterExchange string `yaml:"dead_letter_exchange" split_words:"true"`
	Prefetch           int    `yaml:"prefetch"`
}

// PayPalConfig contains payment provider credentials and webhook settings
type PayPalConfig struct {
	BaseURL         string        `yaml:"base_url" split_words:"true"`
	ClientID        string        `yaml:"client_id" split_words:"true"`
	ClientSecret    string        `yaml:"client_secret" split_words:"true"`
	WebhookID       string        `yaml:"webhook_id" split_words:"true"`
	ReturnURL       string        `yaml:"return_url" split_words:"true"`
	CancelURL       string        `yaml:"cancel_url" split_words:"true"`
	Timeout         time.Duration `yaml:"timeout"`
	FreshnessWindow time.Duration `yaml:"freshness_window" split_words:"true"`
	// SkipSignature disables provider verification in development. The
	// freshness check still applies.
	SkipSignature bool `yaml:"skip_signature" split_words:"true"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes" split_words:"true"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SagaConfig contains consumer retry settings
type SagaConfig struct {
	MaxRetries int           `yaml:"max_retries" split_words:"true"`
	RetryDelay time.Duration `yaml:"retry_delay" split_words:"true"`
}

// AnalyticsConfig contains counter consumer settings
type AnalyticsConfig struct {
	KPICacheTTL time.Duration `yaml:"kpi_cache_ttl" split_words:"true"`
	DedupeTTL   time.Duration `yaml:"dedupe_ttl" split_words:"true"`
}

// TracingConfig contains OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	SweepProcessedEvents       string        `yaml:"sweep_processed_events" split_words:"true"`
	ReportExpiredMemberships   string        `yaml:"report_expired_memberships" split_words:"true"`
	ReportStalePendingPayments string        `yaml:"report_stale_pending_payments" split_words:"true"`
	StalePaymentAge            time.Duration `yaml:"stale_payment_age" split_words:"true"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables, one
// prefix per section (DB_HOST, RABBITMQ_URL, PAYPAL_CLIENT_SECRET, ...).
// Unset variables leave the YAML value untouched.
func (c *Config) overrideWithEnv() error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER", &c.Server},
		{"DB", &c.Database},
		{"RABBITMQ", &c.RabbitMQ},
		{"PAYPAL", &c.PayPal},
		{"JWT", &c.JWT},
		{"LOG", &c.Log},
		{"SAGA", &c.Saga},
		{"ANALYTICS", &c.Analytics},
		{"OTEL", &c.Tracing},
		{"SCHEDULER", &c.Scheduler},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return fmt.Errorf("failed to apply %s_* environment overrides: %w", s.prefix, err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.HealthPort == 0 {
		c.Server.HealthPort = c.Server.HTTPPort + 1
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "gymcore-exchange"
	}
	if c.RabbitMQ.DeadLetterExchange == "" {
		c.RabbitMQ.DeadLetterExchange = "gymcore-dead-letter-exchange"
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = 1
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.PayPal.BaseURL == "" {
		c.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if c.PayPal.Timeout == 0 {
		c.PayPal.Timeout = 10 * time.Second
	}
	if c.PayPal.FreshnessWindow == 0 {
		c.PayPal.FreshnessWindow = 5 * time.Minute
	}

	if c.Saga.MaxRetries == 0 {
		c.Saga.MaxRetries = 3
	}
	if c.Saga.MaxRetries < 0 {
		return fmt.Errorf("saga max retries cannot be negative: %d", c.Saga.MaxRetries)
	}
	if c.Saga.RetryDelay == 0 {
		c.Saga.RetryDelay = 10 * time.Second
	}

	if c.Analytics.KPICacheTTL == 0 {
		c.Analytics.KPICacheTTL = 5 * time.Minute
	}
	if c.Analytics.DedupeTTL == 0 {
		c.Analytics.DedupeTTL = 24 * time.Hour
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}

	if c.Scheduler.SweepProcessedEvents == "" {
		c.Scheduler.SweepProcessedEvents = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ReportExpiredMemberships == "" {
		c.Scheduler.ReportExpiredMemberships = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.ReportStalePendingPayments == "" {
		c.Scheduler.ReportStalePendingPayments = "0 */30 * * * *"
	}
	if c.Scheduler.StalePaymentAge == 0 {
		c.Scheduler.StalePaymentAge = 24 * time.Hour
	}

	return nil
}

// ValidatePayPal checks the credentials the payments service cannot run without.
func (c *Config) ValidatePayPal() error {
	if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
		return fmt.Errorf("paypal client id and secret are required")
	}
	if c.PayPal.WebhookID == "" && !c.PayPal.SkipSignature {
		return fmt.Errorf("paypal webhook id is required unless skip_signature is set")
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetHTTPAddress returns the HTTP listener address
func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// GetHealthAddress returns the gRPC health listener address
func (c *Config) GetHealthAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HealthPort)
}
