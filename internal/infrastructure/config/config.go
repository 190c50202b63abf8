package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Mpesa    MpesaConfig
	Billing  BillingConfig
	Sweep    SweepConfig
	Notify   NotifyConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                 string
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	Issuer                 string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// MpesaConfig holds Daraja API settings
type MpesaConfig struct {
	Env                string // sandbox or production
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string // Paybill number deposits land on
	Passkey            string // STK push password component
	InitiatorName      string // B2C initiator
	SecurityCredential string
	CallbackBaseURL    string // Public base URL the provider posts results to
	Timeout            time.Duration
	IdempotencyTTL     time.Duration // How long callback keys stay in the fast path
}

// BillingConfig holds monthly invoice generation settings
type BillingConfig struct {
	AutoGenerate bool   // Generate rent invoices on schedule
	CronSchedule string // When the monthly run fires
	DueDays      int    // Days after the period start before rent is overdue
}

// SweepConfig holds reconciliation sweep settings
type SweepConfig struct {
	Enabled       bool
	Interval      time.Duration // Time between sweep runs
	PendingCutoff time.Duration // Age before a pending transaction counts as stuck
	AbandonAfter  time.Duration // Age before a stuck transaction is cancelled
	BatchSize     int
	LockTTL       time.Duration
}

// NotifyConfig holds tenant notification settings
type NotifyConfig struct {
	Provider    string // log or http
	SMSEndpoint string // HTTP SMS provider URL
	SMSAPIKey   string
	SenderID    string // Name shown on the recipient's phone
	Timeout     time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MAKAO_ prefix (e.g., MAKAO_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("MAKAO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                 v.GetString("jwt.secret"),
			AccessTokenExpiration:  v.GetDuration("jwt.access_token_expiration"),
			RefreshTokenExpiration: v.GetDuration("jwt.refresh_token_expiration"),
			Issuer:                 v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Mpesa: MpesaConfig{
			Env:                v.GetString("mpesa.env"),
			ConsumerKey:        v.GetString("mpesa.consumer_key"),
			ConsumerSecret:     v.GetString("mpesa.consumer_secret"),
			ShortCode:          v.GetString("mpesa.short_code"),
			Passkey:            v.GetString("mpesa.passkey"),
			InitiatorName:      v.GetString("mpesa.initiator_name"),
			SecurityCredential: v.GetString("mpesa.security_credential"),
			CallbackBaseURL:    v.GetString("mpesa.callback_base_url"),
			Timeout:            v.GetDuration("mpesa.timeout"),
			IdempotencyTTL:     v.GetDuration("mpesa.idempotency_ttl"),
		},
		Billing: BillingConfig{
			AutoGenerate: v.GetBool("billing.auto_generate"),
			CronSchedule: v.GetString("billing.cron_schedule"),
			DueDays:      v.GetInt("billing.due_days"),
		},
		Sweep: SweepConfig{
			Enabled:       v.GetBool("sweep.enabled"),
			Interval:      v.GetDuration("sweep.interval"),
			PendingCutoff: v.GetDuration("sweep.pending_cutoff"),
			AbandonAfter:  v.GetDuration("sweep.abandon_after"),
			BatchSize:     v.GetInt("sweep.batch_size"),
			LockTTL:       v.GetDuration("sweep.lock_ttl"),
		},
		Notify: NotifyConfig{
			Provider:    v.GetString("notify.provider"),
			SMSEndpoint: v.GetString("notify.sms_endpoint"),
			SMSAPIKey:   v.GetString("notify.sms_api_key"),
			SenderID:    v.GetString("notify.sender_id"),
			Timeout:     v.GetDuration("notify.timeout"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "makao-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "makao"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.RefreshTokenExpiration == 0 {
		cfg.JWT.RefreshTokenExpiration = 168 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "makao-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, callbacks are small
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Landlord-ID"}
	}
	if cfg.Mpesa.Env == "" {
		cfg.Mpesa.Env = "sandbox"
	}
	if cfg.Mpesa.Timeout == 0 {
		cfg.Mpesa.Timeout = 30 * time.Second
	}
	if cfg.Mpesa.IdempotencyTTL == 0 {
		cfg.Mpesa.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Billing.CronSchedule == "" {
		cfg.Billing.CronSchedule = "0 6 1 * *" // 06:00 on the first of the month
	}
	if cfg.Billing.DueDays == 0 {
		cfg.Billing.DueDays = 5
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 15 * time.Minute
	}
	if cfg.Sweep.PendingCutoff == 0 {
		cfg.Sweep.PendingCutoff = 15 * time.Minute
	}
	if cfg.Sweep.AbandonAfter == 0 {
		cfg.Sweep.AbandonAfter = 24 * time.Hour
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 100
	}
	if cfg.Sweep.LockTTL == 0 {
		cfg.Sweep.LockTTL = 10 * time.Minute
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = "log"
	}
	if cfg.Notify.SenderID == "" {
		cfg.Notify.SenderID = "MAKAO"
	}
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Mpesa.Env != "sandbox" && c.Mpesa.Env != "production" {
		return fmt.Errorf("mpesa.env must be 'sandbox' or 'production', got %q", c.Mpesa.Env)
	}
	if c.Sweep.AbandonAfter < c.Sweep.PendingCutoff {
		return fmt.Errorf("sweep.abandon_after (%s) cannot be shorter than sweep.pending_cutoff (%s)",
			c.Sweep.AbandonAfter, c.Sweep.PendingCutoff)
	}
	if c.Notify.Provider != "log" && c.Notify.Provider != "http" {
		return fmt.Errorf("notify.provider must be 'log' or 'http', got %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "http" && c.Notify.SMSEndpoint == "" {
		return fmt.Errorf("notify.sms_endpoint is required when notify.provider is 'http'")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Mpesa.Env != "production" {
			return fmt.Errorf("mpesa.env must be 'production' when app.env is production")
		}
		if c.Mpesa.ConsumerKey == "" || c.Mpesa.ConsumerSecret == "" {
			return fmt.Errorf("mpesa.consumer_key and mpesa.consumer_secret are required in production")
		}
		if c.Mpesa.CallbackBaseURL == "" {
			return fmt.Errorf("mpesa.callback_base_url is required in production")
		}
		if !strings.HasPrefix(c.Mpesa.CallbackBaseURL, "https://") {
			return fmt.Errorf("mpesa.callback_base_url must use https in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
