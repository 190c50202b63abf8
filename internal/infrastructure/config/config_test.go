package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "makao-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "sandbox", cfg.Mpesa.Env)
	assert.Equal(t, 30*time.Second, cfg.Mpesa.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Mpesa.IdempotencyTTL)
	assert.Equal(t, 5, cfg.Billing.DueDays)
	assert.Equal(t, "0 6 1 * *", cfg.Billing.CronSchedule)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.PendingCutoff)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.AbandonAfter)
	assert.Equal(t, 10*time.Minute, cfg.Sweep.LockTTL)
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.validate())
}

func TestValidate_PoolSettings(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns + 1

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_idle_conns")
}

func TestValidate_MpesaEnv(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mpesa.Env = "staging"

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mpesa.env")
}

func TestValidate_SweepCutoffs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sweep.PendingCutoff = time.Hour
	cfg.Sweep.AbandonAfter = time.Minute

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abandon_after")
}

func TestValidate_Production(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.App.Env = "production"
		cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		cfg.Mpesa.Env = "production"
		cfg.Mpesa.ConsumerKey = "key"
		cfg.Mpesa.ConsumerSecret = "secret"
		cfg.Mpesa.CallbackBaseURL = "https://api.example.co.ke"
		return cfg
	}

	require.NoError(t, base().validate())

	t.Run("short jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.JWT.Secret = "short"
		assert.Error(t, cfg.validate())
	})

	t.Run("ssl disabled", func(t *testing.T) {
		cfg := base()
		cfg.Database.SSLMode = "disable"
		assert.Error(t, cfg.validate())
	})

	t.Run("wildcard cors", func(t *testing.T) {
		cfg := base()
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
		assert.Error(t, cfg.validate())
	})

	t.Run("sandbox provider", func(t *testing.T) {
		cfg := base()
		cfg.Mpesa.Env = "sandbox"
		assert.Error(t, cfg.validate())
	})

	t.Run("plain http callback", func(t *testing.T) {
		cfg := base()
		cfg.Mpesa.CallbackBaseURL = "http://api.example.co.ke"
		assert.Error(t, cfg.validate())
	})
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "makao",
		Password: "p@ss/word",
		DBName:   "makao",
		SSLMode:  "require",
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5432")
	assert.Contains(t, dsn, "sslmode=require")
	// Special characters in the password must be escaped
	assert.NotContains(t, dsn, "p@ss/word")
}

func TestApplyDefaults_Notify(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "log", cfg.Notify.Provider)
	assert.Equal(t, "MAKAO", cfg.Notify.SenderID)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
}

func TestValidate_Notify(t *testing.T) {
	cfg := defaultConfig()
	cfg.Notify.Provider = "smtp"
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.provider")

	cfg = defaultConfig()
	cfg.Notify.Provider = "http"
	err = cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.sms_endpoint")

	cfg.Notify.SMSEndpoint = "https://sms.example.co.ke/send"
	assert.NoError(t, cfg.validate())
}
