package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LedgerConfig struct {
	TxTimeout        time.Duration `yaml:"tx_timeout"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	// EnforceStock is a pointer so an explicit false in the file survives
	// ApplyDefaults.
	EnforceStock *bool `yaml:"enforce_stock"`
}

func (l LedgerConfig) StockEnforced() bool {
	return l.EnforceStock == nil || *l.EnforceStock
}

type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	AlertFeedSize int    `yaml:"alert_feed_size"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Load builds a configuration from environment variables and defaults only.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv overrides cfg with every environment variable that is set.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		if !v.IsSet(key) {
			return nil
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}

	setInt("SERVER_PORT", &cfg.Server.Port)
	if err := setDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	setString("DB_HOST", &cfg.Database.Host)
	setInt("DB_PORT", &cfg.Database.Port)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.Name)
	setInt("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	setInt("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	if err := setDuration("DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return err
	}
	setBool("DB_MIGRATE", &cfg.Database.Migrate)

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)

	if err := setDuration("LEDGER_TX_TIMEOUT", &cfg.Ledger.TxTimeout); err != nil {
		return err
	}
	setInt("LEDGER_MAX_RETRY_ATTEMPTS", &cfg.Ledger.MaxRetryAttempts)
	if v.IsSet("LEDGER_ENFORCE_STOCK") {
		enforce := v.GetBool("LEDGER_ENFORCE_STOCK")
		cfg.Ledger.EnforceStock = &enforce
	}

	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)
	setInt("REDIS_ALERT_FEED_SIZE", &cfg.Redis.AlertFeedSize)

	setString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)

	return nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "sup"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "sup"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Ledger.TxTimeout == 0 {
		cfg.Ledger.TxTimeout = 5 * time.Second
	}
	if cfg.Ledger.MaxRetryAttempts == 0 {
		cfg.Ledger.MaxRetryAttempts = 3
	}
	if cfg.Ledger.EnforceStock == nil {
		enforce := true
		cfg.Ledger.EnforceStock = &enforce
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.AlertFeedSize == 0 {
		cfg.Redis.AlertFeedSize = 100
	}
}
