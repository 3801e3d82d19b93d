package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sensorwatch/internal/logging"
	"sensorwatch/internal/sensor"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig describes the recent-reading window store.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	Retention     time.Duration `mapstructure:"retention"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LedgerConfig bounds the in-process average history.
type LedgerConfig struct {
	MaxEntriesPerSensor int `mapstructure:"max_entries_per_sensor"`
}

// AlertingConfig defines alert gating and routing.
type AlertingConfig struct {
	Armed          bool           `mapstructure:"armed"`
	Channels       []string       `mapstructure:"channels"`
	AuditRetention time.Duration  `mapstructure:"audit_retention"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	SMS            SMSConfig      `mapstructure:"sms"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// SMSConfig holds Twilio credentials and numbers.
type SMSConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
	APIBase    string   `mapstructure:"api_base"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MaintenanceConfig governs the periodic housekeeping job.
type MaintenanceConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ThresholdsConfig carries one profile per sensor type.
type ThresholdsConfig struct {
	Temperature sensor.ThresholdProfile `mapstructure:"temperature"`
	Humidity    sensor.ThresholdProfile `mapstructure:"humidity"`
	AirQuality  sensor.ThresholdProfile `mapstructure:"air_quality"`
}

// Profiles returns the thresholds keyed by sensor type.
func (t ThresholdsConfig) Profiles() map[sensor.Type]sensor.ThresholdProfile {
	return map[sensor.Type]sensor.ThresholdProfile{
		sensor.Temperature: t.Temperature,
		sensor.Humidity:    t.Humidity,
		sensor.AirQuality:  t.AirQuality,
	}
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int           `mapstructure:"max_data_points"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENSORWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sensorwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", int64(1<<20))

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.timeout", "5s")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "sensorwatch:")
	v.SetDefault("cache.retention", "360s")
	v.SetDefault("cache.timeout", "2s")

	v.SetDefault("ledger.max_entries_per_sensor", 32)

	v.SetDefault("alerting.armed", false)
	v.SetDefault("alerting.channels", []string{"sms"})
	v.SetDefault("alerting.audit_retention", "720h")
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.sms.enabled", false)
	v.SetDefault("alerting.sms.api_base", "https://api.twilio.com")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("maintenance.interval", "1h")
	v.SetDefault("maintenance.align_to_bucket", true)
	v.SetDefault("maintenance.advisory_lock_key", int64(0x73656e73))
	v.SetDefault("maintenance.startup_delay", "0s")

	for t, p := range sensor.DefaultProfiles() {
		prefix := "thresholds." + t.String() + "."
		v.SetDefault(prefix+"average", p.Average)
		v.SetDefault(prefix+"single_reading", p.SingleReading)
		v.SetDefault(prefix+"single_increase_change", p.SingleIncreaseChange)
		v.SetDefault(prefix+"average_increase_change", p.AverageIncreaseChange)
		v.SetDefault(prefix+"precision", p.Precision)
	}

	v.SetDefault("export.max_data_points", 5000)
	v.SetDefault("export.default_window", "24h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Cache.Retention <= 0 {
		return fmt.Errorf("cache.retention must be greater than zero")
	}
	if c.Cache.Timeout < 0 {
		return fmt.Errorf("cache.timeout cannot be negative")
	}
	if c.Ledger.MaxEntriesPerSensor <= 0 {
		return fmt.Errorf("ledger.max_entries_per_sensor must be greater than zero")
	}
	if c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be greater than zero")
	}
	for _, ch := range c.Alerting.Channels {
		switch ch {
		case "sms", "telegram":
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Alerting.SMS.Enabled {
		if c.Alerting.SMS.AccountSID == "" || c.Alerting.SMS.AuthToken == "" {
			return fmt.Errorf("alerting.sms.account_sid and alerting.sms.auth_token are required")
		}
		if c.Alerting.SMS.From == "" || len(c.Alerting.SMS.To) == 0 {
			return fmt.Errorf("alerting.sms.from and alerting.sms.to are required")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if _, err := sensor.NewCatalog(c.Thresholds.Profiles()); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
