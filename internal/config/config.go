package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cryptalert/internal/logging"
	"cryptalert/internal/market"
)

var (
	// ErrMissingAPIAddress is returned when no data-source address is configured.
	ErrMissingAPIAddress = errors.New("source.api_address is required")
	// ErrNoCurrencies is returned when the watch-list is empty.
	ErrNoCurrencies = errors.New("source.currencies must name at least one currency")
)

// SupportedCurrencies lists the currencies the data source quotes against EUR.
var SupportedCurrencies = []string{"btc", "eth", "ltc", "xrp", "xlm", "aave", "link", "usdc", "uni"}

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Bot      BotConfig      `mapstructure:"bot"`
	TUI      TUIConfig      `mapstructure:"tui"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes the polled market-data endpoint.
type SourceConfig struct {
	APIAddress     string        `mapstructure:"api_address"`
	Currencies     []string      `mapstructure:"currencies"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines thresholds, cadence and delivery of alerts and digests.
type AlertingConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	ShortThresholdPct float64           `mapstructure:"short_threshold_pct"`
	LongThresholdPct  float64           `mapstructure:"long_threshold_pct"`
	SampleInterval    time.Duration     `mapstructure:"sample_interval"`
	SampleOnPublish   bool              `mapstructure:"sample_on_publish"`
	SampleField       string            `mapstructure:"sample_field"`
	MaxSampleGap      time.Duration     `mapstructure:"max_sample_gap"`
	DigestEnabled     bool              `mapstructure:"digest_enabled"`
	DigestInterval    time.Duration     `mapstructure:"digest_interval"`
	ActiveHours       ActiveHoursConfig `mapstructure:"active_hours"`
	QuietInterval     time.Duration     `mapstructure:"quiet_interval"`
	Timezone          string            `mapstructure:"timezone"`
	AlignToBucket     bool              `mapstructure:"align_to_bucket"`
	StartupDelay      time.Duration     `mapstructure:"startup_delay"`
	AdvisoryLockKey   int64             `mapstructure:"advisory_lock_key"`
	QueueSize         int               `mapstructure:"queue_size"`
	Telegram          TelegramConfig    `mapstructure:"telegram"`
}

// ActiveHoursConfig is the local-time window [Start, End) in which alerting runs.
type ActiveHoursConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// TelegramConfig describes push delivery of alerts.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BotConfig describes the interactive chat bot.
type BotConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	InfoChatID  int64  `mapstructure:"info_chat_id"`
	PollTimeout int    `mapstructure:"poll_timeout"`
}

// TUIConfig controls the terminal display.
type TUIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	LogFile         string        `mapstructure:"log_file"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Retention       time.Duration `mapstructure:"retention"`
}

// RedisConfig describes the optional snapshot mirror.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	Channel  string        `mapstructure:"channel"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from an optional .env file, config file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRYPTALERT")
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

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cryptalert")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("source.api_address", "")
	v.SetDefault("source.currencies", SupportedCurrencies)
	v.SetDefault("source.ping_interval", "5s")
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.user_agent", "cryptalert")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.short_threshold_pct", 2.0)
	v.SetDefault("alerting.long_threshold_pct", 3.0)
	v.SetDefault("alerting.sample_interval", "15s")
	v.SetDefault("alerting.sample_on_publish", false)
	v.SetDefault("alerting.sample_field", string(market.FieldChangePercent))
	v.SetDefault("alerting.max_sample_gap", "0s")
	v.SetDefault("alerting.digest_enabled", true)
	v.SetDefault("alerting.digest_interval", "10m")
	v.SetDefault("alerting.active_hours.start", 7)
	v.SetDefault("alerting.active_hours.end", 23)
	v.SetDefault("alerting.quiet_interval", "1h")
	v.SetDefault("alerting.timezone", "Local")
	v.SetDefault("alerting.align_to_bucket", false)
	v.SetDefault("alerting.startup_delay", "0s")
	v.SetDefault("alerting.advisory_lock_key", int64(0x63727970))
	v.SetDefault("alerting.queue_size", 32)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("bot.enabled", false)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.info_chat_id", 0)
	v.SetDefault("bot.poll_timeout", 60)

	v.SetDefault("tui.enabled", false)
	v.SetDefault("tui.refresh_interval", "1s")
	v.SetDefault("tui.log_file", "cryptalert.log")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "720h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "cryptalert:snapshot")
	v.SetDefault("redis.channel", "cryptalert:snapshots")
	v.SetDefault("redis.ttl", "5m")

	v.SetDefault("export.max_data_points", 100000)
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

func (c *Config) normalise() {
	currencies := make([]string, 0, len(c.Source.Currencies))
	for _, cur := range c.Source.Currencies {
		cur = strings.ToLower(strings.TrimSpace(cur))
		if cur == "" || slices.Contains(currencies, cur) {
			continue
		}
		currencies = append(currencies, cur)
	}
	c.Source.Currencies = currencies
	c.Source.APIAddress = strings.TrimSpace(c.Source.APIAddress)
	c.Alerting.SampleField = strings.ToLower(strings.TrimSpace(c.Alerting.SampleField))

	if c.Alerting.MaxSampleGap <= 0 {
		c.Alerting.MaxSampleGap = 4 * c.SampleCadence()
	}
}

// SampleCadence is the expected spacing of history samples. Publish-driven sampling
// follows the fetch loop, so it cannot be faster than the ping interval.
func (c *Config) SampleCadence() time.Duration {
	if c.Alerting.SampleOnPublish && c.Source.PingInterval > c.Alerting.SampleInterval {
		return c.Source.PingInterval
	}
	return c.Alerting.SampleInterval
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Source.APIAddress == "" {
		return ErrMissingAPIAddress
	}
	if len(c.Source.Currencies) == 0 {
		return ErrNoCurrencies
	}
	for _, cur := range c.Source.Currencies {
		if !slices.Contains(SupportedCurrencies, cur) {
			return fmt.Errorf("source.currencies: unsupported currency %q (supported: %s)", cur, strings.Join(SupportedCurrencies, ", "))
		}
	}
	if c.Source.PingInterval <= 0 {
		return fmt.Errorf("source.ping_interval must be greater than zero")
	}

	if c.Alerting.ShortThresholdPct <= 0 {
		return fmt.Errorf("alerting.short_threshold_pct must be greater than zero")
	}
	if c.Alerting.LongThresholdPct <= 0 {
		return fmt.Errorf("alerting.long_threshold_pct must be greater than zero")
	}
	if c.Alerting.SampleInterval <= 0 {
		return fmt.Errorf("alerting.sample_interval must be greater than zero")
	}
	if cadence := c.SampleCadence(); c.Alerting.MaxSampleGap > 0 && c.Alerting.MaxSampleGap <= cadence {
		return fmt.Errorf("alerting.max_sample_gap (%s) must exceed the sample cadence (%s)", c.Alerting.MaxSampleGap, cadence)
	}
	if c.Alerting.DigestInterval <= 0 {
		return fmt.Errorf("alerting.digest_interval must be greater than zero")
	}
	if c.Alerting.QuietInterval <= 0 {
		return fmt.Errorf("alerting.quiet_interval must be greater than zero")
	}
	if _, err := market.ParseField(c.Alerting.SampleField); err != nil {
		return fmt.Errorf("alerting.sample_field: %w", err)
	}
	hours := c.Alerting.ActiveHours
	if hours.Start < 0 || hours.End > 24 || hours.Start >= hours.End {
		return fmt.Errorf("alerting.active_hours must satisfy 0 <= start < end <= 24")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Alerting.QueueSize <= 0 {
		return fmt.Errorf("alerting.queue_size must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram alerts are enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram alerts are enabled")
		}
	}

	if c.TUI.Enabled && c.TUI.RefreshInterval <= 0 {
		return fmt.Errorf("tui.refresh_interval must be greater than zero")
	}
	if c.Redis.Addr != "" && c.Redis.Key == "" {
		return fmt.Errorf("redis.key is required when redis.addr is set")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// Location resolves the timezone used for the active-hours window.
func (c *Config) Location() (*time.Location, error) {
	name := c.Alerting.Timezone
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("alerting.timezone: %w", err)
	}
	return loc, nil
}

// SampleField returns the validated ring sample field.
func (c *Config) SampleField() market.Field {
	f, err := market.ParseField(c.Alerting.SampleField)
	if err != nil {
		return market.FieldChangePercent
	}
	return f
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
