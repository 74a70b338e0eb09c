package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"apy-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Llama     LlamaConfig     `mapstructure:"llama"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Files     FilesConfig     `mapstructure:"files"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// LlamaConfig captures DefiLlama yields API connectivity.
type LlamaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WatchConfig defines which pools are monitored.
type WatchConfig struct {
	PoolIDs     []string `mapstructure:"pool_ids"`
	Projects    []string `mapstructure:"projects"`
	Chains      []string `mapstructure:"chains"`
	Symbols     []string `mapstructure:"symbols"`
	SymbolMatch string   `mapstructure:"symbol_match"`
}

// EthereumConfig covers the on-chain cross-check.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	PoolAddress    string        `mapstructure:"pool_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines the APY threshold and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdAPY float64        `mapstructure:"threshold_apy"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FilesConfig locates the flat-file log and snapshot outputs.
type FilesConfig struct {
	LogsDir    string `mapstructure:"logs_dir"`
	ExportsDir string `mapstructure:"exports_dir"`
	Slug       string `mapstructure:"slug"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APYWATCHER")
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
	v.SetDefault("app.name", "apywatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x61707977))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("llama.base_url", "https://yields.llama.fi")
	v.SetDefault("llama.request_timeout", "15s")
	v.SetDefault("llama.user_agent", "apywatcher/1.0")

	v.SetDefault("watch.pool_ids", defaultPoolIDs)
	v.SetDefault("watch.projects", []string{"aave-v2", "aave-v3"})
	v.SetDefault("watch.symbols", []string{})
	v.SetDefault("watch.symbol_match", "exact")

	v.SetDefault("ethereum.pool_address", "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.threshold_apy", 5.0)
	v.SetDefault("alerting.channels", []string{"console"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("files.logs_dir", "data/logs")
	v.SetDefault("files.exports_dir", "data/exports")
	v.SetDefault("files.slug", "aave-all")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

// defaultPoolIDs are the Aave stablecoin and BTC reserves monitored out of the box.
var defaultPoolIDs = []string{
	"aave-v3-arbitrum-usdc",
	"aave-v3-polygon-usdc",
	"aave-v3-ethereum-usdc",
	"aave-v3-optimism-usdc",
	"aave-v3-avalanche-usdc",
	"aave-v3-base-usdc",
	"aave-v3-ethereum-wbtc",
	"aave-v3-ethereum-cbbtc",
	"aave-v3-arbitrum-wbtc",
	"aave-v2-polygon-dai",
	"aave-v2-ethereum-dai",
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.ThresholdAPY < 0 {
		return fmt.Errorf("alerting.threshold_apy cannot be negative")
	}
	if len(c.Watch.PoolIDs) == 0 && len(c.Watch.Symbols) == 0 {
		return fmt.Errorf("watch.pool_ids 与 watch.symbols 至少配置一项")
	}
	switch c.Watch.SymbolMatch {
	case "", "exact", "substring":
	default:
		return fmt.Errorf("watch.symbol_match must be exact or substring")
	}
	if c.Files.LogsDir == "" || c.Files.ExportsDir == "" {
		return fmt.Errorf("files.logs_dir and files.exports_dir must be set")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
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
