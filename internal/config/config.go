package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"crossarb/internal/logging"
	"crossarb/internal/storage"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig          `mapstructure:"app"`
	Logging   logging.Config     `mapstructure:"logging"`
	Database  storage.PoolConfig `mapstructure:"database"`
	Strategy  StrategyConfig     `mapstructure:"strategy"`
	Exchanges []ExchangeConfig   `mapstructure:"exchanges"`
	Notifiers []NotifierConfig   `mapstructure:"notifiers"`
	Execution ExecutionConfig    `mapstructure:"execution"`
	Export    ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StrategyConfig governs spread evaluation and alert cadence.
type StrategyConfig struct {
	MinSpreadPct          float64       `mapstructure:"min_spread"`
	CheckInterval         time.Duration `mapstructure:"check_interval"`
	AlertInterval         time.Duration `mapstructure:"alert_interval"`
	PeriodicAlertInterval time.Duration `mapstructure:"periodic_alert_interval"`
	QuoteMaxAge           time.Duration `mapstructure:"quote_max_age"`
}

// ExchangeConfig 描述单个交易所接入参数。
type ExchangeConfig struct {
	Name         string        `mapstructure:"name"`
	Type         string        `mapstructure:"type"`
	Mode         string        `mapstructure:"mode"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	Passphrase   string        `mapstructure:"passphrase"`
	Symbols      []string      `mapstructure:"symbols"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TakerFeePct  float64       `mapstructure:"taker_fee_pct"`
	BaseURL      string        `mapstructure:"base_url"`
	WSURL        string        `mapstructure:"ws_url"`
	Timeout      time.Duration `mapstructure:"request_timeout"`
}

// NotifierConfig 描述单个告警通道。
type NotifierConfig struct {
	Type       string `mapstructure:"type"`
	WebhookURL string `mapstructure:"webhook_url"`
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	APIBase    string `mapstructure:"api_base"`
}

// ExecutionConfig enables and bounds the hedged execution path.
type ExecutionConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MaxOrderSize float64 `mapstructure:"max_order_size"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CROSSARB")
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

	cfg.applyDefaults()

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
	v.SetDefault("app.name", "crossarb")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("strategy.min_spread", 0.5)
	v.SetDefault("strategy.check_interval", "60s")
	v.SetDefault("strategy.alert_interval", "300s")
	v.SetDefault("strategy.periodic_alert_interval", "3600s")
	v.SetDefault("strategy.quote_max_age", "90s")

	v.SetDefault("execution.enabled", false)
	v.SetDefault("execution.max_order_size", 0.0)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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

// applyDefaults fills per-exchange values the global defaults cannot express.
func (c *Config) applyDefaults() {
	for i := range c.Exchanges {
		if c.Exchanges[i].Mode == "" {
			c.Exchanges[i].Mode = "public"
		}
		if c.Exchanges[i].PollInterval <= 0 {
			c.Exchanges[i].PollInterval = c.Strategy.CheckInterval
		}
		if c.Exchanges[i].Timeout <= 0 {
			c.Exchanges[i].Timeout = 10 * time.Second
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Strategy.CheckInterval <= 0 {
		return fmt.Errorf("strategy.check_interval must be greater than zero")
	}
	if c.Strategy.AlertInterval <= 0 {
		return fmt.Errorf("strategy.alert_interval must be greater than zero")
	}
	if c.Strategy.PeriodicAlertInterval <= 0 {
		return fmt.Errorf("strategy.periodic_alert_interval must be greater than zero")
	}
	if c.Strategy.MinSpreadPct < 0 {
		return fmt.Errorf("strategy.min_spread cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one exchange must be configured")
	}
	seen := make(map[string]struct{}, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("exchange name is required")
		}
		if _, dup := seen[ex.Name]; dup {
			return fmt.Errorf("duplicate exchange name %q", ex.Name)
		}
		seen[ex.Name] = struct{}{}
		if ex.Type == "" {
			return fmt.Errorf("exchange %s: type is required", ex.Name)
		}
		if ex.Mode != "public" && ex.Mode != "private" {
			return fmt.Errorf("exchange %s: invalid mode %q, must be public or private", ex.Name, ex.Mode)
		}
		if ex.Mode == "private" && (ex.APIKey == "" || ex.APISecret == "") {
			return fmt.Errorf("exchange %s: private mode 必须配置 api_key 与 api_secret", ex.Name)
		}
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("exchange %s: at least one symbol is required", ex.Name)
		}
	}

	for _, n := range c.Notifiers {
		switch n.Type {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return fmt.Errorf("telegram notifier: bot_token 与 chat_id 必须配置")
			}
		case "lark":
			if n.WebhookURL == "" {
				return fmt.Errorf("lark notifier: webhook_url 必须配置")
			}
		default:
			return fmt.Errorf("unknown notifier type %q", n.Type)
		}
	}

	if c.Execution.Enabled && c.Execution.MaxOrderSize <= 0 {
		return fmt.Errorf("execution.max_order_size must be greater than zero when execution is enabled")
	}

	return nil
}

// Symbols returns the union of all configured symbols, preserving first-seen
// order across exchanges.
func (c *Config) Symbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, ex := range c.Exchanges {
		for _, symbol := range ex.Symbols {
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
