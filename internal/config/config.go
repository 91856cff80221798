package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-news-alerts/internal/logging"
	"market-news-alerts/internal/model"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and configures the audit/preference backend.
// Empty driver disables persistence.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EngineConfig governs history retention and the reporting ring.
type EngineConfig struct {
	Retention       time.Duration `mapstructure:"retention"`
	DecisionLogSize int           `mapstructure:"decision_log_size"`
}

// SchedulerConfig carries the sweep cadence and the scheduled alert rules.
type SchedulerConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Rules         []RuleConfig  `mapstructure:"rules"`
}

// RuleConfig is a ScheduledAlertRule as written in configuration.
type RuleConfig struct {
	ID               string         `mapstructure:"id"`
	UserID           string         `mapstructure:"user_id"`
	Cron             string         `mapstructure:"cron"`
	Timezone         string         `mapstructure:"timezone"`
	Commodities      []string       `mapstructure:"commodities"`
	Impact           string         `mapstructure:"impact"`
	PriorityOverride bool           `mapstructure:"priority_override"`
	Template         TemplateConfig `mapstructure:"template"`
	Active           bool           `mapstructure:"active"`
}

// TemplateConfig carries notification render sources.
type TemplateConfig struct {
	Title string `mapstructure:"title"`
	Body  string `mapstructure:"body"`
}

// ToRule converts the config shape into the domain rule.
func (r RuleConfig) ToRule() (model.ScheduledAlertRule, error) {
	impact := model.ImpactLow
	if r.Impact != "" {
		parsed, err := model.ParseImpact(r.Impact)
		if err != nil {
			return model.ScheduledAlertRule{}, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		impact = parsed
	}
	return model.ScheduledAlertRule{
		ID:               r.ID,
		UserID:           r.UserID,
		CronSpec:         r.Cron,
		Timezone:         r.Timezone,
		Commodities:      r.Commodities,
		Impact:           impact,
		PriorityOverride: r.PriorityOverride,
		Template: model.NotificationTemplate{
			Title: r.Template.Title,
			Body:  r.Template.Body,
		},
		Active: r.Active,
	}, nil
}

// DispatchConfig defines delivery retry behaviour and channels.
type DispatchConfig struct {
	MaxAttempts int            `mapstructure:"max_attempts"`
	Backoff     time.Duration  `mapstructure:"backoff"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送通道参数。
type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BotToken      string `mapstructure:"bot_token"`
	DefaultChatID string `mapstructure:"default_chat_id"`
	APIBase       string `mapstructure:"api_base"`
}

// IngestConfig wires optional event sources.
type IngestConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig configures the classified-event topic consumer.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// ResolveMaxPoints returns the effective export point cap, preferring an
// explicit CLI override over the configured default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTD")
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
	v.SetDefault("app.name", "alertd")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.retention", "168h")
	v.SetDefault("engine.decision_log_size", 1000)

	v.SetDefault("scheduler.sweep_interval", "1m")

	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.backoff", "2s")
	v.SetDefault("dispatch.timeout", "10s")
	v.SetDefault("dispatch.telegram.enabled", false)
	v.SetDefault("dispatch.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("ingest.kafka.enabled", false)
	v.SetDefault("ingest.kafka.group_id", "alertd")

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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Engine.Retention < 7*24*time.Hour {
		return fmt.Errorf("engine.retention must cover the weekly spacing window (168h)")
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be greater than zero")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.max_attempts must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Dispatch.Telegram.Enabled && c.Dispatch.Telegram.BotToken == "" {
		return fmt.Errorf("dispatch.telegram.bot_token 必须配置")
	}
	if c.Ingest.Kafka.Enabled {
		if len(c.Ingest.Kafka.Brokers) == 0 {
			return fmt.Errorf("ingest.kafka.brokers must be configured when kafka ingest is enabled")
		}
		if c.Ingest.Kafka.Topic == "" {
			return fmt.Errorf("ingest.kafka.topic must be configured when kafka ingest is enabled")
		}
	}
	if c.Database.Driver != "" && c.Database.DSN == "" && !strings.EqualFold(c.Database.Driver, "sqlite") {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	return nil
}
