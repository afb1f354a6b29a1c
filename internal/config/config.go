package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Events     EventsConfig     `mapstructure:"events"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Cron       CronConfig       `mapstructure:"cron"`
	PaaS       PaaSConfig       `mapstructure:"paas"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type EventsConfig struct {
	Log            bool          `mapstructure:"log"`
	WebhookURLs    []string      `mapstructure:"webhook_urls"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`

	// PaaS forwards domain events to the platform audit log.
	PaaS      bool `mapstructure:"paas"`
	HubBuffer int  `mapstructure:"hub_buffer"`
}

type AuthConfig struct {
	// JWTSecret empty disables provider token checks.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	AdminKey  string        `mapstructure:"admin_key"`

	// SettingsKey seals credential-like system settings at rest. The
	// previous key only opens values written before a rotation.
	SettingsKey     string `mapstructure:"settings_key"`
	SettingsPrevKey string `mapstructure:"settings_prev_key"`
}

// PaaSConfig points at the easyweb3 platform. An empty BaseURL disables it.
type PaaSConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Agent          string `mapstructure:"agent"`
	AuditWrites    bool   `mapstructure:"audit_writes"`
	RequireGateway bool   `mapstructure:"require_gateway"`
}

type TierLimitsConfig struct {
	Alpha string `mapstructure:"alpha"`
	Beta  string `mapstructure:"beta"`
	Delta string `mapstructure:"delta"`
	Omega string `mapstructure:"omega"`
}

type SettlementConfig struct {
	TierLimits         TierLimitsConfig `mapstructure:"tier_limits"`
	DefaultFeeBps      uint32           `mapstructure:"default_fee_bps"`
	ColdStartScore     float64          `mapstructure:"cold_start_score"`
	OrderTTL           time.Duration    `mapstructure:"order_ttl"`
	ExecutionGrace     time.Duration    `mapstructure:"execution_grace"`
	ProofMaxAge        time.Duration    `mapstructure:"proof_max_age"`
	MaxStorageAttempts int              `mapstructure:"max_storage_attempts"`
	RetryBaseBackoff   time.Duration    `mapstructure:"retry_base_backoff"`
	RetryMaxBackoff    time.Duration    `mapstructure:"retry_max_backoff"`
	SweepBatchSize     int              `mapstructure:"sweep_batch_size"`
}

type DispatcherConfig struct {
	Workers       int     `mapstructure:"workers"`
	QueueSize     int     `mapstructure:"queue_size"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	RetryBatch    int     `mapstructure:"retry_batch"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Sweep     string `mapstructure:"sweep"`
	RetryPass string `mapstructure:"retry_pass"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.name", "paynode-aggregator")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit_rps", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "paynode.events")

	v.SetDefault("events.log", true)
	v.SetDefault("events.webhook_timeout", "5s")
	v.SetDefault("events.paas", false)
	v.SetDefault("events.hub_buffer", 64)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.settings_key", "")
	v.SetDefault("auth.settings_prev_key", "")

	// Tier boundaries are inclusive upper bounds in token units.
	v.SetDefault("settlement.tier_limits.alpha", "3000")
	v.SetDefault("settlement.tier_limits.beta", "10000")
	v.SetDefault("settlement.tier_limits.delta", "50000")
	v.SetDefault("settlement.tier_limits.omega", "100000")
	v.SetDefault("settlement.default_fee_bps", 50)
	v.SetDefault("settlement.cold_start_score", 0.5)
	v.SetDefault("settlement.order_ttl", "1h")
	v.SetDefault("settlement.execution_grace", "30m")
	v.SetDefault("settlement.proof_max_age", "1h")
	v.SetDefault("settlement.max_storage_attempts", 5)
	v.SetDefault("settlement.retry_base_backoff", "200ms")
	v.SetDefault("settlement.retry_max_backoff", "5s")
	v.SetDefault("settlement.sweep_batch_size", 500)

	v.SetDefault("dispatcher.workers", 8)
	v.SetDefault("dispatcher.queue_size", 1024)
	v.SetDefault("dispatcher.rate_per_second", 20)
	v.SetDefault("dispatcher.burst", 40)
	v.SetDefault("dispatcher.retry_batch", 200)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.sweep", "@every 5s")
	v.SetDefault("cron.retry_pass", "@every 30s")

	v.SetDefault("paas.base_url", "")
	v.SetDefault("paas.agent", "paynode-aggregator")
	v.SetDefault("paas.audit_writes", true)
	v.SetDefault("paas.require_gateway", false)
}
