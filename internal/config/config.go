package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Generation GenerationConfig `mapstructure:"generation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Context    ContextConfig    `mapstructure:"context"`
	Lookups    LookupsConfig    `mapstructure:"lookups"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Persona    PersonaConfig    `mapstructure:"persona"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	CommandPrefix string        `mapstructure:"command_prefix" validate:"required"`
	Operators     []int64       `mapstructure:"operators"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout" validate:"gte=0"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
	Port    int    `mapstructure:"port"`
}

type GenerationConfig struct {
	Provider    string        `mapstructure:"provider" validate:"oneof=openai gemini"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey      string        `mapstructure:"api_key" validate:"required"`
	Model       string        `mapstructure:"model" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=1s"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0,lte=1"`
	ShortTokens int           `mapstructure:"short_tokens" validate:"gt=0"`
	LongTokens  int           `mapstructure:"long_tokens" validate:"gtefield=ShortTokens"`
}

type StorageConfig struct {
	Type    string        `mapstructure:"type" validate:"oneof=redis memory"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Records RecordsConfig `mapstructure:"records"`
	// TTL bounds how long idle histories and profiles are kept
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type RecordsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Chat    WindowConfig `mapstructure:"chat"`
	User    WindowConfig `mapstructure:"user"`
	// IdleWindows is how many windows a subject may stay silent before it is evicted
	IdleWindows   int           `mapstructure:"idle_windows" validate:"gte=2"`
	EvictInterval time.Duration `mapstructure:"evict_interval" validate:"gte=1s"`
	Notice        bool          `mapstructure:"notice"`
}

type WindowConfig struct {
	Max    int           `mapstructure:"max" validate:"gt=0"`
	Window time.Duration `mapstructure:"window" validate:"gte=1s"`
}

type ContextConfig struct {
	HistoryCapacity int    `mapstructure:"history_capacity" validate:"gt=0"`
	PromptTurns     int    `mapstructure:"prompt_turns" validate:"gte=0,ltefield=HistoryCapacity"`
	Timezone        string `mapstructure:"timezone" validate:"required"`
}

type LookupsConfig struct {
	Timeout   time.Duration   `mapstructure:"timeout" validate:"gte=1s"`
	Wikipedia WikipediaConfig `mapstructure:"wikipedia"`
	Web       WebConfig       `mapstructure:"web"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

type WikipediaConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url" validate:"required_if=Enabled true"`
	Sentences int    `mapstructure:"sentences" validate:"gte=1,lte=10"`
	UserAgent string `mapstructure:"user_agent"`
}

type WebConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedDomains []string `mapstructure:"allowed_domains"`
	AllowedTLDs    []string `mapstructure:"allowed_tlds"`
	MinChars       int      `mapstructure:"min_chars" validate:"gte=0"`
	MaxChars       int      `mapstructure:"max_chars" validate:"gtfield=MinChars"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes" validate:"gt=0"`
	UserAgent      string   `mapstructure:"user_agent"`
}

type DirectoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type AdminConfig struct {
	RefreshInterval time.Duration        `mapstructure:"refresh_interval" validate:"gte=1s"`
	SnapshotSize    int                  `mapstructure:"snapshot_size" validate:"gt=0"`
	Known           []models.AdminRecord `mapstructure:"known"`
}

type PersonaConfig struct {
	Default string `mapstructure:"default" validate:"oneof=siege harley sobert"`
	Mode    string `mapstructure:"mode" validate:"oneof=per_chat global"`
	// Seed fixes the presentation randomness; 0 seeds from the clock
	Seed int64 `mapstructure:"seed"`
}

type PipelineConfig struct {
	QueueSize  int           `mapstructure:"queue_size" validate:"gt=0"`
	WorkerIdle time.Duration `mapstructure:"worker_idle" validate:"gte=1s"`
	MaxReply   int           `mapstructure:"max_reply" validate:"gt=100,lte=4096"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string     `mapstructure:"format" validate:"oneof=json text"`
	Output string     `mapstructure:"output" validate:"oneof=stdout file"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required_if=Enabled true,lt=65536"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language" validate:"required"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Well-known environment names take precedence over the file
	_ = v.BindEnv("bot.token", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("generation.api_key", "GENERATION_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("generation.base_url", "GENERATION_BASE_URL")
	_ = v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.redis.db", "REDIS_DB")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := v.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		cfg.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules tags can't express
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Storage.Type == "redis" && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for redis storage")
	}
	if _, err := time.LoadLocation(cfg.Context.Timezone); err != nil {
		return fmt.Errorf("invalid context.timezone %q: %w", cfg.Context.Timezone, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.command_prefix", "/")
	v.SetDefault("bot.update_timeout", 60)

	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.timeout", 20*time.Second)
	v.SetDefault("generation.max_retries", 1)
	v.SetDefault("generation.short_tokens", 80)
	v.SetDefault("generation.long_tokens", 150)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.ttl", 7*24*time.Hour)
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)
	v.SetDefault("storage.records.path", "data/interactions.db")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.chat.max", 3)
	v.SetDefault("rate_limit.chat.window", time.Minute)
	v.SetDefault("rate_limit.user.max", 10)
	v.SetDefault("rate_limit.user.window", time.Minute)
	v.SetDefault("rate_limit.idle_windows", 5)
	v.SetDefault("rate_limit.evict_interval", 5*time.Minute)
	v.SetDefault("rate_limit.notice", true)

	v.SetDefault("context.history_capacity", 10)
	v.SetDefault("context.prompt_turns", 5)
	v.SetDefault("context.timezone", "America/New_York")

	v.SetDefault("lookups.timeout", 8*time.Second)
	v.SetDefault("lookups.wikipedia.enabled", true)
	v.SetDefault("lookups.wikipedia.base_url", "https://en.wikipedia.org")
	v.SetDefault("lookups.wikipedia.sentences", 3)
	v.SetDefault("lookups.wikipedia.user_agent", "siegebot/1.0")
	v.SetDefault("lookups.web.enabled", true)
	v.SetDefault("lookups.web.min_chars", 100)
	v.SetDefault("lookups.web.max_chars", 2000)
	v.SetDefault("lookups.web.max_body_bytes", 2<<20)
	v.SetDefault("lookups.web.user_agent", "Mozilla/5.0 (compatible; siegebot/1.0)")
	v.SetDefault("lookups.directory.path", "configs/directory")

	v.SetDefault("admin.refresh_interval", 10*time.Minute)
	v.SetDefault("admin.snapshot_size", 1024)

	v.SetDefault("persona.default", "siege")
	v.SetDefault("persona.mode", "per_chat")

	v.SetDefault("pipeline.queue_size", 16)
	v.SetDefault("pipeline.worker_idle", 2*time.Minute)
	v.SetDefault("pipeline.max_reply", 4096)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
	v.SetDefault("i18n.directory", "configs/i18n")
}
