// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // job result retention
	// UpdatesChannel carries job deltas from workers to API processes.
	UpdatesChannel string `yaml:"updates_channel"`
}

type QueueConfig struct {
	Concurrency int      `yaml:"concurrency"`
	Lanes       []string `yaml:"lanes"` // empty = all lanes
	// Retention keeps finished tasks inspectable in the queue.
	Retention time.Duration `yaml:"retention"`
}

type AIConfig struct {
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	DefaultModel     string        `yaml:"default_model"`
	GeminiModel      string        `yaml:"gemini_model"`
	PrimaryProvider  string        `yaml:"primary_provider"`
	FallbackProvider string        `yaml:"fallback_provider"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float64       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
}

type LatexConfig struct {
	Mode        string        `yaml:"mode"` // docker | local
	DockerImage string        `yaml:"docker_image"`
	Binary      string        `yaml:"binary"`
	WorkRoot    string        `yaml:"work_root"`
	Timeout     time.Duration `yaml:"timeout"`
}

type TrialConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Limit    int           `yaml:"limit"`
	Cooldown time.Duration `yaml:"cooldown"`
	Daily    int           `yaml:"daily"`
}

type JobsConfig struct {
	MaxSourceBytes int           `yaml:"max_source_bytes"`
	ScoreTimeout   time.Duration `yaml:"score_timeout"`
	NotifyTimeout  time.Duration `yaml:"notify_timeout"`
	Trial          TrialConfig   `yaml:"trial"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ExpiredJobsCron string        `yaml:"expired_jobs_cron"`
	TempFilesCron   string        `yaml:"temp_files_cron"`
	HealthCheckCron string        `yaml:"health_check_cron"`
	MaxAge          time.Duration `yaml:"max_age"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	JWTSecret     string `yaml:"jwt_secret"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	AI        AIConfig        `yaml:"ai"`
	Latex     LatexConfig     `yaml:"latex"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Notify    NotifyConfig    `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when empty or missing),
// loads a .env file if present and applies environment overrides.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Redis.UpdatesChannel == "" {
		cfg.Redis.UpdatesChannel = "job_updates"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 8
	}
	if cfg.Queue.Retention <= 0 {
		cfg.Queue.Retention = time.Hour
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.AI.PrimaryProvider == "" {
		cfg.AI.PrimaryProvider = "openai"
	}
	if cfg.AI.FallbackProvider == "" {
		cfg.AI.FallbackProvider = "gemini"
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 4000
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.3
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120 * time.Second
	}
	if cfg.Latex.Mode == "" {
		cfg.Latex.Mode = "docker"
	}
	if cfg.Latex.DockerImage == "" {
		cfg.Latex.DockerImage = "texlive/texlive:latest"
	}
	if cfg.Latex.Binary == "" {
		cfg.Latex.Binary = "pdflatex"
	}
	if cfg.Latex.WorkRoot == "" {
		cfg.Latex.WorkRoot = "/tmp/latex_compile"
	}
	if cfg.Latex.Timeout <= 0 {
		cfg.Latex.Timeout = 30 * time.Second
	}
	if cfg.Jobs.MaxSourceBytes <= 0 {
		cfg.Jobs.MaxSourceBytes = 1 << 20
	}
	if cfg.Jobs.ScoreTimeout <= 0 {
		cfg.Jobs.ScoreTimeout = 30 * time.Second
	}
	if cfg.Jobs.NotifyTimeout <= 0 {
		cfg.Jobs.NotifyTimeout = 15 * time.Second
	}
	if cfg.Jobs.Trial.Limit <= 0 {
		cfg.Jobs.Trial.Limit = 3
	}
	if cfg.Jobs.Trial.Cooldown <= 0 {
		cfg.Jobs.Trial.Cooldown = 5 * time.Minute
	}
	if cfg.Jobs.Trial.Daily <= 0 {
		cfg.Jobs.Trial.Daily = 10
	}
	if cfg.Scheduler.ExpiredJobsCron == "" {
		cfg.Scheduler.ExpiredJobsCron = "@hourly"
	}
	if cfg.Scheduler.TempFilesCron == "" {
		cfg.Scheduler.TempFilesCron = "@every 30m"
	}
	if cfg.Scheduler.HealthCheckCron == "" {
		cfg.Scheduler.HealthCheckCron = "@every 5m"
	}
	if cfg.Scheduler.MaxAge <= 0 {
		cfg.Scheduler.MaxAge = 24 * time.Hour
	}
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.HTTP.Addr, "LATEXY_HTTP_ADDR")
	setStr(&cfg.Log.Level, "LATEXY_LOG_LEVEL")
	setStr(&cfg.Log.Format, "LATEXY_LOG_FORMAT")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	setStr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	setStr(&cfg.Latex.Mode, "LATEXY_LATEX_MODE")
	setStr(&cfg.Latex.WorkRoot, "LATEXY_WORK_ROOT")
	setStr(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	setStr(&cfg.Security.JWTSecret, "JWT_SECRET")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Notify.TelegramChatID = id
		}
	}
	if v := os.Getenv("LATEXY_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

// Validate performs minimal checks; optional integrations stay disabled when unset.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	switch c.Latex.Mode {
	case "docker", "local":
	default:
		return fmt.Errorf("latex.mode must be docker or local, got %q", c.Latex.Mode)
	}
	if k := len(c.Security.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", k)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
