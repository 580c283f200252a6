package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Worker   WorkerConfig
	R2       R2Config
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string // json or console
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	ProjectTTLHours int // 0 keeps projects forever
	KeyPrefix       string
}

type LLMConfig struct {
	Provider       string // groq or openrouter
	TimeoutSeconds int
	Groq           GroqConfig
	OpenRouter     OpenRouterConfig
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
}

type WorkerConfig struct {
	ServiceURL string
	Timeout    int // seconds
	Enabled    bool
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type PipelineConfig struct {
	LedgerTTLMinutes     int
	SweepIntervalSeconds int
	QueueConcurrency     int
	RunTimeoutMinutes    int
}

// IsProduction reports whether the server runs in production mode
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

var envBindings = map[string]string{
	"server.port":                     "SERVER_PORT",
	"server.env":                      "SERVER_ENV",
	"server.log_level":                "LOG_LEVEL",
	"server.log_format":               "LOG_FORMAT",
	"redis.addr":                      "REDIS_ADDR",
	"redis.password":                  "REDIS_PASSWORD",
	"redis.db":                        "REDIS_DB",
	"redis.project_ttl_hours":         "REDIS_PROJECT_TTL_HOURS",
	"redis.key_prefix":                "REDIS_KEY_PREFIX",
	"llm.provider":                    "LLM_PROVIDER",
	"llm.timeout_seconds":             "LLM_TIMEOUT_SECONDS",
	"llm.groq.api_key":                "GROQ_API_KEY",
	"llm.groq.base_url":               "GROQ_BASE_URL",
	"llm.groq.model":                  "GROQ_MODEL",
	"llm.openrouter.api_key":          "OPENROUTER_API_KEY",
	"llm.openrouter.base_url":         "OPENROUTER_BASE_URL",
	"llm.openrouter.model":            "OPENROUTER_MODEL",
	"llm.openrouter.referer":          "OPENROUTER_REFERER",
	"worker.service_url":              "WORKER_SERVICE_URL",
	"worker.timeout":                  "WORKER_TIMEOUT",
	"worker.enabled":                  "WORKER_ENABLED",
	"r2.account_id":                   "R2_ACCOUNT_ID",
	"r2.access_key_id":                "R2_ACCESS_KEY_ID",
	"r2.secret_access_key":            "R2_SECRET_ACCESS_KEY",
	"r2.bucket_name":                  "R2_BUCKET_NAME",
	"r2.public_url":                   "R2_PUBLIC_URL",
	"pipeline.ledger_ttl_minutes":     "LEDGER_TTL_MINUTES",
	"pipeline.sweep_interval_seconds": "LEDGER_SWEEP_INTERVAL_SECONDS",
	"pipeline.queue_concurrency":      "QUEUE_CONCURRENCY",
	"pipeline.run_timeout_minutes":    "RUN_TIMEOUT_MINUTES",
}

// Load reads configuration from an optional config.yaml and the environment
func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("OPENROUTER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:            v.GetString("redis.addr"),
			Password:        v.GetString("redis.password"),
			DB:              v.GetInt("redis.db"),
			ProjectTTLHours: v.GetInt("redis.project_ttl_hours"),
			KeyPrefix:       v.GetString("redis.key_prefix"),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(v.GetString("llm.provider")),
			TimeoutSeconds: v.GetInt("llm.timeout_seconds"),
			Groq: GroqConfig{
				APIKey:  v.GetString("llm.groq.api_key"),
				BaseURL: v.GetString("llm.groq.base_url"),
				Model:   v.GetString("llm.groq.model"),
			},
			OpenRouter: OpenRouterConfig{
				APIKey:  v.GetString("llm.openrouter.api_key"),
				BaseURL: v.GetString("llm.openrouter.base_url"),
				Model:   v.GetString("llm.openrouter.model"),
				Referer: v.GetString("llm.openrouter.referer"),
			},
		},
		Worker: WorkerConfig{
			ServiceURL: v.GetString("worker.service_url"),
			Timeout:    v.GetInt("worker.timeout"),
			Enabled:    v.GetBool("worker.enabled"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Pipeline: PipelineConfig{
			LedgerTTLMinutes:     v.GetInt("pipeline.ledger_ttl_minutes"),
			SweepIntervalSeconds: v.GetInt("pipeline.sweep_interval_seconds"),
			QueueConcurrency:     v.GetInt("pipeline.queue_concurrency"),
			RunTimeoutMinutes:    v.GetInt("pipeline.run_timeout_minutes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.project_ttl_hours", 0)
	v.SetDefault("redis.key_prefix", "project:")

	// LLM defaults
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.openrouter.model", "meta-llama/llama-3.3-70b-instruct")

	// Worker defaults
	v.SetDefault("worker.service_url", "http://localhost:50051")
	v.SetDefault("worker.timeout", 300)
	v.SetDefault("worker.enabled", false)

	// Pipeline defaults
	v.SetDefault("pipeline.ledger_ttl_minutes", 30)
	v.SetDefault("pipeline.sweep_interval_seconds", 60)
	v.SetDefault("pipeline.queue_concurrency", 4)
	v.SetDefault("pipeline.run_timeout_minutes", 30)
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "groq", "openrouter":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Pipeline.QueueConcurrency < 1 {
		return fmt.Errorf("pipeline.queue_concurrency must be at least 1")
	}
	return nil
}
