package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Executor ExecutorConfig `mapstructure:"executor" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// CacheConfig controls the result cache tiers.
// RedisAddr is optional; when empty the cache runs with the local tier only.
type CacheConfig struct {
	RedisAddr         string `mapstructure:"redis_addr"`
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds" validate:"gte=0"`
}

// ExecutorConfig controls the concurrent batch executor and its retry policy.
type ExecutorConfig struct {
	// MaxConcurrent bounds how many work items may be in flight at once.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gt=0"`

	// MaxRetries is the retry budget per work item after the first attempt.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// BaseBackoffMs is the initial backoff delay; doubled per attempt.
	BaseBackoffMs int `mapstructure:"base_backoff_ms" validate:"gt=0"`

	// MaxBackoffMs caps the computed backoff delay.
	MaxBackoffMs int `mapstructure:"max_backoff_ms" validate:"gt=0"`

	// AttemptTimeoutMs bounds a single attempt of the work function.
	AttemptTimeoutMs int `mapstructure:"attempt_timeout_ms" validate:"gt=0"`
}

// QueueConfig controls the bounded task queue and its worker pool.
type QueueConfig struct {
	Size        int `mapstructure:"size" validate:"required,gt=0"`
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// EventsConfig controls optional progress event delivery.
// WebhookURL is optional; when empty progress events are only logged.
type EventsConfig struct {
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}
