package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over values from the file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory; missing file is fine,
	// a malformed one is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables: SHELFSCRIBE_DATABASE_URL maps to database.url.
	v.SetEnvPrefix("SHELFSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers fallback values so the engine can start with only
// the secrets (database URL, API key) supplied from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.log_level", "info")
	// Empty defaults register the keys with viper so AutomaticEnv can bind them.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("events.webhook_url", "")
	v.SetDefault("cache.default_ttl_seconds", 3600)
	v.SetDefault("executor.max_concurrent", 8)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.base_backoff_ms", 500)
	v.SetDefault("executor.max_backoff_ms", 30000)
	v.SetDefault("executor.attempt_timeout_ms", 60000)
	v.SetDefault("queue.size", 100)
	v.SetDefault("queue.worker_count", 2)
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
}
