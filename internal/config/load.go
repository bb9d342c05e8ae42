package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment variable the application
// reads, e.g. ENGAGE_SERVER_PORT or ENGAGE_DATABASE_URL.
const envPrefix = "ENGAGE"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An optional config.yaml in the working directory supplements the
	// environment; its absence is not an error.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers a default for every key. Registering empty values
// for required keys makes viper's AutomaticEnv pick them up from the
// environment without explicit BindEnv calls.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "engage")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 0)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.request_timeout", 30*time.Second)

	v.SetDefault("conversation.match_threshold", 0.3)
	v.SetDefault("conversation.max_matches", 3)
	v.SetDefault("conversation.personality.tone", "friendly_professional")
	v.SetDefault("conversation.personality.approach", "consultative_sales")
	v.SetDefault("conversation.personality.persistence_level", "polite_persistent")
	v.SetDefault("conversation.personality.empathy_level", "high")
	v.SetDefault("conversation.personality.expertise_level", "product_expert")

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.poll_interval", 250*time.Millisecond)
	v.SetDefault("task.hard_timeout", 5*time.Minute)
	v.SetDefault("task.soft_timeout", 4*time.Minute)
	v.SetDefault("task.tracking_ttl", 24*time.Hour)
	v.SetDefault("task.gc_interval", time.Hour)
}

// validate checks the unmarshalled config against the struct tags plus the
// cross-field rules the tags cannot express.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Task.SoftTimeout >= cfg.Task.HardTimeout {
		return fmt.Errorf(
			"invalid configuration: task soft timeout (%s) must be below the hard timeout (%s)",
			cfg.Task.SoftTimeout,
			cfg.Task.HardTimeout,
		)
	}

	return nil
}
