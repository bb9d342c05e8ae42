package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis" validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	LLM          LLMConfig          `mapstructure:"llm" validate:"required"`
	Conversation ConversationConfig `mapstructure:"conversation" validate:"required"`
	Task         TaskConfig         `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains the task queue backend settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	// KeyPrefix namespaces all queue keys, letting deployments share an
	// instance.
	KeyPrefix string `mapstructure:"key_prefix" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes is how long issued access tokens stay valid.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	// BcryptCost controls password hashing strength. 0 selects the bcrypt
	// library default.
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"gte=0,lte=31"`
}

// LLMConfig contains all language model integration settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
	// MaxRetries bounds retry attempts on transient generation failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// RequestTimeout bounds a single generation call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
}

// ConversationConfig tunes the conversation engine.
type ConversationConfig struct {
	// MatchThreshold is the minimum Jaccard similarity for an item to be
	// considered relevant.
	MatchThreshold float64 `mapstructure:"match_threshold" validate:"gte=0,lte=1"`
	// MaxMatches bounds how many relevant items feed a single prompt.
	MaxMatches int `mapstructure:"max_matches" validate:"required,gt=0"`
	// Personality is the agent voice merged into every prompt.
	Personality PersonalityConfig `mapstructure:"personality" validate:"required"`
}

// PersonalityConfig is the externally configurable agent voice.
type PersonalityConfig struct {
	Tone             string `mapstructure:"tone" validate:"required"`
	Approach         string `mapstructure:"approach" validate:"required"`
	PersistenceLevel string `mapstructure:"persistence_level" validate:"required"`
	EmpathyLevel     string `mapstructure:"empathy_level" validate:"required"`
	ExpertiseLevel   string `mapstructure:"expertise_level" validate:"required"`
}

// TaskConfig tunes the background task subsystem.
type TaskConfig struct {
	// WorkerCount is how many concurrent consumers drain the lanes.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	// PollInterval is how long an idle consumer sleeps when every lane is
	// empty.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
	// HardTimeout is the absolute per-task execution limit.
	HardTimeout time.Duration `mapstructure:"hard_timeout" validate:"required"`
	// SoftTimeout is when a task is warned it is near the hard limit. Must
	// be below HardTimeout; Load enforces this.
	SoftTimeout time.Duration `mapstructure:"soft_timeout" validate:"required"`
	// TrackingTTL is how long dispatch tracking entries are retained before
	// garbage collection.
	TrackingTTL time.Duration `mapstructure:"tracking_ttl" validate:"required"`
	// GCInterval is how often expired tracking entries are swept.
	GCInterval time.Duration `mapstructure:"gc_interval" validate:"required"`
}
