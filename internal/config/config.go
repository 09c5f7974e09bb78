// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration values loaded from environment variables.
// Provider secrets are optional at load time; the handlers check them on every
// invocation so a missing key surfaces as a configuration error response.
type Config struct {
	// Server configuration
	ListenAddr     string        `validate:"required"` // Address to listen on (e.g., ":8080")
	RequestTimeout time.Duration `validate:"gt=0"`     // Timeout applied to each inbound request
	MaxRequestSize int64         `validate:"gt=0"`     // Maximum size of incoming request bodies in bytes

	// Environment
	APIEnv string `validate:"oneof=production development test"`

	// Logging
	LogLevel      string `validate:"oneof=debug info warn error"`
	LogFormat     string `validate:"oneof=json console"`
	LogFile       string // Path to log file (empty for stdout)
	LogMaxSizeMB  int    `validate:"gte=0"` // Rotate the log file after this many megabytes
	LogMaxBackups int    `validate:"gte=0"` // Number of rotated files to keep

	// Chat proxy (LLM provider)
	OpenAIAPIKey        string
	OpenAIAPIURL        string `validate:"required,url"`
	OpenAIModel         string `validate:"required"`
	ChatProviderName    string `validate:"required"`
	MaxCompletionTokens int    `validate:"gt=0"`
	ChatTokenAccounting bool   // Count prompt tokens with tiktoken for request accounting logs

	// Scheduling proxy
	CalendlyAPIKey string
	CalendlyAPIURL string `validate:"required,url"`

	// Auth collaborator
	SupabaseURL       string `validate:"omitempty,url"`
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	// Rate limiting
	RateLimitConfigPath   string        // Optional YAML file overlaying the env-derived policies
	RateLimitWindow       time.Duration `validate:"gt=0"`
	ChatAnonymousMax      int           `validate:"gt=0"`
	ChatAuthenticatedMax  int           `validate:"gtefield=ChatAnonymousMax"`
	CalendlyRateLimit     bool
	CalendlyAnonymousMax  int           `validate:"gt=0"`
	CalendlyAuthenticated int           `validate:"gtefield=CalendlyAnonymousMax"`
	RateLimitSweepEvery   time.Duration `validate:"gt=0"`

	// Rate limit backend
	RateLimitBackend   string `validate:"oneof=memory redis"`
	RateLimitPrefix    string
	RateLimitKeySecret string // HMAC secret for hashing caller keys in Redis
	RateLimitFallback  bool   // Fall back to in-memory counting when Redis is unavailable
	RedisAddr          string `validate:"required_if=RateLimitBackend redis"`
	RedisDB            int    `validate:"gte=0"`

	// CORS
	CORSAllowedHeaders []string

	// Admin API
	AdminEnabled       bool
	AdminListenAddr    string   `validate:"required_if=AdminEnabled true"`
	ManagementToken    string   `validate:"required_if=AdminEnabled true"`
	AdminAllowedOrigin []string // Allowed origins for the admin API
}

// New creates a new configuration with values from environment variables.
// It applies default values where environment variables are not set,
// and validates the resulting configuration.
func New() (*Config, error) {
	config := &Config{
		// Server defaults
		ListenAddr:     getEnvString("LISTEN_ADDR", ":8080"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestSize: getEnvInt64("MAX_REQUEST_SIZE", 1024*1024), // 1MB

		APIEnv: getEnvString("API_ENV", "development"),

		// Logging defaults
		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFormat:     getEnvString("LOG_FORMAT", "json"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),

		// Chat defaults
		OpenAIAPIKey:        getEnvString("OPENAI_API_KEY", ""),
		OpenAIAPIURL:        getEnvString("OPENAI_API_URL", "https://api.openai.com"),
		OpenAIModel:         getEnvString("OPENAI_MODEL", "gpt-5-2025-08-07"),
		ChatProviderName:    getEnvString("CHAT_PROVIDER_NAME", "openai"),
		MaxCompletionTokens: getEnvInt("CHAT_MAX_COMPLETION_TOKENS", 500),
		ChatTokenAccounting: getEnvBool("CHAT_TOKEN_ACCOUNTING", false),

		// Scheduling defaults
		CalendlyAPIKey: getEnvString("CALENDLY_API_KEY", ""),
		CalendlyAPIURL: getEnvString("CALENDLY_API_URL", "https://api.calendly.com"),

		// Auth collaborator
		SupabaseURL:       getEnvString("SUPABASE_URL", ""),
		SupabaseAnonKey:   getEnvString("SUPABASE_ANON_KEY", ""),
		SupabaseJWTSecret: getEnvString("SUPABASE_JWT_SECRET", ""),

		// Rate limiting defaults
		RateLimitConfigPath:   getEnvString("RATE_LIMIT_CONFIG_PATH", ""),
		RateLimitWindow:       getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		ChatAnonymousMax:      getEnvInt("CHAT_RATE_LIMIT_ANONYMOUS", 5),
		ChatAuthenticatedMax:  getEnvInt("CHAT_RATE_LIMIT_AUTHENTICATED", 20),
		CalendlyRateLimit:     getEnvBool("CALENDLY_RATE_LIMIT_ENABLED", false),
		CalendlyAnonymousMax:  getEnvInt("CALENDLY_RATE_LIMIT_ANONYMOUS", 30),
		CalendlyAuthenticated: getEnvInt("CALENDLY_RATE_LIMIT_AUTHENTICATED", 60),
		RateLimitSweepEvery:   getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),

		RateLimitBackend:   getEnvString("RATE_LIMIT_BACKEND", "memory"),
		RateLimitPrefix:    getEnvString("RATE_LIMIT_PREFIX", "ratelimit:"),
		RateLimitKeySecret: getEnvString("RATE_LIMIT_KEY_SECRET", ""),
		RateLimitFallback:  getEnvBool("RATE_LIMIT_FALLBACK", true),
		RedisAddr:          getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		CORSAllowedHeaders: getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"authorization", "x-client-info", "apikey", "content-type"}),

		AdminEnabled:       getEnvBool("ADMIN_ENABLED", false),
		AdminListenAddr:    getEnvString("ADMIN_LISTEN_ADDR", ":8081"),
		ManagementToken:    getEnvString("MANAGEMENT_TOKEN", ""),
		AdminAllowedOrigin: getEnvStringSlice("ADMIN_ALLOWED_ORIGINS", []string{"*"}),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// getEnvString retrieves a string value from an environment variable,
// falling back to the provided default value if the variable is not set.
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a boolean.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseBool(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvInt retrieves an integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as an integer.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.Atoi(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves a 64-bit integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a 64-bit integer.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := time.ParseDuration(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvStringSlice retrieves a comma-separated list from an environment
// variable, trimming whitespace and dropping empty items.
func getEnvStringSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
