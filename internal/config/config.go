// Package config defines the configuration of the graphbuilder API gateway.
// Configuration is built once at process start and is immutable thereafter.
//
// Values are resolved via a layered chain where the later layer wins:
//
//	OS Environment -> Dotenv (initial load) -> AWS SSM -> Dotenv (override reload)
//
// The merged result is kept as a Snapshot on Config.Env so request-time
// consumers read configuration from the Config they were handed instead of
// the process environment.
package config

import (
	"time"

	"graphbuilder/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"graphbuilder-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Security      SecurityConfig
	Compression   CompressionConfig
	Debug         DebugConfig
	LLM           LLMConfig
	Backend       BackendConfig
	Observability ObservabilityConfig

	// Env is the merged key/value snapshot the configuration was built from.
	Env *Snapshot `ignored:"true"`

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port              string        `envconfig:"PORT" default:"8000"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"10s"`
	// WriteTimeout is zero by default: extraction status and chat answers are
	// streamed and may stay open for minutes.
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// SecurityConfig holds CORS and response hardening settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CorsAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Content-Type,Authorization,X-Request-Id,X-Debug-Token"`
	FrameOptions       string   `envconfig:"FRAME_OPTIONS" default:"DENY" validate:"oneof=DENY SAMEORIGIN"`
}

// CompressionConfig tunes the gzip response middleware.
type CompressionConfig struct {
	MinSize int `envconfig:"GZIP_MIN_SIZE" default:"1000" validate:"min=0"`
	Level   int `envconfig:"GZIP_LEVEL" default:"-1" validate:"min=-1,max=9"`
}

// DebugConfig controls the environment debug endpoint. The endpoint echoes
// credentials, so it is off unless explicitly enabled.
type DebugConfig struct {
	EnvDebugEnabled bool         `envconfig:"ENV_DEBUG_ENABLED" default:"false"`
	TokenHash       SecretString `envconfig:"ENV_DEBUG_TOKEN_HASH"`
}

// LLMConfig holds the model selection consumed by the delegated subsystems.
type LLMConfig struct {
	DefaultChatModel  string       `envconfig:"DEFAULT_DIFFBOT_CHAT_MODEL"`
	GraphCleanupModel string       `envconfig:"GRAPH_CLEANUP_MODEL"`
	OpenAIAPIKey      SecretString `envconfig:"OPENAI_API_KEY"`

	// Models maps a model name to its LLM_MODEL_CONFIG_<name> value. Values
	// typically embed provider credentials.
	Models map[string]SecretString `ignored:"true"`
}

// BackendConfig locates the graph-builder backend that implements the
// delegated routes.
type BackendConfig struct {
	URL        string `envconfig:"GRAPH_BUILDER_URL" default:"http://localhost:8001" validate:"required,url"`
	HealthPath string `envconfig:"GRAPH_BUILDER_HEALTH_PATH" default:"/health" validate:"startswith=/"`
	// ResponseHeaderTimeout bounds the wait for the first response byte.
	// Extraction runs can take minutes before the backend answers.
	ResponseHeaderTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"5m"`
	MaxRetries            int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"2" validate:"min=0,max=5"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	MetricsPath    string `envconfig:"METRICS_PATH" default:"/metrics" validate:"startswith=/"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates a dotenv file exists but could not be read or parsed.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
