// Unified configuration loading: YAML file plus environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("loanflow.yaml").
//	    WithEnvPrefix("LOANFLOW").
//	    Load()
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete loanflow configuration.
type Config struct {
	// Server holds the HTTP listener settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Pipeline holds routing thresholds and batch settings.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// RiskModel configures the model scoring endpoint.
	RiskModel RiskModelConfig `yaml:"risk_model" env:"RISK_MODEL"`

	// Escalation selects the review-queue backend.
	Escalation EscalationConfig `yaml:"escalation" env:"ESCALATION"`

	// Database configures the relational store shared by the
	// escalation queue and the loan history.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis configures the optional model-verdict cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// History toggles the processed-loan audit log.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures trace export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort serves the API.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// MetricsPort serves Prometheus scrapes.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxConns caps concurrent connections at the listener.
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// RateLimitRPS is the sustained per-client request rate.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// AllowedOrigin is the CORS origin; empty disables the header.
	AllowedOrigin string `yaml:"allowed_origin" env:"ALLOWED_ORIGIN"`
	// AuthSecret signs reviewer tokens; empty disables reviewer auth.
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
}

// PipelineConfig holds routing thresholds and batch settings.
type PipelineConfig struct {
	// ApproveThreshold: composite scores below it auto-approve.
	ApproveThreshold float64 `yaml:"approve_threshold" env:"APPROVE_THRESHOLD"`
	// DeclineThreshold: composite scores at or above it auto-decline.
	DeclineThreshold float64 `yaml:"decline_threshold" env:"DECLINE_THRESHOLD"`
	// ModelTimeout bounds the single model call per application.
	ModelTimeout time.Duration `yaml:"model_timeout" env:"MODEL_TIMEOUT"`
	// BatchConcurrency is the batch runner's worker count.
	BatchConcurrency int `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

// RiskModelConfig configures the OpenAI-compatible scoring endpoint.
type RiskModelConfig struct {
	// ProviderName identifies the backend in logs and metrics.
	ProviderName string `yaml:"provider_name" env:"PROVIDER_NAME"`
	// BaseURL is the service root.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey authenticates the calls.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Model is the completion model to request.
	Model string `yaml:"model" env:"MODEL"`
	// EndpointPath overrides the chat-completions path.
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	// Timeout bounds one scoring call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Temperature for the completion request.
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// MaxTokens for the completion response.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// CacheEnabled turns on verdict caching through Redis.
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// CacheTTL bounds a cached verdict's lifetime.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// EscalationConfig selects the review-queue backend.
type EscalationConfig struct {
	// StoreType: memory, database, or mongo.
	StoreType string `yaml:"store_type" env:"STORE_TYPE"`
	// Mongo applies when StoreType is "mongo".
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	// URI is the connection string.
	URI string `yaml:"uri" env:"URI"`
	// Database name.
	Database string `yaml:"database" env:"DATABASE"`
	// Collection name.
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// DatabaseConfig holds relational database settings.
type DatabaseConfig struct {
	// Driver: sqlite, postgres, or mysql.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host of the database server.
	Host string `yaml:"host" env:"HOST"`
	// Port of the database server.
	Port int `yaml:"port" env:"PORT"`
	// User name.
	User string `yaml:"user" env:"USER"`
	// Password.
	Password string `yaml:"password" env:"PASSWORD"`
	// Name is the database name, or the file path for sqlite.
	Name string `yaml:"name" env:"NAME"`
	// SSLMode for postgres.
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns kept ready in the pool.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime recycles long-lived connections.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	// Addr is host:port.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password, empty when unauthenticated.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB index.
	DB int `yaml:"db" env:"DB"`
	// PoolSize caps connections.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// MinIdleConns kept warm.
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// HistoryConfig toggles the processed-loan audit log.
type HistoryConfig struct {
	// Enabled writes one history row per pipeline run.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths for the log sink.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with file:line.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stacks at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig holds trace export settings.
type TelemetryConfig struct {
	// Enabled turns on OTLP export.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint receives spans.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName identifies this deployment.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate in [0,1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the LOANFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LOANFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then the YAML
// file, then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile overlays values from the YAML file. A missing file is
// not an error; the defaults stand.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively, building env keys
// from the nested env tags: LOANFLOW_SERVER_HTTP_PORT and so on.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration wants "45s", not a bare integer.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated lists for string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults plus environment overrides only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the resolved configuration for values that would
// fail at first use.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Pipeline.ApproveThreshold < 0 || c.Pipeline.ApproveThreshold > 100 {
		errs = append(errs, "approve_threshold must be within [0,100]")
	}
	if c.Pipeline.DeclineThreshold < 0 || c.Pipeline.DeclineThreshold > 100 {
		errs = append(errs, "decline_threshold must be within [0,100]")
	}
	if c.Pipeline.ApproveThreshold >= c.Pipeline.DeclineThreshold {
		errs = append(errs, "approve_threshold must be below decline_threshold")
	}

	if c.RiskModel.Temperature < 0 || c.RiskModel.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}

	switch c.Escalation.StoreType {
	case "", "memory", "database", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown escalation store type %q", c.Escalation.StoreType))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the driver-specific connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
