// Sensible defaults for every configuration section. A zero-config
// start runs the pipeline with the in-memory review queue, a local
// sqlite history file, and no model endpoint (runs degrade to the rule
// score until one is configured).
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Pipeline:   DefaultPipelineConfig(),
		RiskModel:  DefaultRiskModelConfig(),
		Escalation: DefaultEscalationConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		History:    DefaultHistoryConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConns:        512,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultPipelineConfig returns the default thresholds and batch
// settings. The 40/80 band matches the underwriting policy the rule
// table was calibrated against.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ApproveThreshold: 40,
		DeclineThreshold: 80,
		ModelTimeout:     45 * time.Second,
		BatchConcurrency: 4,
	}
}

// DefaultRiskModelConfig returns the default model endpoint settings.
// The BaseURL points at GitHub Models; the API key must come from the
// environment before the model component contributes to scores.
func DefaultRiskModelConfig() RiskModelConfig {
	return RiskModelConfig{
		ProviderName: "github-models",
		BaseURL:      "https://models.github.ai/inference",
		Model:        "openai/gpt-4o-mini",
		Timeout:      45 * time.Second,
		Temperature:  0.3,
		MaxTokens:    250,
		CacheEnabled: false,
		CacheTTL:     time.Hour,
	}
}

// DefaultEscalationConfig returns the in-memory review queue.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		StoreType: "memory",
		Mongo: MongoConfig{
			Database:   "loanflow",
			Collection: "escalations",
		},
	}
}

// DefaultDatabaseConfig returns a local sqlite file so the history
// log and the database review queue work without a server.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "loanflow",
		Name:            "loanflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default cache connection settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultHistoryConfig enables the audit log.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{Enabled: true}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns trace export settings, disabled until
// an OTLP collector is in place.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "loanflow",
		SampleRate:   0.1,
	}
}
