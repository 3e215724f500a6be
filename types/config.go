package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Version   string           `yaml:"version" json:"version" validate:"required"`
	Logger    *LoggerConfig    `yaml:"logger" json:"logger" validate:"required"`
	Cache     *CacheConfig     `yaml:"cache" json:"cache" validate:"required"`
	Client    *ClientConfig    `yaml:"client" json:"client" validate:"required"`
	Directory *DirectoryConfig `yaml:"directory" json:"directory" validate:"required"`
	Search    *SearchConfig    `yaml:"search" json:"search" validate:"required"`
	Metrics   *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health    *HealthConfig    `yaml:"health" json:"health"`
	Server    *ServerConfig    `yaml:"server" json:"server"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Type       string        `yaml:"type" json:"type" validate:"required"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	Config     interface{}   `yaml:"config" json:"config"`
}

type ClientConfig struct {
	DefaultTimeout time.Duration         `yaml:"default_timeout" json:"default_timeout" validate:"min=0"`
	DefaultRetries int                   `yaml:"default_retries" json:"default_retries" validate:"min=0,max=10"`
	RetryBackoff   time.Duration         `yaml:"retry_backoff" json:"retry_backoff" validate:"min=0"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"required_if=Enabled true,min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type DirectoryConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url" validate:"required,url"`
	APIKey       string `yaml:"api_key" json:"api_key"`
	APIKeyHeader string `yaml:"api_key_header" json:"api_key_header"`
}

type SearchConfig struct {
	DebounceDelay time.Duration `yaml:"debounce_delay" json:"debounce_delay" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type ServerConfig struct {
	Enabled      bool              `yaml:"enabled" json:"enabled"`
	Host         string            `yaml:"host" json:"host"`
	Port         int               `yaml:"port" json:"port" validate:"min=0,max=65535"`
	ReadTimeout  time.Duration     `yaml:"read_timeout" json:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration     `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`
	IdleTimeout  time.Duration     `yaml:"idle_timeout" json:"idle_timeout" validate:"min=0"`
	Logging      *MiddlewareConfig `yaml:"logging" json:"logging"`
	Recovery     *MiddlewareConfig `yaml:"recovery" json:"recovery"`
}

type MiddlewareConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Params  interface{} `yaml:"params" json:"params"`
}
