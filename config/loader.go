package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-directory/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads a YAML file, expands ${VAR} references from the
// environment, overlays it on Defaults and validates the result. The raw
// document is returned as well for path lookups.
func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.Errorf(types.ErrConfigLoadFailed, "%v", err)
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(expanded, &rawData); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.Validate(config); err != nil {
		return nil, nil, err
	}

	return config, rawData, nil
}

func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-directory",
		Version: "1.0.0",
		Logger: &types.LoggerConfig{
			Type:  "default",
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Type:       "memory",
			DefaultTTL: 5 * time.Minute,
		},
		Client: &types.ClientConfig{
			DefaultTimeout: 10 * time.Second,
			DefaultRetries: 2,
			RetryBackoff:   500 * time.Millisecond,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Directory: &types.DirectoryConfig{
			BaseURL:      "https://reqres.in/api",
			APIKeyHeader: "x-api-key",
		},
		Search: &types.SearchConfig{
			DebounceDelay: 300 * time.Millisecond,
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
		Health: &types.HealthConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		Server: &types.ServerConfig{
			Enabled:      false,
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			Logging:      &types.MiddlewareConfig{Enabled: true},
			Recovery:     &types.MiddlewareConfig{Enabled: true},
		},
	}
}
