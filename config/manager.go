package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-directory/types"
)

const defaultLoadTimeout = 30 * time.Second

// loaded pairs a decoded configuration with the raw document it came from so
// readers never observe one without the other.
type loaded struct {
	config *types.ServiceConfig
	parser *Parser
}

// ConfigurationManager holds the configuration read from one file and can
// re-read it on demand.
type ConfigurationManager struct {
	ctx     context.Context
	path    string
	loader  *Loader
	timeout time.Duration

	mu      sync.Mutex
	current atomic.Pointer[loaded]
}

func NewConfigurationManager(ctx context.Context, configPath string) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		ctx:     ctx,
		path:    configPath,
		loader:  NewLoader(),
		timeout: defaultLoadTimeout,
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// Load re-reads the file. On failure the previously loaded configuration
// stays in place.
func (cm *ConfigurationManager) Load() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ctx, cancel := context.WithTimeout(cm.ctx, cm.timeout)
	defer cancel()

	config, raw, err := cm.loader.LoadFromFile(ctx, cm.path)
	if err != nil {
		return err
	}

	cm.current.Store(&loaded{config: config, parser: NewParser(raw)})
	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.ServiceConfig {
	if l := cm.current.Load(); l != nil {
		return l.config
	}
	return nil
}

func (cm *ConfigurationManager) GetValue(path string, defaultValue interface{}) interface{} {
	if l := cm.current.Load(); l != nil {
		return l.parser.GetValue(path, defaultValue)
	}
	return defaultValue
}

func (cm *ConfigurationManager) GetAs(path string, target interface{}) error {
	if l := cm.current.Load(); l != nil {
		return l.parser.GetAs(path, target)
	}
	return types.ErrConfigIsNil
}

func (cm *ConfigurationManager) GetAllPaths() []string {
	if l := cm.current.Load(); l != nil {
		return l.parser.GetAllPaths()
	}
	return nil
}

var _ types.ConfigManager = (*ConfigurationManager)(nil)
