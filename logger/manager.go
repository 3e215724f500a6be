package logger

import (
	"sync/atomic"

	"github.com/saiset-co/sai-directory/types"
)

// Manager owns the process logger. It embeds the configured backend, so it
// can be handed to any component expecting types.Logger.
type Manager struct {
	types.Logger
	running atomic.Bool
}

var creators = make(map[string]types.LoggerCreator)

// RegisterLogger makes a backend selectable through logger.type.
func RegisterLogger(name string, creator types.LoggerCreator) {
	creators[name] = creator
}

func NewManager(config *types.LoggerConfig) (*Manager, error) {
	if config == nil {
		return nil, types.ErrLoggerConfigInvalid
	}

	backend, err := newBackend(config)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	return &Manager{Logger: backend}, nil
}

func newBackend(config *types.LoggerConfig) (types.Logger, error) {
	switch config.Type {
	case "", "default":
		return NewDefaultLogger(config)
	case "nop":
		return NewNop(), nil
	}

	creator, ok := creators[config.Type]
	if !ok {
		return nil, types.Errorf(types.ErrLoggerTypeUnknown, "logger type: %s", config.Type)
	}
	return creator(config.Config)
}

func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

// Stop flushes buffered entries. Sync errors on stdout/stderr are expected on
// some platforms and not reported.
func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return types.ErrServerNotRunning
	}

	if syncer, ok := m.Logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

var _ types.LoggerManager = (*Manager)(nil)
