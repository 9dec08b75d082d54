package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/config"
	"go.uber.org/zap"
)

// Factory builds a device for one backend name.
type Factory func(cfg *config.Config, logger *zap.Logger) (Device, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{
		config.BackendCPU: func(_ *config.Config, logger *zap.Logger) (Device, error) {
			return NewCPUDevice(logger), nil
		},
	}
)

// RegisterFactory makes a backend available to Open. Passing nil removes it.
func RegisterFactory(name string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if f == nil {
		delete(factories, name)
		return
	}
	factories[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manager lazily opens at most one device per backend and keeps it for the
// life of the process, or until Reset.
type Manager struct {
	mu      sync.Mutex
	devices map[string]Device
}

var defaultManager = &Manager{}

// Open returns the process-wide device for the configured backend, creating
// it on first use.
func Open(cfg *config.Config, logger *zap.Logger) (Device, error) {
	return defaultManager.Open(cfg, logger)
}

// Reset closes every device opened through Open. Later calls to Open build
// fresh devices.
func Reset() error {
	return defaultManager.Reset()
}

func (m *Manager) Open(cfg *config.Config, logger *zap.Logger) (Device, error) {
	name := cfg.Device.Backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[name]; ok {
		return d, nil
	}

	factoryMu.RLock()
	f, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, bencherr.Configf("no device backend %q (available: %v)", name, Backends())
	}
	d, err := f(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device: %w", name, err)
	}
	if m.devices == nil {
		m.devices = make(map[string]Device)
	}
	m.devices[name] = d
	return d, nil
}

func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for name, d := range m.devices {
		if err := d.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s device: %w", name, err)
		}
	}
	m.devices = nil
	return first
}
