package config

import (
	"context"
	"sync"
	"time"

	"surveydesk-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// Manager holds the live configuration and reloads it when the file changes.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	stopCh     chan struct{}
	stopOnce   sync.Once
	onChange   []func(*Config)
	dispatcher events.Dispatcher
	debounce   time.Duration
}

// NewManager loads path and returns a manager around it. Call Watch to start
// hot reload.
func NewManager(path string) (*Manager, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadWithFile(path)
	if err != nil {
		return nil, err
	}
	return &Manager{
		config:     cfg,
		configPath: path,
		stopCh:     make(chan struct{}),
		debounce:   100 * time.Millisecond,
	}, nil
}

// OnChange registers a callback for configuration changes
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// SetDispatcher wires the event hub used to broadcast language changes.
func (cm *Manager) SetDispatcher(d events.Dispatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.dispatcher = d
}

// Config returns a copy of the current configuration
func (cm *Manager) Config() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	cfg := *cm.config
	return &cfg
}

// Path is the expanded configuration file path.
func (cm *Manager) Path() string { return cm.configPath }

// Close stops the watcher.
func (cm *Manager) Close() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

// reload re-reads the file and fans out the change. A file that fails to
// parse or validate keeps the previous configuration.
func (cm *Manager) reload() {
	next, err := LoadWithFile(cm.configPath)
	if err != nil {
		log.WithError(err).WithField("path", cm.configPath).Warn("config reload rejected; keeping previous configuration")
		return
	}

	cm.mu.Lock()
	prev := cm.config
	cm.config = next
	callbacks := make([]func(*Config), len(cm.onChange))
	copy(callbacks, cm.onChange)
	dispatcher := cm.dispatcher
	cm.mu.Unlock()

	log.WithField("path", cm.configPath).Info("configuration reloaded")

	for _, fn := range callbacks {
		fn(next)
	}
	if dispatcher != nil && prev.UI.Language != next.UI.Language {
		dispatcher.Dispatch(context.Background(), events.LanguageChanged, next.UI.Language)
	}
}
