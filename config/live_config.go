package config

import (
	"sync"
	"time"
)

// ConfigObserver is notified after a config reload is applied.
type ConfigObserver interface {
	OnConfigUpdate(cfg *Config)
}

// LiveConfig is a thread-safe holder for the running config. A reload swaps
// the whole config and notifies observers.
type LiveConfig struct {
	mu          sync.RWMutex
	config      *Config
	lastUpdated time.Time

	obsMu     sync.RWMutex
	observers []ConfigObserver
}

// NewLiveConfig creates a LiveConfig. A nil initial config uses Defaults.
func NewLiveConfig(initial *Config) *LiveConfig {
	if initial == nil {
		initial = Defaults()
	}
	return &LiveConfig{
		config:      initial.Clone(),
		lastUpdated: time.Now(),
	}
}

// Get returns a copy of the current config.
func (lc *LiveConfig) Get() *Config {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.config.Clone()
}

// Update validates newConfig and makes it current. The previous config is kept
// when validation fails.
func (lc *LiveConfig) Update(newConfig *Config) error {
	if newConfig == nil {
		return nil
	}
	if err := newConfig.Err(); err != nil {
		return err
	}

	cloned := newConfig.Clone()

	lc.mu.Lock()
	lc.config = cloned
	lc.lastUpdated = time.Now()
	lc.mu.Unlock()

	// Outside the lock so observers may call Get
	lc.notifyObservers(cloned)
	return nil
}

// Reload re-reads the config file at path over the environment and applies
// the result. The current config is kept when the file cannot be read or
// fails validation.
func (lc *LiveConfig) Reload(path string) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	return lc.Update(cfg)
}

// AddObserver registers an observer.
func (lc *LiveConfig) AddObserver(obs ConfigObserver) {
	if obs == nil {
		return
	}
	lc.obsMu.Lock()
	defer lc.obsMu.Unlock()
	lc.observers = append(lc.observers, obs)
}

func (lc *LiveConfig) notifyObservers(cfg *Config) {
	lc.obsMu.RLock()
	observers := make([]ConfigObserver, len(lc.observers))
	copy(observers, lc.observers)
	lc.obsMu.RUnlock()

	for _, obs := range observers {
		obs.OnConfigUpdate(cfg.Clone())
	}
}

// LastUpdated returns when the config was last replaced.
func (lc *LiveConfig) LastUpdated() time.Time {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.lastUpdated
}
