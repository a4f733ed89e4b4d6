package config

import (
	"fmt"
	"sync"
)

// Provider wraps a *Config behind a mutex, re-reading the backing file on
// Reload — the same "reload swaps the in-memory config" shape as the
// teacher's configLoader/reloadChan pair in pkg/server/server.go, minus the
// background fsnotify watch: reload_config (spec §4, supplemented
// features) is an explicit admin-triggered tool call here rather than a
// file watcher, so there is no channel to debounce concurrent reloads
// through.
type Provider struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewProvider wraps an already-loaded Config for path, so a later Reload
// re-reads the same file.
func NewProvider(path string, cfg *Config) *Provider {
	return &Provider{path: path, cfg: cfg}
}

// Current returns the active configuration.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Snapshot implements dispatch.ConfigProvider.
func (p *Provider) Snapshot() map[string]any {
	return p.Current().Snapshot()
}

// Reload implements dispatch.ConfigProvider: re-reads path, validates, and
// swaps the active config atomically. Only the Provider's own copy changes:
// running components (worker pool, Supervisor, rate limiter, evolution
// cooldown) keep the values they were built with until a restart.
func (p *Provider) Reload() error {
	next, err := Load(p.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	p.mu.Lock()
	p.cfg = next
	p.mu.Unlock()
	return nil
}
