package config

import "sync"

// Provider answers section lookups against the current settings. It is
// safe for concurrent use; Update swaps the settings atomically.
type Provider struct {
	mu       sync.RWMutex
	settings map[string]any
	err      error
}

// NewProvider creates a provider serving cfg's settings.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.Update(cfg)
	return p
}

// FailedProvider creates a provider whose lookups all fail with err.
func FailedProvider(err error) *Provider {
	return &Provider{err: err}
}

// Update replaces the served settings and clears any load error.
func (p *Provider) Update(cfg *Config) {
	settings := cfg.Settings()
	p.mu.Lock()
	p.settings = settings
	p.err = nil
	p.mu.Unlock()
}

// Fail makes later lookups return err until the next Update.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Section returns a copy of the value at a dotted section path, or nil
// when no such section exists. The empty section returns everything.
func (p *Provider) Section(section string) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	v, ok := getByPath(p.settings, section)
	if !ok {
		return nil, nil
	}
	return cloneValue(v), nil
}

// Values resolves each section in order.
func (p *Provider) Values(sections []string) ([]any, error) {
	out := make([]any, len(sections))
	for i, s := range sections {
		v, err := p.Section(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
