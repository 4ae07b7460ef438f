// Package settings resolves the perltidy-more configuration for a single
// formatting call. Nothing here is cached: every Load re-reads its layers.
package settings

import "sync"

const (
	// Section is the configuration namespace shared with editor clients.
	Section = "perltidy-more"
	// FileName is the optional project file read from a workspace root.
	FileName = "tidyls.toml"
)

// Config is the effective configuration for one formatting call.
type Config struct {
	Executable  string
	Profile     string
	AutoDisable bool
}

// Overrides is one configuration layer. Nil fields leave lower layers alone.
type Overrides struct {
	Executable  *string `json:"executable,omitempty" toml:"executable"`
	Profile     *string `json:"profile,omitempty" toml:"profile"`
	AutoDisable *bool   `json:"autoDisable,omitempty" toml:"autoDisable"`
}

// Apply returns cfg with every set field of o written over it.
func (o Overrides) Apply(cfg Config) Config {
	if o.Executable != nil {
		cfg.Executable = *o.Executable
	}
	if o.Profile != nil {
		cfg.Profile = *o.Profile
	}
	if o.AutoDisable != nil {
		cfg.AutoDisable = *o.AutoDisable
	}
	return cfg
}

// Source yields the configuration for a workspace root.
type Source interface {
	Load(root string) (Config, error)
}

// Layer yields the overrides one configuration source contributes.
type Layer interface {
	Lookup(root string) (Overrides, error)
}

// Chain merges layers over the zero Config. Later layers take precedence.
type Chain []Layer

// Load implements Source.
func (c Chain) Load(root string) (Config, error) {
	var cfg Config
	for _, layer := range c {
		o, err := layer.Lookup(root)
		if err != nil {
			return Config{}, err
		}
		cfg = o.Apply(cfg)
	}
	return cfg, nil
}

// Static is a fixed layer, used for CLI flags.
type Static Overrides

// Lookup implements Layer.
func (s Static) Lookup(string) (Overrides, error) {
	return Overrides(s), nil
}

// Memory holds overrides pushed by a client, such as LSP configuration.
type Memory struct {
	mu sync.RWMutex
	o  Overrides
}

// Set replaces the stored overrides.
func (m *Memory) Set(o Overrides) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.o = o
}

// Lookup implements Layer.
func (m *Memory) Lookup(string) (Overrides, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.o, nil
}

// String and Bool build override values inline.
func String(v string) *string { return &v }

func Bool(v bool) *bool { return &v }
