package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileSource reads the [perltidy-more] table of a TOML file in the
// workspace root. A missing file contributes nothing.
type FileSource struct {
	Name string // defaults to FileName
}

type fileConfig struct {
	Section Overrides `toml:"perltidy-more"`
}

// Lookup implements Layer.
func (f FileSource) Lookup(root string) (Overrides, error) {
	if root == "" {
		return Overrides{}, nil
	}
	name := f.Name
	if name == "" {
		name = FileName
	}
	path := filepath.Join(root, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Overrides{}, nil
		}
		return Overrides{}, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Overrides{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Overrides{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg.Section, nil
}

// ParseJSON decodes client settings. It accepts either the whole settings
// object, keyed by Section, or the bare section.
func ParseJSON(raw json.RawMessage) (Overrides, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Overrides{}, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return Overrides{}, fmt.Errorf("invalid settings: %w", err)
	}
	if inner, ok := wrapped[Section]; ok {
		raw = inner
	}
	var o Overrides
	if err := json.Unmarshal(raw, &o); err != nil {
		return Overrides{}, fmt.Errorf("invalid %s settings: %w", Section, err)
	}
	return o, nil
}
