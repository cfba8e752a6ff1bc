package nodecfg

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML layers a YAML config file over base. Unknown keys are rejected
// (strict decoding), matching §9's "Unknown options are rejected".
func LoadYAML(base *Config, path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodecfg: reading %s: %w", path, err)
	}

	out := *base
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("nodecfg: parsing %s: %w", path, err)
	}
	return &out, nil
}
