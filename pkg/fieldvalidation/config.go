package fieldvalidation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape of the validator configuration file:
//
//	fields:
//	  department:
//	    validator: string
//	    parameters:
//	      max-length: "100"
//	  question:
//	    validator: string
//	    numbered: true
type FileConfig struct {
	Fields map[string]FieldConfig `yaml:"fields"`
}

// LoadRegistry reads a YAML validator configuration and builds the
// registry with the built-in validators. An empty path yields a registry
// with no configured fields, which rejects every custom field.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(nil, BuiltinValidators())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validator config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse validator config: %w", err)
	}

	return NewRegistry(cfg.Fields, BuiltinValidators())
}
