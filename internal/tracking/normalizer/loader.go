package normalizer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shiptrack/internal/tracking/models"
)

// File is the on-disk shape of an extra mapping file:
//
//	fallback: processing
//	carriers:
//	  shiprocket:
//	    "Lost": delayed
type File struct {
	Fallback string                       `yaml:"fallback"`
	Carriers map[string]map[string]string `yaml:"carriers"`
}

// LoadFile reads a YAML mapping file and returns options to apply on New.
// An empty path yields no options.
func LoadFile(path string) ([]Option, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status mapping file: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML mapping data. Unknown carriers and non-canonical
// target statuses are rejected so a typo cannot silently route updates to
// the fallback.
func Parse(data []byte) ([]Option, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse status mapping file: %w", err)
	}

	tables := Tables{}
	for name, entries := range f.Carriers {
		carrier, err := models.ParseCarrier(name)
		if err != nil {
			return nil, fmt.Errorf("status mapping file: %w", err)
		}
		table := make(map[string]models.Status, len(entries))
		for raw, target := range entries {
			status := models.Status(target)
			if !status.IsValid() {
				return nil, fmt.Errorf("status mapping file: %s %q maps to unknown status %q", carrier, raw, target)
			}
			table[raw] = status
		}
		tables[carrier] = table
	}

	opts := []Option{WithTables(tables)}
	if f.Fallback != "" {
		fallback := models.Status(f.Fallback)
		if !fallback.IsValid() {
			return nil, fmt.Errorf("status mapping file: unknown fallback status %q", f.Fallback)
		}
		opts = append(opts, WithFallback(fallback))
	}
	return opts, nil
}
