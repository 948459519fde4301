package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultEntryPoint is the file the Loader looks for in each directory
	DefaultEntryPoint = "presence.yaml"

	// ReservedPrefix marks files and directories the Loader ignores
	ReservedPrefix = "__"
)

// Manifest is the entry-point file of a presence directory.
//
//	presences:
//	  - browser
//	settings:
//	  show_url: true
type Manifest struct {
	// Presences lists registered presence names to instantiate
	Presences []string `yaml:"presences"`

	// Settings is handed to every Configurable presence of the manifest
	Settings map[string]interface{} `yaml:"settings,omitempty"`
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest data
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if len(m.Presences) == 0 {
		return nil, ErrEmptyManifest
	}
	for i, name := range m.Presences {
		if name == "" {
			return nil, fmt.Errorf("presence %d has an empty name", i)
		}
	}

	return &m, nil
}
