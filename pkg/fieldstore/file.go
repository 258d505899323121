package fieldstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies a file serialization format.
type Format string

const (
	// FormatYAML serializes as YAML.
	FormatYAML Format = "yaml"

	// FormatJSON serializes as indented JSON.
	FormatJSON Format = "json"
)

// FormatForPath picks a format from a file extension, defaulting to YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// SaveFile writes the store contents to a file, creating parent directories.
// The format is chosen by extension (.json for JSON, anything else YAML).
func (s *Store) SaveFile(path string) error {
	return s.SaveFileAs(path, FormatForPath(path))
}

// SaveFileAs writes the store contents to a file in the given format.
func (s *Store) SaveFileAs(path string, format Format) error {
	data, err := Marshal(s.ToMap(), format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadFile replaces the store contents with the mapping read from a file.
func (s *Store) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	data, err := Unmarshal(raw, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	s.LoadMap(data)
	return nil
}

// Marshal serializes a plain mapping in the given format.
func Marshal(data map[string]interface{}, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return out, nil
	case FormatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Unmarshal parses a plain mapping in the given format. YAML parsing
// normalizes nested maps to string keys.
func Unmarshal(raw []byte, format Format) (map[string]interface{}, error) {
	data := make(map[string]interface{})
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return data, nil
}
