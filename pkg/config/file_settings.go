package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSettings reads settings from a YAML file.
// The file is read on every Load so edits apply to the next request.
//
//	apikey: 3bX9...
//	allowipaddr: [10.0.0.5, 10.0.0.6]
//	loginredirect: https://portal.example.com/login
//	wwwroot: https://learn.example.com
type FileSettings struct {
	path string
}

// NewFileSettings creates a settings reader over a YAML file
func NewFileSettings(path string) *FileSettings {
	return &FileSettings{path: path}
}

// Load reads and parses the settings file
func (f *FileSettings) Load(ctx context.Context) (*Settings, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML settings. List values are accepted wherever the
// stored form is a separated string.
func ParseYAML(data []byte) (*Settings, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoSettings
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		values[strings.ToLower(key)] = scalarString(value)
	}
	return FromMap(values)
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, scalarString(item))
		}
		return strings.Join(items, ",")
	default:
		return fmt.Sprint(val)
	}
}
