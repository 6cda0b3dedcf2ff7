package fleet

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	verrors "vistara-analytics/pkg/errors"
)

// Load reads, parses and validates the fleet file at path. Any failure is
// returned as a ConfigurationError.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, verrors.NewConfigurationError(path, fmt.Errorf("reading file: %w", err))
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, verrors.NewConfigurationError(path, err)
	}

	return cfg, nil
}

// Parse decodes and validates a fleet descriptor in the given format: json,
// yaml or toml.
func Parse(data []byte, format string) (*Config, error) {
	cfg := &Config{}

	var err error

	switch format {
	case "json":
		err = json.Unmarshal(data, cfg)
	case "yaml":
		err = yaml.UnmarshalStrict(data, cfg)
	case "toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%q: %w", format, verrors.ErrUnsupportedFormat)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", format, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".json", "":
		return "json"
	default:
		return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
}
