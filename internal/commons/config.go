package commons

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.yaml.in/yaml/v3"

	"sup/internal/config"
)

// LoadConfig reads the YAML file at path, lets environment variables win
// over it and fills whatever is still unset with defaults. A missing file is
// not an error.
func LoadConfig(path string) (*config.Config, error) {
	var cfg config.Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := config.ApplyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	config.ApplyDefaults(&cfg)

	return &cfg, nil
}
