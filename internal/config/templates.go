package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders a full config file for binary with the given
// transform settings over the worker defaults.
func Template(binary string, transform TransformConfig) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("template: binary name required")
	}
	cfg := DefaultWorkerConfig()
	cfg.Transform = transform
	body, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return "", fmt.Errorf("template: %w", err)
	}
	header := fmt.Sprintf("# %s worker config\n# Reload applies log_level and [transform]; other keys need a restart.\n\n", binary)
	return header + string(body), nil
}

func WriteTemplate(path, binary string, transform TransformConfig, overwrite bool) error {
	template, err := Template(binary, transform)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
