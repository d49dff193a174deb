package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SURVEYDESK_"

// LoadWithFile builds the configuration: defaults, then the file at path (if
// it exists), then SURVEYDESK_* environment overrides, then validation.
func LoadWithFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		path = expanded
		if err := loadFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			log.WithField("path", path).Warn("using default configuration (no config file found)")
		} else {
			log.WithField("path", path).Info("configuration loaded")
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndExpandPaths(); err != nil {
		return nil, err
	}
	if res := cfg.Validate(); !res.Valid {
		return nil, res.Errors[0]
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decode(path, data, cfg)
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config file (tried YAML and JSON)")
			}
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}
	return nil
}
