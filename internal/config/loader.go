package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadEnv loads dotenv files into the process environment. Variables that
// are already set win over the files. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a recorder config file. Environment references are expanded
// before the YAML is parsed:
//
//	${VAR}          value of VAR, empty when unset
//	${VAR:-value}   value when VAR is unset or empty
//	${VAR:?}        VAR must be set and non-empty
func Load(path string) (*RecorderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, err
	}

	var cfg RecorderConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// expandEnv substitutes environment references and reports every required
// variable that is missing in one error.
func expandEnv(s string) (string, error) {
	missing := map[string]bool{}
	out := os.Expand(s, func(ref string) string {
		name, fallback, hasDefault := strings.Cut(ref, ":-")
		if hasDefault {
			if v := os.Getenv(name); v != "" {
				return v
			}
			return fallback
		}
		if name, ok := strings.CutSuffix(ref, ":?"); ok {
			v := os.Getenv(name)
			if v == "" {
				missing[name] = true
			}
			return v
		}
		return os.Getenv(ref)
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("config requires environment variables: %s", strings.Join(names, ", "))
	}
	return out, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*RecorderConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*RecorderConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
