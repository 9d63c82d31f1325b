package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes what pgxbench connects to and how it drives load
// against it, loaded from a YAML file with the same ${VAR_NAME}
// environment-substitution convention the original config loader uses.
type Config struct {
	DSN         string        `yaml:"dsn"`
	Query       string        `yaml:"query"`
	Concurrency int           `yaml:"concurrency"`
	Duration    time.Duration `yaml:"duration"`
	MinConns    int           `yaml:"min_conns"`
	MaxConns    int           `yaml:"max_conns"`
	StatusAddr  string        `yaml:"status_addr"`
}

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadConfig reads and parses a YAML benchmark target file, applying
// defaults for anything the file leaves zero.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Query == "" {
		cfg.Query = "SELECT 1"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration == 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = cfg.Concurrency
	}
}
