package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hotdot-game/hotdot/go/internal/matchmaker"
)

// Config is the service configuration loaded from YAML, with the matchmaking
// policy constants kept explicit so deployments can tune them.
type Config struct {
	Matchmaking matchmaker.Policy `yaml:"matchmaking"`
}

func loadConfig(path string) (*Config, error) {
	config := &Config{
		Matchmaking: matchmaker.DefaultPolicy(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file; defaults apply.
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
