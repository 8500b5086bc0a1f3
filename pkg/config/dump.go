package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const maskedSecret = "********"

// Dump renders the effective configuration as YAML with secrets masked
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	if masked.Connection.Password != "" {
		masked.Connection.Password = maskedSecret
	}
	if masked.Cache.Redis.Password != "" {
		masked.Cache.Redis.Password = maskedSecret
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
