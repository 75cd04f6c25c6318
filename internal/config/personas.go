package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PersonasConfig is the root of personas.yaml: system prompts of both
// personalities plus optional fact and topic tables.
type PersonasConfig struct {
	Base   string            `yaml:"base"`
	Aris   string            `yaml:"aris"`
	Facts  map[string]string `yaml:"facts"`
	Topics []string          `yaml:"topics"`
}

const (
	DefaultBasePersona = "Ты полезный AI-ассистент. Отвечай кратко и по делу на языке пользователя."
	DefaultArisPersona = "Ты Арис, дружелюбный персональный ассистент с тёплым характером. " +
		"Отвечай коротко, живо и на языке собеседника."
)

// DefaultPersonas is used when no personas file is configured.
func DefaultPersonas() *PersonasConfig {
	return &PersonasConfig{Base: DefaultBasePersona, Aris: DefaultArisPersona}
}

// LoadPersonas reads and validates a personas file. Missing prompts fall
// back to the built-in ones.
func LoadPersonas(path string) (*PersonasConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas config: %w", err)
	}

	var cfg PersonasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse personas config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate personas config: %w", err)
	}

	cfg.Base = strings.TrimSpace(cfg.Base)
	cfg.Aris = strings.TrimSpace(cfg.Aris)
	if cfg.Base == "" {
		cfg.Base = DefaultBasePersona
	}
	if cfg.Aris == "" {
		cfg.Aris = DefaultArisPersona
	}
	return &cfg, nil
}

// Validate rejects empty fact keys and topics.
func (c *PersonasConfig) Validate() error {
	for k, v := range c.Facts {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return fmt.Errorf("fact %q: key and text are required", k)
		}
	}
	for i, t := range c.Topics {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("topic #%d is empty", i+1)
		}
	}
	return nil
}
