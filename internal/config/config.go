// Package config loads service configuration from an optional YAML file with
// environment-variable overrides on top. Defaults suit local development.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when CONFIG_FILE is unset.
const DefaultPath = "config.yaml"

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Config is the full service configuration.
type Config struct {
	Port     string   `yaml:"port"`
	AdminIDs []string `yaml:"admin_ids"`
	Database Database `yaml:"database"`
}

func defaults() *Config {
	return &Config{
		Port: "8080",
		Database: Database{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "rightsengine",
			SSLMode: "disable",
		},
	}
}

// Load reads the config file (CONFIG_FILE or ./config.yaml), falling back to
// defaults when it does not exist, then applies environment overrides.
func Load() (*Config, error) {
	path := getEnv("CONFIG_FILE", DefaultPath)

	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets well-known environment variables override file values.
func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	if v := os.Getenv("ADMIN_IDS"); v != "" {
		c.AdminIDs = strings.Split(v, ",")
	}
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
