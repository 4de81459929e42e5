// Package config loads the application configuration from a YAML file with
// environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds all settings for the cpedb backend.
type Config struct {
	Arango ArangoConfig `yaml:"arango"`
	Feed   FeedConfig   `yaml:"feed"`
	Index  IndexConfig  `yaml:"index"`
	Dirs   DirConfig    `yaml:"dirs"`
}

// ArangoConfig holds the database connection settings.
type ArangoConfig struct {
	URL        string `yaml:"url"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// FeedConfig holds the NVD feed download settings.
type FeedConfig struct {
	URL        string `yaml:"url"`
	ExtractDir string `yaml:"extract_dir"`
}

// IndexConfig holds the batch indexing settings.
type IndexConfig struct {
	BatchSize   int `yaml:"batch_size"`
	MaxAttempts int `yaml:"max_attempts"`
	Workers     int `yaml:"workers"`
}

// DirConfig holds the local directories for backups and diff reports.
type DirConfig struct {
	Backups string `yaml:"backups"`
	Diffs   string `yaml:"diffs"`
}

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Arango: ArangoConfig{
			URL:        GetEnvDefault("ARANGO_URL", "http://localhost:8529"),
			User:       GetEnvDefault("ARANGO_USER", "root"),
			Password:   GetEnvDefault("ARANGO_PASS", "mypassword"),
			Database:   GetEnvDefault("ARANGO_DB", "cpedb"),
			Collection: "cpe",
		},
		Feed: FeedConfig{
			URL:        GetEnvDefault("NVD_FEED_URL", "https://nvd.nist.gov/feeds/json/cpe/2.0/nvdcpe-2.0.tar.gz"),
			ExtractDir: GetEnvDefault("NVD_EXTRACT_DIR", "./nvd_data"),
		},
		Index: IndexConfig{
			BatchSize:   1000,
			MaxAttempts: 4,
			Workers:     4,
		},
		Dirs: DirConfig{
			Backups: "./backups",
			Diffs:   "./diffs",
		},
	}
}

// Load reads the YAML configuration file at path, layered over Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Index.BatchSize <= 0 {
		cfg.Index.BatchSize = 1000
	}
	if cfg.Index.MaxAttempts <= 0 {
		cfg.Index.MaxAttempts = 4
	}
	if cfg.Index.Workers <= 0 {
		cfg.Index.Workers = 4
	}

	return cfg, nil
}
