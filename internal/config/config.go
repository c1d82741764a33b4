package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Output formats of the turn report.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ValidFormats lists the supported report formats.
var ValidFormats = []string{FormatText, FormatMarkdown, FormatHTML}

// Config holds the settings stored in <root>/.melty/config.yaml.
type Config struct {
	// Autocommit commits applied edits instead of only writing them.
	Autocommit bool   `yaml:"autocommit"`
	Debug      bool   `yaml:"debug"`
	ChunkSize  int    `yaml:"chunk_size"`
	Format     string `yaml:"format"`
	// Nvim writes through a Neovim instance instead of the filesystem.
	Nvim bool `yaml:"nvim"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize: 256,
		Format:    FormatText,
	}
}

// DefaultPath returns the config file location for root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".melty", "config.yaml")
}

// Load reads the YAML file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if os.Getenv("MELTY_DEBUG") == "1" {
		c.Debug = true
	}
	if os.Getenv("MELTY_AUTOCOMMIT") == "1" {
		c.Autocommit = true
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size: %d (must be positive)", c.ChunkSize)
	}
	for _, f := range ValidFormats {
		if c.Format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format: %s (valid: %v)", c.Format, ValidFormats)
}
