package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// LocalConfigFile is the project-local developer config filename.
const LocalConfigFile = "docpull.local.toml"

// DevConfig holds developer-specific configuration that is NOT committed
// to version control. It is resolved with Viper precedence:
// CLI flags > DOCPULL_* environment > docpull.local.toml (project-local)
// > ~/.config/docpull/config.toml (global).
type DevConfig struct {
	// Token authenticates requests against the repository host. Needed
	// for private repositories and higher rate limits.
	Token string `toml:"token" mapstructure:"token"`

	// Concurrency overrides the per-source file concurrency limit.
	Concurrency int `toml:"concurrency" mapstructure:"concurrency"`
}

// LoadDevConfig resolves developer configuration using Viper's merge
// semantics. flagToken and flagConcurrency take highest precedence when
// set (via --token and --concurrency flags).
func LoadDevConfig(flagToken string, flagConcurrency int) (*DevConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, ".config", "docpull", "config.toml")
	return loadDevConfig(flagToken, flagConcurrency, globalPath, LocalConfigFile)
}

// loadDevConfig is the internal implementation that accepts explicit paths,
// making it testable without touching the real home directory.
func loadDevConfig(flagToken string, flagConcurrency int, globalPath, localPath string) (*DevConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("DOCPULL")
	_ = v.BindEnv("token")
	_ = v.BindEnv("concurrency")

	// Lowest priority: global config
	v.SetConfigFile(globalPath)
	// Read global config; ignore if missing.
	_ = v.ReadInConfig()

	// Higher priority: project-local config
	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Highest priority: CLI flags
	if flagToken != "" {
		v.Set("token", flagToken)
	}
	if flagConcurrency > 0 {
		v.Set("concurrency", flagConcurrency)
	}

	cfg := &DevConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling dev config: %w", err)
	}

	return cfg, nil
}

// WriteLocalDevConfig persists developer config to docpull.local.toml in
// the given project directory.
func WriteLocalDevConfig(projectDir string, cfg *DevConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling dev config: %w", err)
	}

	path := filepath.Join(projectDir, LocalConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
