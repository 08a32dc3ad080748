package bootstrap

import (
	"fmt"
	"gridbot/internal/config"
	"os"
	"path/filepath"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if cfg.App.StateStoreType == "sqlite" {
		if cfg.App.StateStorePath == "" {
			return fmt.Errorf("state_store_path is required when state_store_type is 'sqlite'")
		}
		dir := filepath.Dir(cfg.App.StateStorePath)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("state store directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("state store path's parent %s is not a directory", dir)
		}
	}

	if cfg.App.CurrentExchange == "" || cfg.App.CurrentExchange == "mock" {
		return nil
	}
	exch, ok := cfg.Exchanges[cfg.App.CurrentExchange]
	if !ok {
		return fmt.Errorf("no configuration found for exchange %q", cfg.App.CurrentExchange)
	}
	if exch.APIKey == "" || exch.SecretKey == "" {
		return fmt.Errorf("exchange %q is missing api_key or secret_key", cfg.App.CurrentExchange)
	}

	return nil
}
