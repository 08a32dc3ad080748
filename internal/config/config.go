// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig                 `yaml:"app"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	Grid        GridConfig                `yaml:"grid"`
	System      SystemConfig              `yaml:"system"`
	Timing      TimingConfig              `yaml:"timing"`
	Concurrency ConcurrencyConfig         `yaml:"concurrency"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Notifier    NotifierConfig            `yaml:"notifier"`
}

// NotifierConfig lists the alert channels to fan notifications out to.
// Every field is optional; an empty value skips wiring that channel.
type NotifierConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	TelegramToken   Secret `yaml:"telegram_bot_token"`
	TelegramChatID  string `yaml:"telegram_chat_id"`
	WebhookInfoURL  string `yaml:"webhook_info_url"`
	WebhookErrorURL string `yaml:"webhook_error_url"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	CurrentExchange string `yaml:"current_exchange"`
	StateStoreType  string `yaml:"state_store_type" validate:"oneof=sqlite none"`
	StateStorePath  string `yaml:"state_store_path"`
}

// ExchangeConfig contains exchange-specific configuration
type ExchangeConfig struct {
	APIKey     Secret  `yaml:"api_key" validate:"required"`
	SecretKey  Secret  `yaml:"secret_key" validate:"required"`
	Passphrase Secret  `yaml:"passphrase"`
	BaseURL    string  `yaml:"base_url"`
	FeeRate    float64 `yaml:"fee_rate" validate:"required,min=0,max=1"`
}

// GridConfig contains the grid trading parameters (spec.md §3 Parameter
// inputs plus the OrderManager/GridBot configuration knobs).
type GridConfig struct {
	Pair                  string  `yaml:"pair" validate:"required"`
	InitBase              float64 `yaml:"init_base" validate:"required,min=0"`
	InitQuote             float64 `yaml:"init_quote" validate:"required,min=0"`
	InitPrice             float64 `yaml:"init_price" validate:"required,min=0"`
	GridNum               int     `yaml:"grid_num" validate:"required,min=2"`
	PriceInterval         float64 `yaml:"price_interval" validate:"required_without=SupportPrice,min=0"`
	SupportPrice          float64 `yaml:"support_price" validate:"required_without=PriceInterval,min=0"`
	OrderLimit            int     `yaml:"order_limit" validate:"required,min=2"`
	BalanceThreshold      int     `yaml:"balance_threshold" validate:"min=0"`
	CheckIntervalSeconds  int     `yaml:"check_interval_seconds" validate:"required,min=1"`
	ResetIntervalSeconds  int     `yaml:"reset_interval_seconds" validate:"min=0"`
	PriceDecimals         int     `yaml:"price_decimals" validate:"min=0,max=18"`
	AmountDecimals        int     `yaml:"amount_decimals" validate:"min=0,max=18"`
	CheckIrregularPrice   bool    `yaml:"check_irregular_price"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TimingConfig contains timing-related settings for outbound adapter calls.
type TimingConfig struct {
	ExchangeRequestTimeoutSeconds int `yaml:"exchange_request_timeout_seconds" validate:"min=1,max=300"`
	ExchangeRateLimitPerSecond    int `yaml:"exchange_rate_limit_per_second" validate:"min=1,max=1000"`
	NotifierTimeoutSeconds        int `yaml:"notifier_timeout_seconds" validate:"min=1,max=60"`
}

// ConcurrencyConfig contains worker pool settings for adapter batch calls.
type ConcurrencyConfig struct {
	BatchPoolSize   int `yaml:"batch_pool_size" validate:"min=1,max=100"`
	BatchPoolBuffer int `yaml:"batch_pool_buffer" validate:"min=1,max=10000"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateExchanges(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateGridConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.CurrentExchange == "" {
		return ValidationError{
			Field:   "app.current_exchange",
			Message: "an exchange must be selected",
		}
	}

	if c.App.CurrentExchange != "mock" {
		if _, exists := c.Exchanges[c.App.CurrentExchange]; !exists {
			return ValidationError{
				Field:   "app.current_exchange",
				Value:   c.App.CurrentExchange,
				Message: "exchange configuration not found in exchanges section",
			}
		}
	}

	return nil
}

func (c *Config) validateExchanges() error {
	if c.App.CurrentExchange == "mock" {
		return nil
	}

	for name, exchange := range c.Exchanges {
		if exchange.APIKey == "" {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.api_key", name),
				Message: "API key is required",
			}
		}
		if exchange.SecretKey == "" {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.secret_key", name),
				Message: "secret key is required",
			}
		}
	}

	return nil
}

func (c *Config) validateGridConfig() error {
	if c.Grid.Pair == "" {
		return ValidationError{
			Field:   "grid.pair",
			Message: "pair is required",
		}
	}

	if c.Grid.PriceInterval <= 0 && c.Grid.SupportPrice <= 0 {
		return ValidationError{
			Field:   "grid.price_interval",
			Message: "one of price_interval or support_price must be positive",
		}
	}

	if c.Grid.GridNum < 2 {
		return ValidationError{
			Field:   "grid.grid_num",
			Value:   c.Grid.GridNum,
			Message: "grid_num must be at least 2",
		}
	}

	if c.Grid.OrderLimit < 2 {
		return ValidationError{
			Field:   "grid.order_limit",
			Value:   c.Grid.OrderLimit,
			Message: "order_limit must be at least 2",
		}
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// GetCurrentExchangeConfig returns the configuration for the currently selected exchange
func (c *Config) GetCurrentExchangeConfig() (*ExchangeConfig, error) {
	exchange, exists := c.Exchanges[c.App.CurrentExchange]
	if !exists {
		return nil, fmt.Errorf("exchange configuration not found for: %s", c.App.CurrentExchange)
	}
	return &exchange, nil
}

// String returns a string representation of the configuration. Secret
// fields redact themselves via Secret.MarshalYAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			CurrentExchange: "mock",
			StateStoreType:  "sqlite",
			StateStorePath:  "gridbot.db",
		},
		Exchanges: map[string]ExchangeConfig{
			"mock": {
				APIKey:    Secret("test_api_key"),
				SecretKey: Secret("test_secret_key"),
				FeeRate:   0.0002,
			},
		},
		Grid: GridConfig{
			Pair:                 "BTCUSDT",
			InitBase:             10,
			InitQuote:            700,
			InitPrice:            100,
			GridNum:              10,
			PriceInterval:        10,
			OrderLimit:           4,
			BalanceThreshold:     2,
			CheckIntervalSeconds: 1,
			ResetIntervalSeconds: 86400,
			PriceDecimals:        2,
			AmountDecimals:       6,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		Timing: TimingConfig{
			ExchangeRequestTimeoutSeconds: 10,
			ExchangeRateLimitPerSecond:    10,
			NotifierTimeoutSeconds:        5,
		},
		Concurrency: ConcurrencyConfig{
			BatchPoolSize:   4,
			BatchPoolBuffer: 100,
		},
	}
}
