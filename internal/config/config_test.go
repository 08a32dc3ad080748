package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
		{
			name:  "mixed static and env vars",
			input: "static_value: 123\napi_key: ${TEST_KEY}",
			envVars: map[string]string{
				"TEST_KEY": "dynamic_key",
			},
			expected: "static_value: 123\napi_key: dynamic_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  current_exchange: "binance"

exchanges:
  binance:
    api_key: "${TEST_BINANCE_API_KEY}"
    secret_key: "${TEST_BINANCE_SECRET_KEY}"
    fee_rate: 0.0002

grid:
  pair: "BTCUSDT"
  init_base: 10
  init_quote: 700
  init_price: 100
  grid_num: 10
  price_interval: 10
  order_limit: 4
  balance_threshold: 2
  check_interval_seconds: 1

system:
  log_level: "INFO"
  cancel_on_exit: true
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_BINANCE_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_BINANCE_SECRET_KEY", "test_secret_key_from_env")
	defer os.Unsetenv("TEST_BINANCE_API_KEY")
	defer os.Unsetenv("TEST_BINANCE_SECRET_KEY")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	binanceConfig := config.Exchanges["binance"]
	assert.Equal(t, Secret("test_api_key_from_env"), binanceConfig.APIKey)
	assert.Equal(t, Secret("test_secret_key_from_env"), binanceConfig.SecretKey)
	assert.Equal(t, "BTCUSDT", config.Grid.Pair)
	assert.Equal(t, 10, config.Grid.GridNum)
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Exchanges: map[string]ExchangeConfig{
			"test": {
				APIKey:    Secret("my_super_secret_api_key"),
				SecretKey: Secret("my_super_secret_secret_key"),
			},
		},
	}
	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]", "output should contain the redaction marker")
	assert.NotContains(t, output, "my_super_secret_api_key", "output should NOT contain full API key")
	assert.NotContains(t, output, "my_super_secret_secret_key", "output should NOT contain full Secret key")
}

func TestValidateGridConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Grid.Pair = ""
	assert.Error(t, cfg.Validate())
}
