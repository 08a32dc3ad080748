package bootstrap

import (
	"gridbot/internal/core"
	"gridbot/pkg/logging"
)

// InitLogger builds the project's zap/otelzap-backed logger from config.
func InitLogger(cfg *Config) core.ILogger {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fallback, _ := logging.NewZapLogger("INFO")
		return fallback
	}
	logging.SetGlobalLogger(logger)
	return logger.WithField("pair", cfg.Grid.Pair)
}
