// Command gridbot is the driver surface named in spec.md §6.4: it loads
// configuration, wires the exchange adapter, notifier, and state store,
// sizes the grid Parameter, then runs GridBot's init_and_start /
// sync_and_adjust / cancel_and_stop loop under a signal-driven
// lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/alert"
	"gridbot/internal/bootstrap"
	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/exchange"
	"gridbot/internal/gridbot"
	"gridbot/internal/infrastructure/health"
	"gridbot/internal/infrastructure/metrics"
	"gridbot/internal/notifier"
	"gridbot/internal/statestore"
	"gridbot/pkg/cli"
	"gridbot/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gridbot.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridbot version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if err := cli.ValidateInput(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rejected -config value: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger
	cfg := app.Cfg

	logger.Info("starting gridbot", "version", version, "pair", cfg.Grid.Pair, "exchange", cfg.App.CurrentExchange)

	telem, err := telemetry.Setup("gridbot")
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without it", "error", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telem.Shutdown(ctx)
		}()
	}

	healthMgr := health.NewHealthManager(logger)

	var metricsSrv *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Stop(ctx)
		}()
	}

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build exchange adapter", "error", err)
		os.Exit(1)
	}
	healthMgr.Register("exchange", func() error {
		_, err := adapter.GetLatestPrices(context.Background())
		return err
	})

	notif := buildNotifier(cfg, logger)

	var store core.StateStore
	if cfg.App.StateStoreType == "sqlite" {
		sqliteStore, err := statestore.Open(cfg.App.StateStorePath)
		if err != nil {
			logger.Fatal("failed to open state store", "error", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	param, err := buildParameter(cfg, adapter)
	if err != nil {
		logger.Fatal("failed to size grid parameter", "error", err)
		os.Exit(1)
	}

	bot := gridbot.New(adapter, store, notif, logger, cfg.Grid.BalanceThreshold, time.Hour)
	bot.SetCheckIrregularPrice(cfg.Grid.CheckIrregularPrice)

	runner := &gridRunner{
		bot:           bot,
		param:         param,
		adapter:       adapter,
		cfg:           cfg,
		notifier:      notif,
		checkInterval: time.Duration(cfg.Grid.CheckIntervalSeconds) * time.Second,
		resetInterval: time.Duration(cfg.Grid.ResetIntervalSeconds) * time.Second,
		logger:        logger.WithField("component", "grid_runner"),
	}
	healthMgr.Register("grid_bot", func() error {
		if runner.bot.Status() != gridbot.StatusRunning {
			return fmt.Errorf("bot status is %s", runner.bot.Status())
		}
		return nil
	})

	if err := app.Run(runner); err != nil {
		logger.Fatal("gridbot exited with error", "error", err)
		os.Exit(1)
	}

	app.Shutdown(10 * time.Second)
}

// gridRunner implements bootstrap.Runner, the process-level sleep/sync
// loop and the reset_interval restart described in spec.md §6.4. It is
// not part of the core: it owns timing, the core owns reconciliation.
type gridRunner struct {
	bot      *gridbot.GridBot
	param    *gridbot.Parameter
	adapter  core.Adapter
	cfg      *config.Config
	notifier core.Notifier
	logger   core.ILogger

	checkInterval time.Duration
	resetInterval time.Duration
}

func (r *gridRunner) Run(ctx context.Context) error {
	if err := r.bot.InitAndStart(ctx, r.param, nil); err != nil {
		return fmt.Errorf("init_and_start: %w", err)
	}

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()
	cycleStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.bot.CancelAndStop(stopCtx)

		case <-ticker.C:
			if err := r.bot.SyncAndAdjust(ctx); err != nil {
				r.logger.Error("sync_and_adjust failed", "error", err.Error())
			}

			if r.resetInterval > 0 && time.Since(cycleStart) >= r.resetInterval {
				if err := r.bot.CancelAndStop(ctx); err != nil {
					r.logger.Error("cancel_and_stop during reset failed", "error", err.Error())
				}
				param, err := buildParameter(r.cfg, r.adapter)
				if err != nil {
					return fmt.Errorf("reset: rebuild parameter: %w", err)
				}
				r.param = param
				r.bot = gridbot.New(r.adapter, nil, r.notifier, r.logger, r.cfg.Grid.BalanceThreshold, time.Hour)
				r.bot.SetCheckIrregularPrice(r.cfg.Grid.CheckIrregularPrice)
				if err := r.bot.InitAndStart(ctx, r.param, nil); err != nil {
					return fmt.Errorf("reset: init_and_start: %w", err)
				}
				cycleStart = time.Now()
			}
		}
	}
}

func buildAdapter(cfg *config.Config, logger core.ILogger) (core.Adapter, error) {
	if cfg.App.CurrentExchange == "mock" || cfg.App.CurrentExchange == "" {
		return exchange.NewMockAdapter(
			cfg.Grid.Pair,
			decimal.NewFromFloat(0.0002),
			cfg.Grid.OrderLimit,
			cfg.Grid.PriceDecimals,
			cfg.Grid.AmountDecimals,
			core.Ticker{Last: decimal.NewFromFloat(cfg.Grid.InitPrice)},
			core.Assets{BaseAmount: decimal.NewFromFloat(cfg.Grid.InitBase), QuoteAmount: decimal.NewFromFloat(cfg.Grid.InitQuote)},
		), nil
	}

	exchCfg, err := cfg.GetCurrentExchangeConfig()
	if err != nil {
		return nil, err
	}
	base, quote := splitPair(cfg.Grid.Pair)
	return exchange.NewBinanceSpotAdapter(
		*exchCfg,
		cfg.Grid.Pair, base, quote,
		cfg.Grid.OrderLimit, cfg.Grid.PriceDecimals, cfg.Grid.AmountDecimals,
		float64(cfg.Timing.ExchangeRateLimitPerSecond),
		logger,
	), nil
}

// splitPair strips a known quote asset suffix off a spot pair symbol
// (e.g. "ETHUSDT" -> "ETH", "USDT"), the Binance convention of
// concatenating base+quote with no separator.
func splitPair(pair string) (base, quote string) {
	for _, q := range []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return pair, ""
}

func buildNotifier(cfg *config.Config, logger core.ILogger) core.Notifier {
	manager := alert.NewAlertManager(logger)
	if cfg.Notifier.SlackWebhookURL != "" {
		manager.AddChannel(alert.NewSlackChannel(cfg.Notifier.SlackWebhookURL))
	}
	if cfg.Notifier.TelegramToken != "" && cfg.Notifier.TelegramChatID != "" {
		manager.AddChannel(alert.NewTelegramChannel(string(cfg.Notifier.TelegramToken), cfg.Notifier.TelegramChatID))
	}
	if cfg.Notifier.WebhookInfoURL != "" || cfg.Notifier.WebhookErrorURL != "" {
		manager.AddChannel(alert.NewWebhookChannel(cfg.Notifier.WebhookInfoURL, cfg.Notifier.WebhookErrorURL))
	}
	return notifier.New(manager)
}

// buildParameter sizes the grid from the current config, preferring an
// explicit price_interval and falling back to support_price (spec.md
// §4.1's two constructors).
func buildParameter(cfg *config.Config, adapter core.Adapter) (*gridbot.Parameter, error) {
	g := cfg.Grid
	initBase := decimal.NewFromFloat(g.InitBase)
	initQuote := decimal.NewFromFloat(g.InitQuote)
	initPrice := decimal.NewFromFloat(g.InitPrice)
	fee := adapter.Fee()
	pricePrecision := int32(g.PriceDecimals)
	amountPrecision := int32(g.AmountDecimals)

	if g.PriceInterval > 0 {
		return gridbot.CalcGridParamsByInterval(initBase, initQuote, initPrice,
			decimal.NewFromFloat(g.PriceInterval), g.GridNum, fee, pricePrecision, amountPrecision)
	}
	return gridbot.CalcGridParamsBySupport(initBase, initQuote, initPrice,
		decimal.NewFromFloat(g.SupportPrice), g.GridNum, fee, pricePrecision, amountPrecision)
}
