package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/pairbot/config"
	"github.com/alejandrodnm/pairbot/internal/adapters/kvstore"
	"github.com/alejandrodnm/pairbot/internal/adapters/notify"
	"github.com/alejandrodnm/pairbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/pairbot/internal/adapters/storage"
	"github.com/alejandrodnm/pairbot/internal/application/budget"
	"github.com/alejandrodnm/pairbot/internal/application/execution"
	"github.com/alejandrodnm/pairbot/internal/application/risk"
	"github.com/alejandrodnm/pairbot/internal/application/runner"
	"github.com/alejandrodnm/pairbot/internal/application/signals"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full table (default: compact 1-line)")
	resetLatch := flag.Bool("reset-latch", false, "clear the safety latch and exit (does NOT touch positions)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("pairbot starting",
		"config", *configPath,
		"mode", cfg.Strategy.Mode,
		"interval", cfg.PollInterval(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := kvstore.OpenBadger(cfg.Storage.KVPath)
	if err != nil {
		slog.Error("failed to open kv store", "err", err, "path", cfg.Storage.KVPath)
		os.Exit(1)
	}
	defer kv.Close()

	live := cfg.Strategy.Mode == "live"

	// El trading client solo existe en modo live: paper y off no firman nada.
	var trader ports.OrderExecutor
	if live {
		trader, err = buildTradingClient(ctx, cfg)
		if err != nil {
			slog.Error("failed to set up live trading", "err", err)
			os.Exit(1)
		}
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.DataBase)

	archive, err := storage.NewSQLiteArchive(ctx, cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open run archive", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer archive.Close()

	alerts := notify.NewWebhook(cfg.Risk.AlertWebhookURL)
	notifier := notify.NewConsole(*table)

	builder := signals.New(signals.Config{
		Lookback:       cfg.Lookback(),
		MaxCandidates:  cfg.Strategy.MaxSignalsPerRun * 4,
		CoinEnabled:    cfg.CoinEnabled,
		CadenceEnabled: cfg.CadenceEnabled,
	}, client, client)

	alloc := budget.New(budget.Config{
		WalletUsagePercent: cfg.Strategy.WalletUsagePercent,
		PairChunkUSD:       cfg.Strategy.PairChunkUSD,
		MinLegUSD:          cfg.Strategy.MinLegUSD,
		FloorToExchangeMin: cfg.Strategy.FloorToExchangeMin,
	})

	machine := execution.New(execution.Config{
		Paper:                    !live,
		UnwindSlippageCents:      cfg.Risk.UnwindSlippageCents,
		UnwindShareBufferPercent: cfg.Risk.UnwindShareBufferPercent,
		MaxUnresolvedPerRun:      cfg.Risk.MaxUnresolvedImbalancesPerRun,
	}, trader)

	governor := risk.New(risk.Config{
		MaxDailyLiveNotionalUSD:  cfg.Risk.MaxDailyLiveNotionalUSD,
		MaxDailyLiveRuns:         cfg.Risk.MaxDailyLiveRuns,
		MaxDailyDrawdownUSD:      cfg.Risk.MaxDailyDrawdownUSD,
		UnwindShareBufferPercent: cfg.Risk.UnwindShareBufferPercent,
	}, trader, alerts)

	coord := runner.New(runner.Config{
		Mode:             cfg.Strategy.Mode,
		PollInterval:     cfg.PollInterval(),
		MaxSignalsPerRun: cfg.Strategy.MaxSignalsPerRun,
		PaperBalanceUSD:  cfg.Strategy.PaperBalanceUSD,
		MinEdgeFor:       cfg.MinEdgeFor,
	}, builder, alloc, machine, governor, kv, notifier, archive, trader)

	if *resetLatch {
		if err := coord.ResetLatch(ctx); err != nil {
			slog.Error("reset latch failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if *once {
		if err := coord.RunOnce(ctx); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := coord.Run(ctx); err != nil {
		slog.Error("coordinator exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("pairbot stopped cleanly")
}

// buildTradingClient deriva credenciales y verifica que la wallet puede operar.
func buildTradingClient(ctx context.Context, cfg *config.Config) (ports.OrderExecutor, error) {
	privateKey := os.Getenv("POLY_PRIVATE_KEY")
	if privateKey == "" {
		return nil, fmt.Errorf("POLY_PRIVATE_KEY not set (required for live mode)")
	}

	authClient, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.DataBase, privateKey)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := authClient.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", authClient.Address())

	trader, err := polymarket.NewTradingClient(authClient, cfg.API.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("trading client: %w", err)
	}

	balance, err := trader.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	slog.Info("live: wallet balance", "usdc", fmt.Sprintf("$%.2f", balance))

	if balance < budget.ExchangeMinOrderUSD*2 {
		return nil, fmt.Errorf("insufficient balance $%.2f (need at least $%.2f for one pair)",
			balance, budget.ExchangeMinOrderUSD*2)
	}
	return trader, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
