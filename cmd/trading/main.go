package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/internal/cache"
	"github.com/halcyon-lab/swing-trading/internal/config"
	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/orchestrator"
	"github.com/halcyon-lab/swing-trading/internal/store"
	"github.com/halcyon-lab/swing-trading/internal/strategy"
	"github.com/halcyon-lab/swing-trading/internal/trading"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if cmd.Bool("debug") {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logg, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logg.Sync() }()

	cacheStore := newCacheStore(cfg, logg)

	repo, err := store.NewDuckDBStore(cfg.Database.DuckDBPath, logg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := seedPositions(ctx, cfg, repo, logg); err != nil {
		return err
	}

	debouncer := strategy.NewEntryDebouncer(cacheStore, strategy.ConsecutiveRequired)

	strat, err := strategy.New(cfg.Strategy, debouncer)
	if err != nil {
		return err
	}

	// Paper mode: the sim gateway quotes the last stored close for each
	// symbol, so the full cycle runs without a brokerage link.
	gateway := trading.NewSimGateway()
	if err := primeGateway(ctx, cfg, repo, gateway, logg); err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Deps{
		Positions:   repo,
		Trades:      repo,
		Bars:        repo,
		Market:      gateway,
		Coordinator: trading.NewCoordinator(gateway, logg),
		Snapshotter: cache.NewSnapshotter(cacheStore, indicator.DefaultConfig(), logg),
		Strategy:    strat,
		Fees:        commission.NewKISModel(),
		Logger:      logg,
	}, cfg.Orchestrator)

	sched, err := orchestrator.NewScheduler(ctx, orch, cfg.Schedule, logg)
	if err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	logg.Info("trading daemon running",
		zap.String("account", cfg.Account),
		zap.Int("positions", len(cfg.Positions)))

	<-ctx.Done()
	logg.Info("shutdown signal received, stopping")

	return nil
}

func newLogger(debug bool) (*logger.Logger, error) {
	if debug {
		return logger.NewDebugLogger()
	}

	return logger.NewLogger()
}

// newCacheStore connects to redis when an address is configured, falling
// back to the in-process store so the daemon still runs without one.
func newCacheStore(cfg *config.Config, logg *logger.Logger) cache.Store {
	if cfg.Redis.Addr == "" {
		logg.Info("no redis configured, using in-memory indicator cache")

		return cache.NewMemoryStore()
	}

	redisStore, err := cache.NewRedisStore(cfg.Redis)
	if err != nil {
		logg.Warn("redis unavailable, falling back to in-memory cache",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))

		return cache.NewMemoryStore()
	}

	return redisStore
}

// seedPositions creates any configured positions that are not in the
// repository yet. Existing positions keep their state.
func seedPositions(ctx context.Context, cfg *config.Config, repo *store.DuckDBStore, logg *logger.Logger) error {
	for _, pc := range cfg.Positions {
		id := "pos-" + pc.Symbol
		if _, err := repo.Find(ctx, id); err == nil {
			continue
		}

		p := &types.Position{
			ID:           id,
			Symbol:       pc.Symbol,
			Account:      cfg.Account,
			Signal:       types.StateWaiting,
			BuyRatio:     pc.BuyRatio,
			SellRatio:    pc.SellRatio,
			Allocated:    pc.Allocated,
			LastModified: time.Now(),
		}

		if err := p.Validate(); err != nil {
			return err
		}

		if err := repo.Create(ctx, p); err != nil {
			return err
		}

		logg.Info("position seeded", zap.String("symbol", pc.Symbol))
	}

	return nil
}

// primeGateway loads each symbol's stored bars into the sim gateway and
// quotes the latest close. Symbols with no stored bars are skipped; the
// orchestrator will report them when it ticks.
func primeGateway(ctx context.Context, cfg *config.Config, repo *store.DuckDBStore, gateway *trading.SimGateway, logg *logger.Logger) error {
	to := time.Now()
	from := to.AddDate(-2, 0, 0)

	for _, pc := range cfg.Positions {
		bars, err := repo.LoadBars(ctx, pc.Symbol, from, to)
		if err != nil {
			return err
		}

		if len(bars) == 0 {
			logg.Warn("no stored bars for symbol", zap.String("symbol", pc.Symbol))

			continue
		}

		gateway.SetBars(pc.Symbol, bars)

		last := bars[len(bars)-1]
		dailyReturn := 0.0

		if len(bars) > 1 && bars[len(bars)-2].Close > 0 {
			dailyReturn = (last.Close - bars[len(bars)-2].Close) / bars[len(bars)-2].Close
		}

		gateway.SetQuote(types.Quote{
			Symbol:        last.Symbol,
			Price:         last.Close,
			High:          last.High,
			Low:           last.Low,
			Volume:        last.Volume,
			ForeignNetBuy: last.ForeignNetBuy.TakeOr(0),
			DailyReturn:   dailyReturn,
		})
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "trading",
		Usage: "Run the swing trading daemon in paper mode",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the application config YAML",
				Value:   "configs/config.yaml",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runAction,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
