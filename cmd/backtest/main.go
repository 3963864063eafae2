package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/halcyon-lab/swing-trading/internal/backtest"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func loadConfig(path string) (backtest.Config, error) {
	cfg := backtest.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if cmd.Bool("schema") {
		schema, err := cfg.GenerateSchemaJSON()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	if cmd.String("csv") == "" {
		return fmt.Errorf("--csv is required")
	}

	logg, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logg.Sync() }()

	// An in-memory DuckDB instance does the CSV parsing.
	db, err := store.NewDuckDBStore("", logg)
	if err != nil {
		return err
	}
	defer db.Close()

	bars, err := db.LoadBarsCSV(ctx, cmd.String("csv"), cmd.String("symbol"))
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(cfg, logg)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(bars)))
	bar.Describe(fmt.Sprintf("Backtesting %s", cmd.String("csv")))
	engine.OnProgress = func(done, _ int) {
		_ = bar.Set(done)
	}

	result, err := engine.Run(ctx, bars)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(result)
	if err != nil {
		return err
	}

	if path := cmd.String("out"); path != "" {
		return os.WriteFile(path, out, 0o644)
	}

	fmt.Println(string(out))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay daily bars from a CSV through a strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the backtest config YAML",
				Value:   "configs/backtest.yaml",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Path to the daily-bar CSV file",
			},
			&cli.StringFlag{
				Name:  "symbol",
				Usage: "Symbol to assign when the CSV has no symbol column",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the result YAML to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "Print the config JSON schema and exit",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
