// Package config holds the application configuration for the live
// trading daemon: a YAML file with environment variable overrides.
package config

import (
	"os"
	"strconv"

	"github.com/halcyon-lab/swing-trading/internal/cache"
	"github.com/halcyon-lab/swing-trading/internal/orchestrator"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PositionConfig seeds one tracked position at startup.
type PositionConfig struct {
	Symbol    string  `yaml:"symbol"`
	BuyRatio  float64 `yaml:"buy_ratio"`
	SellRatio float64 `yaml:"sell_ratio"`
	Allocated float64 `yaml:"allocated"`
}

// Config holds all application configuration.
type Config struct {
	Account  string `yaml:"account"`
	Strategy string `yaml:"strategy"`
	Database struct {
		DuckDBPath string `yaml:"duckdb_path"`
	} `yaml:"database"`
	Redis        cache.RedisConfig           `yaml:"redis"`
	Schedule     orchestrator.ScheduleConfig `yaml:"schedule"`
	Orchestrator orchestrator.Config         `yaml:"orchestrator"`
	Positions    []PositionConfig            `yaml:"positions"`
	Debug        bool                        `yaml:"debug"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is not an error; overrides and defaults
// still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "reading config %s", path)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "parsing config %s", path)
		}
	}

	if v := os.Getenv("SWING_ACCOUNT"); v != "" {
		cfg.Account = v
	}

	if v := os.Getenv("SWING_DUCKDB_PATH"); v != "" {
		cfg.Database.DuckDBPath = v
	}

	if v := os.Getenv("SWING_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if v := os.Getenv("SWING_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SWING_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	if v := os.Getenv("SWING_INTRADAY_CRON"); v != "" {
		cfg.Schedule.IntradaySpec = v
	}

	if v := os.Getenv("SWING_EOD_CRON"); v != "" {
		cfg.Schedule.EODSpec = v
	}

	if cfg.Database.DuckDBPath == "" {
		cfg.Database.DuckDBPath = "data/swing.db"
	}

	for i := range cfg.Positions {
		if cfg.Positions[i].BuyRatio == 0 {
			cfg.Positions[i].BuyRatio = 30
		}

		if cfg.Positions[i].SellRatio == 0 {
			cfg.Positions[i].SellRatio = 50
		}
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Account == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "account is required")
	}

	if len(c.Positions) == 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "at least one position is required")
	}

	for _, p := range c.Positions {
		if p.Symbol == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration, "position symbol is required")
		}

		if p.BuyRatio <= 0 || p.BuyRatio > 100 {
			return errors.Newf(errors.ErrCodeInvalidRatio,
				"buy ratio for %s must be in (0, 100], got %f", p.Symbol, p.BuyRatio)
		}

		if p.SellRatio <= 0 || p.SellRatio > 100 {
			return errors.Newf(errors.ErrCodeInvalidRatio,
				"sell ratio for %s must be in (0, 100], got %f", p.Symbol, p.SellRatio)
		}

		if p.Allocated <= 0 {
			return errors.Newf(errors.ErrCodeInvalidConfiguration,
				"allocated amount for %s must be positive", p.Symbol)
		}
	}

	return nil
}
