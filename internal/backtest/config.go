package backtest

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
)

// Config drives one backtest run.
type Config struct {
	InitialCapital float64           `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital in KRW,minimum=0"`
	Broker         commission.Broker `yaml:"broker" json:"broker" jsonschema:"title=Broker,description=The broker whose fees and taxes apply to every fill"`
	// BuyRatio is the percentage of current capital committed per buy
	// tranche; SellRatio is the percentage of held shares sold on a
	// partial sell.
	BuyRatio  float64 `yaml:"buy_ratio" json:"buy_ratio" jsonschema:"title=Buy Ratio,description=Percent of capital committed per buy tranche,minimum=0,maximum=100"`
	SellRatio float64 `yaml:"sell_ratio" json:"sell_ratio" jsonschema:"title=Sell Ratio,description=Percent of held shares sold on a partial sell,minimum=0,maximum=100"`
	// EvalStart skips bars before this date. Bars before it still feed the
	// indicator warm-up.
	EvalStart    optional.Option[time.Time] `yaml:"eval_start" json:"eval_start" jsonschema:"title=Evaluation Start,description=Optional first date decisions are evaluated on"`
	StrategyName string                     `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy,description=Strategy variant name; empty selects the default"`
}

// UnmarshalYAML implements custom unmarshaling for Config.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		InitialCapital float64           `yaml:"initial_capital"`
		Broker         commission.Broker `yaml:"broker"`
		BuyRatio       float64           `yaml:"buy_ratio"`
		SellRatio      float64           `yaml:"sell_ratio"`
		EvalStart      *time.Time        `yaml:"eval_start"`
		StrategyName   string            `yaml:"strategy"`
	}

	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}

	c.InitialCapital = p.InitialCapital
	c.Broker = p.Broker
	c.BuyRatio = p.BuyRatio
	c.SellRatio = p.SellRatio
	c.StrategyName = p.StrategyName

	if p.EvalStart != nil {
		c.EvalStart = optional.Some(*p.EvalStart)
	}

	return nil
}

// Validate checks the config before a run.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"initial capital must be positive, got %f", c.InitialCapital)
	}

	if c.BuyRatio <= 0 || c.BuyRatio > 100 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"buy ratio must be in (0, 100], got %f", c.BuyRatio)
	}

	if c.SellRatio <= 0 || c.SellRatio > 100 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"sell ratio must be in (0, 100], got %f", c.SellRatio)
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if strings.Contains(t.String(), "commission.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission.AllBrokers,
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for the backtest engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the Config.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// DefaultConfig returns a runnable config with KIS fees and the default
// strategy.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10_000_000,
		Broker:         commission.BrokerKIS,
		BuyRatio:       30,
		SellRatio:      50,
		EvalStart:      optional.None[time.Time](),
	}
}
