package backtest

import (
	"strings"
	"testing"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestUnmarshalYAML() {
	raw := `
initial_capital: 5000000
broker: kis
buy_ratio: 25
sell_ratio: 50
eval_start: 2024-01-02T00:00:00Z
strategy: single_ema
`

	var cfg Config
	suite.Require().NoError(yaml.Unmarshal([]byte(raw), &cfg))

	suite.Equal(5_000_000.0, cfg.InitialCapital)
	suite.Equal(commission.BrokerKIS, cfg.Broker)
	suite.Equal(25.0, cfg.BuyRatio)
	suite.Equal(50.0, cfg.SellRatio)
	suite.Equal("single_ema", cfg.StrategyName)

	start, err := cfg.EvalStart.Take()
	suite.NoError(err)
	suite.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLWithoutEvalStart() {
	raw := `
initial_capital: 5000000
broker: zero_commission
buy_ratio: 30
sell_ratio: 50
`

	var cfg Config
	suite.Require().NoError(yaml.Unmarshal([]byte(raw), &cfg))
	suite.True(cfg.EvalStart.IsNone())
}

func (suite *ConfigTestSuite) TestValidate() {
	cfg := DefaultConfig()
	suite.NoError(cfg.Validate())

	bad := cfg
	bad.InitialCapital = 0
	suite.Error(bad.Validate())

	bad = cfg
	bad.BuyRatio = 120
	suite.Error(bad.Validate())

	bad = cfg
	bad.SellRatio = 0
	suite.Error(bad.Validate())
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	cfg := DefaultConfig()

	schema, err := cfg.GenerateSchemaJSON()
	suite.Require().NoError(err)

	suite.True(strings.Contains(schema, "initial_capital"))
	suite.True(strings.Contains(schema, "kis"))
	suite.True(strings.Contains(schema, "zero_commission"))
}
