package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()

	os.Unsetenv("SWING_ACCOUNT")
	os.Unsetenv("SWING_REDIS_ADDR")
}

func (suite *ConfigTestSuite) write(content string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (suite *ConfigTestSuite) TestLoadAppliesDefaults() {
	path := suite.write(`
account: "12345678-01"
positions:
  - symbol: "005930"
    allocated: 1000000
`)

	cfg, err := Load(path)
	suite.Require().NoError(err)

	suite.Equal("12345678-01", cfg.Account)
	suite.Equal("data/swing.db", cfg.Database.DuckDBPath)
	suite.Require().Len(cfg.Positions, 1)
	suite.Equal(30.0, cfg.Positions[0].BuyRatio)
	suite.Equal(50.0, cfg.Positions[0].SellRatio)
	suite.NoError(cfg.Validate())
}

func (suite *ConfigTestSuite) TestLoadMissingFile() {
	cfg, err := Load(filepath.Join(suite.dir, "absent.yaml"))
	suite.Require().NoError(err)
	suite.Error(cfg.Validate())
}

func (suite *ConfigTestSuite) TestEnvOverrides() {
	path := suite.write(`
account: "from-file"
redis:
  addr: "file:6379"
positions:
  - symbol: "005930"
    allocated: 1000000
`)

	suite.T().Setenv("SWING_ACCOUNT", "from-env")
	suite.T().Setenv("SWING_REDIS_ADDR", "env:6379")

	cfg, err := Load(path)
	suite.Require().NoError(err)

	suite.Equal("from-env", cfg.Account)
	suite.Equal("env:6379", cfg.Redis.Addr)
}

func (suite *ConfigTestSuite) TestValidateRejectsBadRatios() {
	path := suite.write(`
account: "12345678-01"
positions:
  - symbol: "005930"
    allocated: 1000000
    buy_ratio: 150
`)

	cfg, err := Load(path)
	suite.Require().NoError(err)
	suite.Error(cfg.Validate())
}
