package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type DuckDBStoreTestSuite struct {
	suite.Suite
	store *DuckDBStore
	ctx   context.Context
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, new(DuckDBStoreTestSuite))
}

func (suite *DuckDBStoreTestSuite) SetupTest() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)

	store, err := NewDuckDBStore("", log)
	suite.Require().NoError(err)

	suite.store = store
	suite.ctx = context.Background()
}

func (suite *DuckDBStoreTestSuite) TearDownTest() {
	suite.NoError(suite.store.Close())
}

func (suite *DuckDBStoreTestSuite) writeCSV(name, content string) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (suite *DuckDBStoreTestSuite) TestLoadBarsCSVExplicitSymbol() {
	path := suite.writeCSV("bars.csv", `date,open,high,low,close,volume
2024-03-04,10000,10300,9900,10200,800000
2024-03-05,10200,10400,10100,10350,750000
`)

	bars, err := suite.store.LoadBarsCSV(suite.ctx, path, "005930")
	suite.NoError(err)
	suite.Len(bars, 2)
	suite.Equal("005930", bars[0].Symbol)
	suite.Equal(float64(10350), bars[1].Close)
}

func (suite *DuckDBStoreTestSuite) TestLoadBarsCSVSymbolFromFile() {
	path := suite.writeCSV("bars.csv", `symbol,date,open,high,low,close,volume
005930,2024-03-04,10000,10300,9900,10200,800000
005930,2024-03-05,10200,10400,10100,10350,750000
`)

	bars, err := suite.store.LoadBarsCSV(suite.ctx, path, "")
	suite.NoError(err)
	suite.Len(bars, 2)
	suite.Equal("005930", bars[0].Symbol)
}

func (suite *DuckDBStoreTestSuite) TestLoadBarsCSVMultiSymbolNeedsExplicit() {
	path := suite.writeCSV("bars.csv", `symbol,date,open,high,low,close,volume
005930,2024-03-04,10000,10300,9900,10200,800000
000660,2024-03-04,50000,51000,49500,50500,400000
`)

	_, err := suite.store.LoadBarsCSV(suite.ctx, path, "")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *DuckDBStoreTestSuite) TestLoadBarsCSVEmptyFile() {
	path := suite.writeCSV("bars.csv", `symbol,date,open,high,low,close,volume
`)

	_, err := suite.store.LoadBarsCSV(suite.ctx, path, "")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}
