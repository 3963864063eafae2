package logger

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (suite *LoggerTestSuite) TestNewLogger() {
	logger, err := NewLogger()
	suite.NoError(err)
	suite.NotNil(logger)
	suite.NotNil(logger.Logger)
}

func (suite *LoggerTestSuite) TestNewDebugLogger() {
	logger, err := NewDebugLogger()
	suite.NoError(err)
	suite.NotNil(logger)
	suite.True(logger.Core().Enabled(zap.DebugLevel))
}

func (suite *LoggerTestSuite) TestLoggerSync() {
	logger, err := NewLogger()
	suite.NoError(err)
	suite.NotNil(logger)

	// Sync may return an error on some systems (e.g., when syncing stdout)
	// but it should not panic
	_ = logger.Sync()
}

func (suite *LoggerTestSuite) TestLoggerSyncNilLogger() {
	logger := &Logger{Logger: nil}

	// Sync should not panic and should return nil for a nil inner logger
	err := logger.Sync()
	suite.NoError(err)
}

func (suite *LoggerTestSuite) TestNamed() {
	logger, err := NewLogger()
	suite.NoError(err)

	child := logger.Named("orchestrator")
	suite.NotNil(child)
	suite.NotSame(logger, child)

	// Named on a nil inner logger returns the receiver unchanged
	empty := &Logger{Logger: nil}
	suite.Same(empty, empty.Named("x"))
}

func (suite *LoggerTestSuite) TestWithFields() {
	logger, err := NewLogger()
	suite.NoError(err)

	child := logger.With(zap.String("symbol", "005930"))
	suite.NotNil(child)

	// Should not panic
	child.Info("test message with fields")
	logger.Info("test info message")
	logger.Debug("test debug message")
	logger.Warn("test warn message")
	logger.Error("test error message")
}
