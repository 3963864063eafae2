package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidPosition      ErrorCode = 102
	ErrCodeInvalidRatio         ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105
	ErrCodeInvalidType          ErrorCode = 106

	// Data/Resource errors (200-299)
	ErrCodeInsufficientHistory ErrorCode = 200
	ErrCodeDataNotFound        ErrorCode = 201
	ErrCodeQueryFailed         ErrorCode = 202
	ErrCodeBarOutOfOrder       ErrorCode = 203

	// Indicator errors (300-399)
	ErrCodeIndicatorCalculation ErrorCode = 300

	// Strategy errors (400-499)
	ErrCodeUnknownStrategy      ErrorCode = 400
	ErrCodeStrategyConfigError  ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402

	// Trading errors (500-599)
	ErrCodeOrderRejected        ErrorCode = 500
	ErrCodeExternalService      ErrorCode = 501
	ErrCodeConfirmationTimeout  ErrorCode = 502
	ErrCodePositionNotFound     ErrorCode = 503
	ErrCodeInsufficientQuantity ErrorCode = 504

	// State machine errors (600-699)
	ErrCodeIllegalTransition ErrorCode = 600

	// Backtest errors (700-799)
	ErrCodeBacktestConfigError ErrorCode = 700
	ErrCodeBacktestDataError   ErrorCode = 701

	// Cache errors (800-899)
	ErrCodeCacheMiss         ErrorCode = 800
	ErrCodeCacheUnavailable  ErrorCode = 801
	ErrCodeCacheCorruptState ErrorCode = 802
)
