package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External collaborators
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeCircuitOpen          Code = "CIRCUIT_OPEN"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Oracle error codes
const (
	CodeNoHealthySource    Code = "NO_HEALTHY_SOURCE"
	CodeStaleQuote         Code = "STALE_QUOTE"
	CodeInvalidQuote       Code = "INVALID_QUOTE"
	CodeSourceUnavailable  Code = "SOURCE_UNAVAILABLE"
	CodeContractCallFailed Code = "CONTRACT_CALL_FAILED"
	CodeWebSocketClosed    Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError Code = "WEBSOCKET_SEND_ERROR"
)

// Risk and position error codes
const (
	CodeInvalidThreshold       Code = "INVALID_THRESHOLD"
	CodeInsufficientCollateral Code = "INSUFFICIENT_COLLATERAL"
	CodeDebtExceeded           Code = "DEBT_EXCEEDED"
	CodePositionClosed         Code = "POSITION_CLOSED"
	CodePositionNotFound       Code = "POSITION_NOT_FOUND"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeAuctionFailed          Code = "AUCTION_FAILED"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
)

// Workflow error codes
const (
	CodeStepFailed                   Code = "STEP_FAILED"
	CodeCompensationFailed           Code = "COMPENSATION_FAILED"
	CodeSagaCancelled                Code = "SAGA_CANCELLED"
	CodeManualReconciliationRequired Code = "MANUAL_RECONCILIATION_REQUIRED"
	CodeEventStoreError              Code = "EVENT_STORE_ERROR"
)
