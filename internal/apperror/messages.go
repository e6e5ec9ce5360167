package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",
	CodeCircuitOpen:          "Circuit breaker is open",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Oracle
	CodeNoHealthySource:    "No healthy price source produced a fresh quote",
	CodeStaleQuote:         "Price quote is older than the allowed age",
	CodeInvalidQuote:       "Invalid quote data",
	CodeSourceUnavailable:  "Price source unavailable",
	CodeContractCallFailed: "Smart contract call failed",
	CodeWebSocketClosed:    "WebSocket connection closed",
	CodeWebSocketSendError: "Failed to send WebSocket message",

	// Risk and positions
	CodeInvalidThreshold:       "Liquidation threshold must lie between 100% and 1000%",
	CodeInsufficientCollateral: "Collateral does not cover the requested debt",
	CodeDebtExceeded:           "Amount exceeds outstanding debt",
	CodePositionClosed:         "Position is closed",
	CodePositionNotFound:       "Position not found",
	CodeConcurrentModification: "Aggregate was modified concurrently",
	CodeAuctionFailed:          "No bid cleared the debt value",
	CodeInsufficientBalance:    "Insufficient account balance",

	// Workflow
	CodeStepFailed:                   "Saga step failed",
	CodeCompensationFailed:           "Compensation failed, operator attention required",
	CodeSagaCancelled:                "Saga cancelled",
	CodeManualReconciliationRequired: "Funds may be in flight, manual reconciliation required",
	CodeEventStoreError:              "Event store error",
}
