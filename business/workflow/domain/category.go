package domain

import (
	"context"
	"errors"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Category is the error taxonomy callers see on a failed saga.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryInvariant    Category = "invariant"
	CategoryTransient    Category = "transient"
	CategorySaga         Category = "saga"
	CategoryCompensation Category = "compensation"
	CategoryConcurrency  Category = "concurrency"
	CategoryCancelled    Category = "cancelled"
)

// Categorize maps an error onto the taxonomy.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	switch apperror.GetCode(err) {
	case apperror.CodeValidationError,
		apperror.CodeInvalidInput,
		apperror.CodeRequiredField,
		apperror.CodeInvalidThreshold,
		apperror.CodePositionNotFound,
		apperror.CodeNotFound:
		return CategoryValidation
	case apperror.CodeInsufficientCollateral,
		apperror.CodeInsufficientBalance,
		apperror.CodeDebtExceeded,
		apperror.CodePositionClosed,
		apperror.CodeInvalidState:
		return CategoryInvariant
	case apperror.CodeConcurrentModification:
		return CategoryConcurrency
	case apperror.CodeCompensationFailed,
		apperror.CodeManualReconciliationRequired:
		return CategoryCompensation
	case apperror.CodeSagaCancelled:
		return CategoryCancelled
	case apperror.CodeAuctionFailed, apperror.CodeStepFailed:
		return CategorySaga
	case apperror.CodeServiceTimeout,
		apperror.CodeServiceUnavailable,
		apperror.CodeCircuitOpen,
		apperror.CodeRateLimitExceeded,
		apperror.CodeSourceUnavailable,
		apperror.CodeNoHealthySource,
		apperror.CodeStaleQuote,
		apperror.CodeExternalServiceError:
		return CategoryTransient
	}
	if apperror.IsRetryable(err) {
		return CategoryTransient
	}
	return CategorySaga
}
