package domain

import "github.com/fd1az/stablecoin-engine/internal/apperror"

// Invariant violations. Compare with errors.Is.
var (
	ErrInsufficientCollateral = apperror.New(apperror.CodeInsufficientCollateral)
	ErrDebtExceeded           = apperror.New(apperror.CodeDebtExceeded)
	ErrPositionClosed         = apperror.New(apperror.CodePositionClosed)
	ErrInvalidState           = apperror.New(apperror.CodeInvalidState)
	ErrPositionNotFound       = apperror.New(apperror.CodePositionNotFound)
)

func violation(code apperror.Code, context string) error {
	return apperror.New(code, apperror.WithContext(context), apperror.WithRetryable(false))
}
