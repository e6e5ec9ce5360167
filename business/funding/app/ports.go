// Package app runs deposit and withdrawal commands and defines the bank port.
package app

import (
	"context"

	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// TransferRequest asks the bank to move funds for one funding transaction.
// Reference is the transaction id and makes the call idempotent on the
// bank side.
type TransferRequest struct {
	Reference   string       `json:"reference"`
	Account     string       `json:"account"`
	Destination string       `json:"destination,omitempty"`
	Amount      asset.Amount `json:"amount"`
}

// Bank is the external banking rail.
type Bank interface {
	// ConfirmDeposit acknowledges received funds and returns the bank's
	// transaction id.
	ConfirmDeposit(ctx context.Context, req TransferRequest) (string, error)
	// InitiateTransfer pays out a withdrawal and returns the bank's
	// transaction id. Once it returns, funds may be in flight.
	InitiateTransfer(ctx context.Context, req TransferRequest) (string, error)
}
