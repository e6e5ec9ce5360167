// Package bank implements the bank port over HTTP and in process.
package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/stablecoin-engine/business/funding/app"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/circuitbreaker"
	"github.com/fd1az/stablecoin-engine/internal/httpclient"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/stablecoin-engine/business/funding/infra/bank"

	depositsEndpoint  = "/v1/deposits/confirm"
	transfersEndpoint = "/v1/transfers"
	defaultTimeout    = 10 * time.Second
)

// Config holds the bank API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// transferResponse is the bank's acknowledgement.
type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// HTTPBank calls the bank REST API behind a circuit breaker.
type HTTPBank struct {
	client *httpclient.Client
	cb     *circuitbreaker.CircuitBreaker[string]
	logger logger.LoggerInterface
}

var _ app.Bank = (*HTTPBank)(nil)

// NewHTTP creates an HTTP bank client.
func NewHTTP(cfg Config, log logger.LoggerInterface) (*HTTPBank, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("bank: url is required"))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client, err := httpclient.New("bank", cfg.BaseURL,
		httpclient.WithTimeout(timeout),
		httpclient.WithTracer(otel.Tracer(tracerName)),
		httpclient.WithBodyTracing(),
		httpclient.WithHeader("Authorization", "Bearer "+cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("bank")
	cbCfg.IsSuccessful = func(err error) bool { return err == nil || !apperror.IsRetryable(err) }
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "bank circuit breaker state changed",
			"from", from.String(), "to", to.String())
	}

	return &HTTPBank{
		client: client,
		cb:     circuitbreaker.New[string](cbCfg),
		logger: log,
	}, nil
}

// Healthy is false while the breaker is open.
func (b *HTTPBank) Healthy() bool { return !b.cb.IsOpen() }

func (b *HTTPBank) ConfirmDeposit(ctx context.Context, req app.TransferRequest) (string, error) {
	return b.post(ctx, depositsEndpoint, "confirm_deposit", req)
}

func (b *HTTPBank) InitiateTransfer(ctx context.Context, req app.TransferRequest) (string, error) {
	return b.post(ctx, transfersEndpoint, "transfer", req)
}

func (b *HTTPBank) post(ctx context.Context, path, endpoint string, req app.TransferRequest) (string, error) {
	return b.cb.Execute(func() (string, error) {
		var res transferResponse
		err := b.client.PostJSON(ctx, path, map[string]string{
			"reference":   req.Reference,
			"account":     req.Account,
			"destination": req.Destination,
			"asset":       req.Amount.Code().String(),
			"amount":      req.Amount.Decimal().String(),
		}, &res,
			httpclient.WithCallHeader("Idempotency-Key", req.Reference),
			httpclient.WithAttributes(attribute.String("endpoint", endpoint)),
		)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
				return "", apperror.New(apperror.CodeServiceTimeout,
					apperror.WithContext("bank: "+endpoint), apperror.WithCause(err))
			}
			return "", err
		}
		if res.TransactionID == "" {
			return "", apperror.New(apperror.CodeExternalServiceError,
				apperror.WithContext("bank: "+endpoint+" returned no transaction id"),
				apperror.WithRetryable(false))
		}
		b.logger.Debug(ctx, "bank call accepted",
			"endpoint", endpoint, "reference", req.Reference, "tx_id", res.TransactionID)
		return res.TransactionID, nil
	})
}
