package binancefutures

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func TestSource_Quote(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"symbol":"ETHUSDT","markPrice":"3399.87000000","indexPrice":"3400.01","estimatedSettlePrice":"3400.00","lastFundingRate":"0.00010000","interestRate":"0.00010000","nextFundingTime":%d,"time":%d}`,
			at.Add(time.Hour).UnixMilli(), at.UnixMilli())
	}))
	defer server.Close()

	src := New(Config{
		ID:       "binance-futures",
		Priority: 2,
		BaseURL:  server.URL,
		Symbols:  map[string]string{"eth/usd": "ETHUSDT"},
	}, &mockLogger{})

	q, err := src.Quote(context.Background(), "eth", "usd")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("3399.87")), "price = %s", q.Price)
	assert.Equal(t, at, q.ObservedAt)
	assert.Equal(t, "binance-futures", q.SourceID)
	assert.EqualValues(t, "ETH", q.Base)
	assert.EqualValues(t, "USD", q.Quote)
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      apperror.Code
		wantRetryable bool
	}{
		{
			name:     "invalid_symbol",
			status:   http.StatusBadRequest,
			body:     `{"code":-1121,"msg":"Invalid symbol."}`,
			wantCode: apperror.CodeExternalServiceError,
		},
		{
			name:          "rate_limited",
			status:        http.StatusTooManyRequests,
			body:          `{"code":-1003,"msg":"Too many requests."}`,
			wantCode:      apperror.CodeRateLimitExceeded,
			wantRetryable: true,
		},
		{
			name:     "malformed_price",
			status:   http.StatusOK,
			body:     `{"symbol":"ETHUSDT","markPrice":"n/a","time":1}`,
			wantCode: apperror.CodeInvalidQuote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			src := New(Config{ID: "binance-futures", BaseURL: server.URL,
				Symbols: map[string]string{"ETH/USD": "ETHUSDT"}}, &mockLogger{})
			_, err := src.Quote(context.Background(), "ETH", "USD")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperror.GetCode(err), "err = %v", err)
			assert.Equal(t, tt.wantRetryable, apperror.IsRetryable(err))
		})
	}
}

func TestSource_UnknownPair(t *testing.T) {
	src := New(Config{ID: "binance-futures", BaseURL: "http://127.0.0.1:1"}, &mockLogger{})
	_, err := src.Quote(context.Background(), "WBTC", "USD")
	assert.Equal(t, apperror.CodeSourceUnavailable, apperror.GetCode(err))
	assert.False(t, apperror.IsRetryable(err))
}
