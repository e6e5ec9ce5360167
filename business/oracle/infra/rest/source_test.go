package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

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
	closeTime := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tickerEndpoint {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "ETHUSDT" {
			t.Errorf("symbol = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TickerResponse{
			Symbol:             "ETHUSDT",
			LastPrice:          "3401.25",
			Volume:             "1234.5",
			PriceChangePercent: "-2.1",
			CloseTime:          closeTime.UnixMilli(),
		})
	}))
	defer server.Close()

	src, err := New(Config{
		ID:       "ticker",
		Priority: 2,
		BaseURL:  server.URL,
		Symbols:  map[string]string{"eth/usd": "ETHUSDT"},
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q, err := src.Quote(context.Background(), "ETH", "USD")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("3401.25")) {
		t.Errorf("price = %s", q.Price)
	}
	if !q.ObservedAt.Equal(closeTime) {
		t.Errorf("observed at = %v, want %v", q.ObservedAt, closeTime)
	}
	if q.Volume24h == nil || q.Volume24h.String() != "1234.5" {
		t.Errorf("volume = %v", q.Volume24h)
	}
	if q.Change24h == nil || q.Change24h.String() != "-2.1" {
		t.Errorf("change = %v", q.Change24h)
	}
	if q.SourceID != "ticker" || q.Base != "ETH" || q.Quote != "USD" {
		t.Errorf("quote = %+v", q)
	}
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      apperror.Code
		wantRetryable bool
		wantContext   string
	}{
		{
			name:          "venue_rejects_symbol",
			status:        http.StatusBadRequest,
			body:          `{"code":-1121,"msg":"Invalid symbol."}`,
			wantCode:      apperror.CodeExternalServiceError,
			wantRetryable: false,
			wantContext:   "Invalid symbol.",
		},
		{
			name:          "rate_limited",
			status:        http.StatusTooManyRequests,
			body:          `{"code":-1003,"msg":"Too many requests"}`,
			wantCode:      apperror.CodeRateLimitExceeded,
			wantRetryable: true,
		},
		{
			name:          "server_error",
			status:        http.StatusBadGateway,
			body:          "bad gateway",
			wantCode:      apperror.CodeServiceUnavailable,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			src, err := New(Config{ID: "ticker", BaseURL: server.URL, Symbols: map[string]string{"ETH/USD": "ETHUSDT"}}, &mockLogger{})
			if err != nil {
				t.Fatal(err)
			}
			_, err = src.Quote(context.Background(), "ETH", "USD")
			if apperror.GetCode(err) != tt.wantCode {
				t.Fatalf("err = %v, want %s", err, tt.wantCode)
			}
			if apperror.IsRetryable(err) != tt.wantRetryable {
				t.Errorf("retryable = %v", apperror.IsRetryable(err))
			}
			if tt.wantContext != "" && !strings.Contains(err.Error(), tt.wantContext) {
				t.Errorf("err = %v, want context %q", err, tt.wantContext)
			}
		})
	}
}

func TestSource_UnknownPair(t *testing.T) {
	src, err := New(Config{ID: "ticker", BaseURL: "http://127.0.0.1:1"}, &mockLogger{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = src.Quote(context.Background(), "BTC", "USD")
	if apperror.GetCode(err) != apperror.CodeSourceUnavailable || apperror.IsRetryable(err) {
		t.Errorf("err = %v", err)
	}
}
