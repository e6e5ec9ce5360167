package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETH/USD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSD","price":"2000.50"}`))
	}))
	defer srv.Close()

	c, err := New("ticker", srv.URL+"/", WithHeader("X-Api-Key", "k"))
	require.NoError(t, err)

	var out struct {
		Price string `json:"price"`
	}
	err = c.Get(context.Background(), "api/v3/ticker/price", url.Values{"symbol": {"ETH/USD"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "2000.50", out.Price)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "ref-1", r.Header.Get("Idempotency-Key"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "10.5", in["amount"])
		_, _ = w.Write([]byte(`{"transaction_id":"tx-9"}`))
	}))
	defer srv.Close()

	c, err := New("bank", srv.URL)
	require.NoError(t, err)

	var out struct {
		ID string `json:"transaction_id"`
	}
	err = c.PostJSON(context.Background(), "/v1/transfers", map[string]string{"amount": "10.5"}, &out,
		WithCallHeader("Idempotency-Key", "ref-1"))
	require.NoError(t, err)
	assert.Equal(t, "tx-9", out.ID)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      apperror.Code
		retryable bool
	}{
		{http.StatusTooManyRequests, apperror.CodeRateLimitExceeded, true},
		{http.StatusBadGateway, apperror.CodeServiceUnavailable, true},
		{http.StatusGatewayTimeout, apperror.CodeServiceTimeout, true},
		{http.StatusBadRequest, apperror.CodeExternalServiceError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, err := New("bank", srv.URL)
			require.NoError(t, err)
			err = c.PostJSON(context.Background(), "/v1/transfers", struct{}{}, nil)
			assert.Equal(t, tt.code, apperror.GetCode(err))
			assert.Equal(t, tt.retryable, apperror.IsRetryable(err))
		})
	}
}

func TestClient_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	c, err := New("ticker", srv.URL)
	require.NoError(t, err)

	var out map[string]string
	err = c.Get(context.Background(), "/", nil, &out)
	assert.Equal(t, apperror.CodeExternalServiceError, apperror.GetCode(err))
	assert.False(t, apperror.IsRetryable(err))
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("bank", "not a url")
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}
