package httpclient

import (
	"fmt"
	"net/http"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// ErrorMapper turns a response into an error. It returns nil for success.
type ErrorMapper func(status int, body []byte) error

// StatusError classifies non-2xx responses so callers can retry with
// apperror.IsRetryable. Client errors other than 404, 408 and 429 are
// permanent.
func StatusError(provider string) ErrorMapper {
	return func(status int, body []byte) error {
		if status >= 200 && status < 300 {
			return nil
		}
		msg := fmt.Sprintf("%s: HTTP %d: %s", provider, status, truncate(body, 200))
		switch {
		case status == http.StatusTooManyRequests:
			return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithContext(msg))
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return apperror.New(apperror.CodeServiceTimeout, apperror.WithContext(msg))
		case status >= 500:
			return apperror.New(apperror.CodeServiceUnavailable, apperror.WithContext(msg))
		case status == http.StatusNotFound:
			return apperror.New(apperror.CodeNotFound, apperror.WithContext(msg))
		default:
			return apperror.New(apperror.CodeExternalServiceError,
				apperror.WithContext(msg), apperror.WithRetryable(false))
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
