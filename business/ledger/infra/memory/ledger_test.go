package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/business/ledger/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
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

func eth(s string) asset.Amount { return asset.MustParse(asset.ETH, s) }

func TestLedger_Movements(t *testing.T) {
	ctx := context.Background()
	l := New(asset.DefaultRegistry(), &mockLogger{})

	require.NoError(t, l.Credit(ctx, "alice", eth("10"), "dep-1"))
	require.NoError(t, l.Lock(ctx, "alice", eth("4"), "lock-1"))
	require.NoError(t, l.Debit(ctx, "alice", eth("1.5"), "wd-1"))
	require.NoError(t, l.Release(ctx, "alice", eth("1"), "rel-1"))
	require.NoError(t, l.Settle(ctx, "alice", eth("2"), "bid-1"))

	b, err := l.Balance(ctx, "alice", "ETH")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(eth("5.5")), "available = %s", b.Available)
	assert.True(t, b.Locked.Equal(eth("1")), "locked = %s", b.Locked)
	assert.True(t, b.Total().Equal(eth("6.5")))
	assert.Len(t, l.Journal(), 5)
}

func TestLedger_Errors(t *testing.T) {
	tests := []struct {
		name     string
		op       func(l *Ledger) error
		wantCode apperror.Code
	}{
		{
			name:     "debit_beyond_available",
			op:       func(l *Ledger) error { return l.Debit(context.Background(), "alice", eth("2"), "") },
			wantCode: apperror.CodeInsufficientBalance,
		},
		{
			name:     "lock_beyond_available",
			op:       func(l *Ledger) error { return l.Lock(context.Background(), "alice", eth("1.000001"), "") },
			wantCode: apperror.CodeInsufficientBalance,
		},
		{
			name:     "release_more_than_locked",
			op:       func(l *Ledger) error { return l.Release(context.Background(), "alice", eth("0.1"), "") },
			wantCode: apperror.CodeInsufficientBalance,
		},
		{
			name:     "settle_from_available",
			op:       func(l *Ledger) error { return l.Settle(context.Background(), "alice", eth("0.5"), "") },
			wantCode: apperror.CodeInsufficientBalance,
		},
		{
			name:     "zero_amount",
			op:       func(l *Ledger) error { return l.Credit(context.Background(), "alice", eth("0"), "") },
			wantCode: apperror.CodeValidationError,
		},
		{
			name:     "missing_account",
			op:       func(l *Ledger) error { return l.Credit(context.Background(), "", eth("1"), "") },
			wantCode: apperror.CodeValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(asset.DefaultRegistry(), &mockLogger{})
			require.NoError(t, l.Credit(context.Background(), "alice", eth("1"), "seed"))

			err := tt.op(l)
			assert.Equal(t, tt.wantCode, apperror.GetCode(err), "err = %v", err)

			b, _ := l.Balance(context.Background(), "alice", "ETH")
			assert.True(t, b.Available.Equal(eth("1")), "failed movement changed balance: %s", b.Available)
		})
	}
}

func TestLedger_InsufficientBalanceMatchesSentinel(t *testing.T) {
	l := New(asset.DefaultRegistry(), &mockLogger{})
	err := l.Debit(context.Background(), "bob", eth("1"), "")
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))
}

func TestLedger_RefIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := New(asset.DefaultRegistry(), &mockLogger{})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Credit(ctx, "alice", eth("1"), "refund-42"))
	}
	// The same ref under a different kind is a distinct movement.
	require.NoError(t, l.Debit(ctx, "alice", eth("1"), "refund-42"))

	b, err := l.Balance(ctx, "alice", "ETH")
	require.NoError(t, err)
	assert.True(t, b.Available.IsZero(), "available = %s", b.Available)
	assert.Len(t, l.Journal(), 2)
}

func TestLedger_ConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	l := New(asset.DefaultRegistry(), &mockLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Credit(ctx, "pool", eth("0.1"), "")
		}()
	}
	wg.Wait()

	b, err := l.Balance(ctx, "pool", "ETH")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(eth("5")), "available = %s", b.Available)
}
