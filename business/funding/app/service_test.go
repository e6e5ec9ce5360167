package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/business/funding/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
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

func usd(s string) asset.Amount { return asset.MustParse(asset.USD, s) }

func TestService_DepositLifecycle(t *testing.T) {
	ctx := context.Background()
	bus := eventstore.NewBus()
	var published []string
	bus.Subscribe("", func(_ context.Context, r eventstore.Record) error {
		published = append(published, r.Type)
		return nil
	})
	svc := NewService(eventstore.NewMemoryStore(), bus, &mockLogger{})

	s, err := svc.Initiate(ctx, domain.KindDeposit, "dep-1", "alice", usd("100"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInitiated, s.Status)

	s, err = svc.Complete(ctx, "dep-1", "bank-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, s.Status)
	assert.Equal(t, "bank-1", s.ExternalTxID)
	assert.Equal(t, int64(2), s.Version)

	_, err = svc.Fail(ctx, "dep-1", "late", false, "")
	assert.Equal(t, apperror.CodeInvalidState, apperror.GetCode(err))

	assert.Equal(t, []string{domain.EventDepositInitiated, domain.EventDepositCompleted}, published)
	assert.Zero(t, svc.locks.Len(), "per-transaction locks are released")
}

func TestService_WithdrawalFailIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	svc := NewService(store, nil, &mockLogger{})

	_, err := svc.Initiate(ctx, domain.KindWithdrawal, "wd-1", "alice", usd("50"), "IBAN-1")
	require.NoError(t, err)

	s, err := svc.Fail(ctx, "wd-1", "bank timeout", true, "bank-9")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, s.Status)
	assert.True(t, s.ManualReconciliation)
	assert.Equal(t, "bank-9", s.ExternalTxID)

	s, err = svc.Fail(ctx, "wd-1", "bank timeout", true, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Version)

	ids, err := store.AggregateIDs(ctx, domain.KindWithdrawal.AggregateType())
	require.NoError(t, err)
	assert.Equal(t, []string{"wd-1"}, ids)
}

func TestService_InitiateValidation(t *testing.T) {
	tests := []struct {
		name        string
		kind        domain.Kind
		account     string
		amount      asset.Amount
		destination string
		want        apperror.Code
	}{
		{name: "unknown_kind", kind: "loan", account: "a", amount: usd("1"), want: apperror.CodeValidationError},
		{name: "no_account", kind: domain.KindDeposit, amount: usd("1"), want: apperror.CodeValidationError},
		{name: "zero_amount", kind: domain.KindDeposit, account: "a", amount: usd("0"), want: apperror.CodeValidationError},
		{name: "withdrawal_without_destination", kind: domain.KindWithdrawal, account: "a", amount: usd("1"), want: apperror.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(eventstore.NewMemoryStore(), nil, &mockLogger{})
			_, err := svc.Initiate(context.Background(), tt.kind, "id-1", tt.account, tt.amount, tt.destination)
			assert.Equal(t, tt.want, apperror.GetCode(err))
		})
	}
}
