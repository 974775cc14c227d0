package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type fakeRiskStore struct {
	account      *models.BankAccount
	dailyCount   int
	dailySum     int64
	settledCount int
	returnCount  int
	events       []*models.RiskEvent
}

func (f *fakeRiskStore) GetAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	return f.account, nil
}

func (f *fakeRiskStore) CountTransfersSince(ctx context.Context, bankAccountID string, since time.Time) (int, error) {
	return f.dailyCount, nil
}

func (f *fakeRiskStore) SumTransfersSince(ctx context.Context, bankAccountID string, direction models.TransferDirection, since time.Time) (int64, error) {
	return f.dailySum, nil
}

func (f *fakeRiskStore) CountSettled(ctx context.Context, bankAccountID string) (int, error) {
	return f.settledCount, nil
}

func (f *fakeRiskStore) CountReturned(ctx context.Context, bankAccountID string) (int, error) {
	return f.returnCount, nil
}

func (f *fakeRiskStore) CreateRiskEvent(ctx context.Context, e *models.RiskEvent) error {
	f.events = append(f.events, e)
	return nil
}

func verifiedAccount() *models.BankAccount {
	return &models.BankAccount{
		ID:                 "ba-1",
		TenantID:           "t1",
		VerificationStatus: models.VerificationVerified,
		IsActive:           true,
	}
}

func TestAssessCleanAccountApproved(t *testing.T) {
	store := &fakeRiskStore{account: verifiedAccount(), settledCount: 5}
	svc := NewRiskService(store, DefaultRiskThresholds(), zap.NewNop())

	result, err := svc.Assess(context.Background(), RiskRequest{
		TenantID:      "t1",
		BankAccountID: "ba-1",
		Amount:        50_000,
		Direction:     models.DirectionDebit,
	})
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, 0, result.Score)
	assert.Empty(t, result.Flags)
}

func TestAssessInactiveAccountHardReject(t *testing.T) {
	account := verifiedAccount()
	account.IsActive = false
	store := &fakeRiskStore{account: account}
	svc := NewRiskService(store, DefaultRiskThresholds(), zap.NewNop())

	result, err := svc.Assess(context.Background(), RiskRequest{BankAccountID: "ba-1", Amount: 50_000})
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, []string{"account_inactive"}, result.Flags)
}

func TestAssessBelowMinimumHardReject(t *testing.T) {
	store := &fakeRiskStore{account: verifiedAccount(), settledCount: 5}
	svc := NewRiskService(store, DefaultRiskThresholds(), zap.NewNop())

	result, err := svc.Assess(context.Background(), RiskRequest{BankAccountID: "ba-1", Amount: 99})
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, []string{"below_minimum"}, result.Flags)
}

func TestAssessScoringRules(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*fakeRiskStore)
		amount       int64
		wantScore    int
		wantApproved bool
		wantFlags    []string
	}{
		{
			name: "unverified account alone stays under threshold",
			mutate: func(s *fakeRiskStore) {
				s.account.VerificationStatus = models.VerificationPending
				s.settledCount = 3
			},
			amount:       50_000,
			wantScore:    50,
			wantApproved: true,
			wantFlags:    []string{"account_unverified"},
		},
		{
			name: "unverified plus over single limit blocks",
			mutate: func(s *fakeRiskStore) {
				s.account.VerificationStatus = models.VerificationPending
				s.settledCount = 3
			},
			amount:       1_500_000,
			wantScore:    90,
			wantApproved: false,
			wantFlags:    []string{"account_unverified", "exceeds_single_limit"},
		},
		{
			name: "over single limit alone approved",
			mutate: func(s *fakeRiskStore) {
				s.settledCount = 3
			},
			amount:       1_500_000,
			wantScore:    40,
			wantApproved: true,
			wantFlags:    []string{"exceeds_single_limit"},
		},
		{
			name: "daily count at cap",
			mutate: func(s *fakeRiskStore) {
				s.dailyCount = 10
				s.settledCount = 3
			},
			amount:       50_000,
			wantScore:    30,
			wantApproved: true,
			wantFlags:    []string{"daily_count_limit"},
		},
		{
			name: "daily amount would exceed cap",
			mutate: func(s *fakeRiskStore) {
				s.dailySum = 2_460_000
				s.settledCount = 3
			},
			amount:       50_000,
			wantScore:    40,
			wantApproved: true,
			wantFlags:    []string{"daily_amount_limit"},
		},
		{
			name:         "first transfer on fresh account",
			mutate:       func(s *fakeRiskStore) {},
			amount:       50_000,
			wantScore:    10,
			wantApproved: true,
			wantFlags:    []string{"first_transfer"},
		},
		{
			name: "prior returns accumulate",
			mutate: func(s *fakeRiskStore) {
				s.settledCount = 3
				s.returnCount = 2
			},
			amount:       50_000,
			wantScore:    30,
			wantApproved: true,
			wantFlags:    []string{"prior_returns"},
		},
		{
			name: "stacked signals clamp at 100",
			mutate: func(s *fakeRiskStore) {
				s.account.VerificationStatus = models.VerificationPending
				s.dailyCount = 10
				s.dailySum = 2_460_000
				s.returnCount = 4
			},
			amount:       1_500_000,
			wantScore:    100,
			wantApproved: false,
			wantFlags: []string{
				"account_unverified", "exceeds_single_limit",
				"daily_count_limit", "daily_amount_limit",
				"first_transfer", "prior_returns",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeRiskStore{account: verifiedAccount()}
			tt.mutate(store)
			svc := NewRiskService(store, DefaultRiskThresholds(), zap.NewNop())

			result, err := svc.Assess(context.Background(), RiskRequest{
				TenantID:      "t1",
				BankAccountID: "ba-1",
				Amount:        tt.amount,
				Direction:     models.DirectionDebit,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantApproved, result.Approved)
			assert.Equal(t, tt.wantFlags, result.Flags)
		})
	}
}

func TestAssessPersistsAuditEventEveryTime(t *testing.T) {
	store := &fakeRiskStore{account: verifiedAccount(), settledCount: 1}
	svc := NewRiskService(store, DefaultRiskThresholds(), zap.NewNop())

	_, err := svc.Assess(context.Background(), RiskRequest{TenantID: "t1", BankAccountID: "ba-1", Amount: 500})
	require.NoError(t, err)

	_, err = svc.Assess(context.Background(), RiskRequest{TenantID: "t1", BankAccountID: "ba-1", Amount: 50})
	require.NoError(t, err)

	require.Len(t, store.events, 2)
	assert.True(t, store.events[0].Approved)
	assert.False(t, store.events[1].Approved)
}
