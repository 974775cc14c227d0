package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type fakeRoutingStore struct {
	rules       []*models.RoutingRule
	rulesErr    error
	credentials map[string]*models.PSPCredential
	fallback    *models.PSPCredential
}

func (f *fakeRoutingStore) ListActiveRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error) {
	return f.rules, f.rulesErr
}

func (f *fakeRoutingStore) FirstActiveCredential(ctx context.Context, tenantID, environment string) (*models.PSPCredential, error) {
	return f.fallback, nil
}

func (f *fakeRoutingStore) GetCredential(ctx context.Context, tenantID, psp, environment string) (*models.PSPCredential, error) {
	return f.credentials[psp], nil
}

type fakeDecrypter struct{}

func (fakeDecrypter) Decrypt(blob string) (map[string]string, error) {
	return map[string]string{"api_key": "sk_" + blob}, nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func TestRouteHighestPriorityMatchingRuleWins(t *testing.T) {
	store := &fakeRoutingStore{
		rules: []*models.RoutingRule{
			{
				ID:         "rule-usd",
				PSP:        "adyen",
				Priority:   10,
				Conditions: models.RuleConditions{Currency: strPtr("USD")},
			},
			{
				ID:       "rule-any",
				PSP:      "stripe",
				Priority: 5,
			},
		},
		credentials: map[string]*models.PSPCredential{
			"adyen":  {PSP: "adyen", EncryptedBlob: "adyen-blob"},
			"stripe": {PSP: "stripe", EncryptedBlob: "stripe-blob"},
		},
	}

	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	decision, err := router.Route(context.Background(), "t1", 5000, "USD", "live")
	require.NoError(t, err)
	assert.Equal(t, "adyen", decision.PSP)
	assert.Equal(t, "rule-usd", decision.RuleID)
	assert.Equal(t, "sk_adyen-blob", decision.Credentials["api_key"])

	// Non-USD skips the currency rule and falls through to the catch-all.
	decision, err = router.Route(context.Background(), "t1", 5000, "EUR", "live")
	require.NoError(t, err)
	assert.Equal(t, "stripe", decision.PSP)
}

func TestRouteAmountConditions(t *testing.T) {
	store := &fakeRoutingStore{
		rules: []*models.RoutingRule{
			{
				ID:       "rule-large",
				PSP:      "adyen",
				Priority: 10,
				Conditions: models.RuleConditions{
					AmountGTE: intPtr(10000),
					AmountLTE: intPtr(100000),
				},
			},
		},
		credentials: map[string]*models.PSPCredential{
			"adyen": {PSP: "adyen", EncryptedBlob: "adyen-blob"},
		},
		fallback: &models.PSPCredential{PSP: "stripe", EncryptedBlob: "stripe-blob"},
	}
	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	tests := []struct {
		name    string
		amount  int64
		wantPSP string
	}{
		{"below range", 9999, "stripe"},
		{"lower bound", 10000, "adyen"},
		{"upper bound", 100000, "adyen"},
		{"above range", 100001, "stripe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := router.Route(context.Background(), "t1", tt.amount, "USD", "live")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPSP, decision.PSP)
		})
	}
}

func TestRouteFallbackWhenNoRules(t *testing.T) {
	store := &fakeRoutingStore{
		fallback: &models.PSPCredential{PSP: "stripe", EncryptedBlob: "stripe-blob"},
	}
	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	decision, err := router.Route(context.Background(), "t1", 100, "USD", "live")
	require.NoError(t, err)
	assert.Equal(t, "stripe", decision.PSP)
	assert.Equal(t, "first available psp", decision.Reason)
	assert.Empty(t, decision.RuleID)
}

func TestRouteFallbackWhenRuleFetchFails(t *testing.T) {
	store := &fakeRoutingStore{
		rulesErr: errors.New("connection refused"),
		fallback: &models.PSPCredential{PSP: "stripe", EncryptedBlob: "stripe-blob"},
	}
	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	decision, err := router.Route(context.Background(), "t1", 100, "USD", "live")
	require.NoError(t, err)
	assert.Equal(t, "stripe", decision.PSP)
}

func TestRouteNoCredentialsAnywhere(t *testing.T) {
	store := &fakeRoutingStore{}
	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	_, err := router.Route(context.Background(), "t1", 100, "USD", "live")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRouteMatchedRuleWithoutCredentialFallsThrough(t *testing.T) {
	store := &fakeRoutingStore{
		rules: []*models.RoutingRule{
			{ID: "rule-1", PSP: "adyen", Priority: 10},
		},
		fallback: &models.PSPCredential{PSP: "stripe", EncryptedBlob: "stripe-blob"},
	}
	router := NewRouterService(store, fakeDecrypter{}, zap.NewNop())

	decision, err := router.Route(context.Background(), "t1", 100, "USD", "live")
	require.NoError(t, err)
	assert.Equal(t, "stripe", decision.PSP)
}
