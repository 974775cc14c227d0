package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

// RoutingStore is the slice of persistence the router needs.
type RoutingStore interface {
	ListActiveRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error)
	FirstActiveCredential(ctx context.Context, tenantID, environment string) (*models.PSPCredential, error)
	GetCredential(ctx context.Context, tenantID, psp, environment string) (*models.PSPCredential, error)
}

// CredentialDecrypter is the vault collaborator.
type CredentialDecrypter interface {
	Decrypt(blob string) (map[string]string, error)
}

// RouterService picks a card PSP for a transaction from tenant routing
// rules, falling back to the first configured PSP.
type RouterService struct {
	store  RoutingStore
	vault  CredentialDecrypter
	logger *zap.Logger
}

func NewRouterService(store RoutingStore, vault CredentialDecrypter, logger *zap.Logger) *RouterService {
	return &RouterService{
		store:  store,
		vault:  vault,
		logger: logger,
	}
}

// Route returns the PSP and decrypted credentials for the transaction.
// A rule-fetch error degrades to the fallback path; a missing credential is
// ErrNoRoute, which the caller must surface rather than retry.
func (s *RouterService) Route(ctx context.Context, tenantID string, amount int64, currency, environment string) (*models.RouteDecision, error) {
	rules, err := s.store.ListActiveRules(ctx, tenantID)
	if err != nil {
		s.logger.Warn("routing rule fetch failed, falling back to first PSP",
			zap.Error(err),
			zap.String("tenant_id", tenantID))
		rules = nil
	}

	for _, rule := range rules {
		if !rule.Conditions.Matches(amount, currency) {
			continue
		}

		cred, err := s.store.GetCredential(ctx, tenantID, rule.PSP, environment)
		if err != nil {
			return nil, fmt.Errorf("fetch credential for %s: %w", rule.PSP, err)
		}
		if cred == nil {
			s.logger.Warn("routing rule matched but psp has no credential",
				zap.String("tenant_id", tenantID),
				zap.String("psp", rule.PSP),
				zap.String("rule_id", rule.ID))
			continue
		}

		creds, err := s.vault.Decrypt(cred.EncryptedBlob)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential for %s: %w", rule.PSP, err)
		}

		return &models.RouteDecision{
			PSP:         rule.PSP,
			Reason:      fmt.Sprintf("rule priority %d", rule.Priority),
			RuleID:      rule.ID,
			Credentials: creds,
		}, nil
	}

	return s.fallback(ctx, tenantID, environment)
}

func (s *RouterService) fallback(ctx context.Context, tenantID, environment string) (*models.RouteDecision, error) {
	cred, err := s.store.FirstActiveCredential(ctx, tenantID, environment)
	if err != nil {
		return nil, fmt.Errorf("fetch fallback credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoRoute
	}

	creds, err := s.vault.Decrypt(cred.EncryptedBlob)
	if err != nil {
		return nil, fmt.Errorf("decrypt fallback credential: %w", err)
	}

	return &models.RouteDecision{
		PSP:         cred.PSP,
		Reason:      "first available psp",
		Credentials: creds,
	}, nil
}
