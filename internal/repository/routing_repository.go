package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type RoutingRepository struct {
	db *sql.DB
}

func NewRoutingRepository(db *sql.DB) *RoutingRepository {
	return &RoutingRepository{db: db}
}

// ListActiveRules returns a tenant's active routing rules ordered by
// priority descending.
func (r *RoutingRepository) ListActiveRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error) {
	query := `
		SELECT id, tenant_id, psp, priority, conditions, active, created_at
		FROM routing_rules
		WHERE tenant_id = $1 AND active = TRUE
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.RoutingRule
	for rows.Next() {
		rule := &models.RoutingRule{}
		var conditions []byte
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.PSP, &rule.Priority, &conditions, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
				return nil, err
			}
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// FirstActiveCredential returns the oldest active credential for the tenant
// and environment, the fallback route when no rule matches.
func (r *RoutingRepository) FirstActiveCredential(ctx context.Context, tenantID, environment string) (*models.PSPCredential, error) {
	query := `
		SELECT id, tenant_id, psp, environment, encrypted_blob, active, created_at
		FROM psp_credentials
		WHERE tenant_id = $1 AND environment = $2 AND active = TRUE
		ORDER BY created_at ASC
		LIMIT 1
	`

	cred := &models.PSPCredential{}
	err := r.db.QueryRowContext(ctx, query, tenantID, environment).Scan(
		&cred.ID, &cred.TenantID, &cred.PSP, &cred.Environment, &cred.EncryptedBlob, &cred.Active, &cred.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return cred, err
}

// GetCredential fetches the active credential for a specific PSP.
func (r *RoutingRepository) GetCredential(ctx context.Context, tenantID, psp, environment string) (*models.PSPCredential, error) {
	query := `
		SELECT id, tenant_id, psp, environment, encrypted_blob, active, created_at
		FROM psp_credentials
		WHERE tenant_id = $1 AND psp = $2 AND environment = $3 AND active = TRUE
	`

	cred := &models.PSPCredential{}
	err := r.db.QueryRowContext(ctx, query, tenantID, psp, environment).Scan(
		&cred.ID, &cred.TenantID, &cred.PSP, &cred.Environment, &cred.EncryptedBlob, &cred.Active, &cred.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return cred, err
}
