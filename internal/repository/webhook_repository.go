package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// InsertEvent persists an inbound event. A replayed (psp, psp_event_id)
// pair inserts nothing and returns false, so callers skip re-applying it.
func (r *WebhookRepository) InsertEvent(ctx context.Context, e *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (id, tenant_id, psp, psp_event_id, event_type, vendor_type, session_id, transaction_id, payload, created_at)
		VALUES ($1, nullif($2, ''), $3, $4, $5, $6, nullif($7, ''), nullif($8, ''), $9, $10)
		ON CONFLICT (psp, psp_event_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.PSP, e.PSPEventID, e.EventType, e.VendorType,
		e.SessionID, e.TransactionID, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (r *WebhookRepository) ListActiveEndpoints(ctx context.Context, tenantID string) ([]*models.WebhookEndpoint, error) {
	query := `
		SELECT id, tenant_id, url, secret, active, created_at
		FROM webhook_endpoints WHERE tenant_id = $1 AND active = TRUE
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*models.WebhookEndpoint
	for rows.Next() {
		ep := &models.WebhookEndpoint{}
		if err := rows.Scan(&ep.ID, &ep.TenantID, &ep.URL, &ep.Secret, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, rows.Err()
}

func (r *WebhookRepository) InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, event_id, endpoint_id, status, attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.EventID, d.EndpointID, d.Status, d.Attempt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *WebhookRepository) UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, http_status = nullif($2, 0), attempt = $3,
		    last_error = nullif($4, ''), next_retry_at = $5, updated_at = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(ctx, query,
		d.Status, d.HTTPStatus, d.Attempt, d.LastError, d.NextRetryAt, time.Now(), d.ID,
	)
	return err
}
