package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

// Migrate applies the schema DDL for every entity. The statements are all
// IF NOT EXISTS so running it on boot is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	schemas := []string{
		models.SessionSchema,
		models.RoutingSchema,
		models.InvoiceSchema,
		models.SubscriptionSchema,
		models.BillingJobSchema,
		models.BankSchema,
		models.WebhookSchema,
	}

	for _, schema := range schemas {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}
