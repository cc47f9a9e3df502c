package repository

import (
	"context"
	"errors"

	"voicedesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetWebhookSecretHash returns the bcrypt hash of the tenant's webhook secret
// for one call provider.
func (r *Repository) GetWebhookSecretHash(ctx context.Context, tenantID uuid.UUID, provider string) (string, error) {
	var hash string
	query := `SELECT secret_hash FROM tenant_webhook_secrets WHERE tenant_id = $1 AND provider = $2`

	err := r.pool.QueryRow(ctx, query, tenantID, provider).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("webhook secret not configured for tenant")
		}
		return "", apperr.Wrap(apperr.KindUnavailable, "failed to load webhook secret", err).WithOp("repository.GetWebhookSecretHash")
	}
	return hash, nil
}
