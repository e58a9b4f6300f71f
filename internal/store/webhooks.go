package store

import (
	"context"
	"database/sql"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// PutWebhook creates or replaces the at-most-one webhook configuration for
// an application (application_id is the primary key).
func (s *Store) PutWebhook(ctx context.Context, applicationID int64, provider, secret string, enabled bool) (Webhook, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (application_id, provider, secret, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT(application_id) DO UPDATE SET provider = excluded.provider, secret = excluded.secret, enabled = excluded.enabled`,
		applicationID, provider, secret, enabled)
	if err != nil {
		return Webhook{}, err
	}
	return s.GetWebhook(ctx, applicationID)
}

// GetWebhook fetches the webhook configuration for an application.
func (s *Store) GetWebhook(ctx context.Context, applicationID int64) (Webhook, error) {
	var w Webhook
	err := s.db.QueryRowContext(ctx,
		"SELECT application_id, provider, secret, enabled, created_at FROM webhooks WHERE application_id = ?", applicationID,
	).Scan(&w.ApplicationID, &w.Provider, &w.Secret, &w.Enabled, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return Webhook{}, apperror.New(apperror.NotFound, "webhook not configured")
	}
	return w, err
}

// DeleteWebhook removes the webhook configuration for an application.
func (s *Store) DeleteWebhook(ctx context.Context, applicationID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE application_id = ?", applicationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "webhook not configured")
	}
	return nil
}

// RecordWebhookDelivery inserts an append-only delivery record (spec.md
// §4.8: every received webhook request is recorded regardless of outcome).
func (s *Store) RecordWebhookDelivery(ctx context.Context, d WebhookDelivery) (WebhookDelivery, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (application_id, provider, event_type, branch, commit_sha, commit_message, author, status, deployment_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ApplicationID, d.Provider, d.EventType, d.Branch, d.CommitSHA, d.CommitMessage, d.Author, d.Status, d.DeploymentID)
	if err != nil {
		return WebhookDelivery{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WebhookDelivery{}, err
	}
	return s.GetWebhookDelivery(ctx, id)
}

func (s *Store) GetWebhookDelivery(ctx context.Context, id int64) (WebhookDelivery, error) {
	var d WebhookDelivery
	var branch, commitSHA, commitMessage, author sql.NullString
	var deploymentID sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, provider, event_type, branch, commit_sha, commit_message, author, status, deployment_id, delivered_at
		 FROM webhook_deliveries WHERE id = ?`, id,
	).Scan(&d.ID, &d.ApplicationID, &d.Provider, &d.EventType, &branch, &commitSHA, &commitMessage, &author, &d.Status, &deploymentID, &d.DeliveredAt)
	if err == sql.ErrNoRows {
		return WebhookDelivery{}, apperror.New(apperror.NotFound, "webhook delivery not found")
	}
	if err != nil {
		return WebhookDelivery{}, err
	}

	if branch.Valid {
		d.Branch = &branch.String
	}
	if commitSHA.Valid {
		d.CommitSHA = &commitSHA.String
	}
	if commitMessage.Valid {
		d.CommitMessage = &commitMessage.String
	}
	if author.Valid {
		d.Author = &author.String
	}
	if deploymentID.Valid {
		id := deploymentID.Int64
		d.DeploymentID = &id
	}
	return d, nil
}

// ListWebhookDeliveries returns delivery history for an application, most
// recent first.
func (s *Store) ListWebhookDeliveries(ctx context.Context, applicationID int64, limit int) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, provider, event_type, branch, commit_sha, commit_message, author, status, deployment_id, delivered_at
		 FROM webhook_deliveries WHERE application_id = ? ORDER BY delivered_at DESC LIMIT ?`, applicationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		var branch, commitSHA, commitMessage, author sql.NullString
		var deploymentID sql.NullInt64

		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.Provider, &d.EventType, &branch, &commitSHA, &commitMessage, &author, &d.Status, &deploymentID, &d.DeliveredAt); err != nil {
			return nil, err
		}
		if branch.Valid {
			d.Branch = &branch.String
		}
		if commitSHA.Valid {
			d.CommitSHA = &commitSHA.String
		}
		if commitMessage.Valid {
			d.CommitMessage = &commitMessage.String
		}
		if author.Valid {
			d.Author = &author.String
		}
		if deploymentID.Valid {
			id := deploymentID.Int64
			d.DeploymentID = &id
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
