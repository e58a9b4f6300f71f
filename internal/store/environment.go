package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/crypto"
)

// SetEnvironmentVariable seals plaintext with box and upserts the
// (application_id, key) row. The unique index on those two columns makes
// this an atomic replace rather than a separate exists-check.
func (s *Store) SetEnvironmentVariable(ctx context.Context, box *crypto.SecretBox, applicationID int64, key, plaintext string) (EnvironmentVariable, error) {
	sealed, err := box.Seal(plaintext)
	if err != nil {
		return EnvironmentVariable{}, apperror.Wrap(apperror.Crypto, "failed to seal environment variable", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO environment_variables (application_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(application_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		applicationID, key, sealed)
	if err != nil {
		return EnvironmentVariable{}, fmt.Errorf("set environment variable: %w", err)
	}

	return s.getEnvironmentVariable(ctx, applicationID, key)
}

func (s *Store) getEnvironmentVariable(ctx context.Context, applicationID int64, key string) (EnvironmentVariable, error) {
	var ev EnvironmentVariable
	err := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, key, value, created_at, updated_at
		 FROM environment_variables WHERE application_id = ? AND key = ?`,
		applicationID, key,
	).Scan(&ev.ID, &ev.ApplicationID, &ev.Key, &ev.Value, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return EnvironmentVariable{}, apperror.New(apperror.NotFound, "environment variable not found")
	}
	return ev, err
}

// ListEnvironmentVariables returns every sealed row for an application; the
// caller opens values lazily (e.g. only at deploy time) rather than this
// layer decrypting eagerly.
func (s *Store) ListEnvironmentVariables(ctx context.Context, applicationID int64) ([]EnvironmentVariable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, key, value, created_at, updated_at
		 FROM environment_variables WHERE application_id = ? ORDER BY key ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnvironmentVariable
	for rows.Next() {
		var ev EnvironmentVariable
		if err := rows.Scan(&ev.ID, &ev.ApplicationID, &ev.Key, &ev.Value, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// OpenEnvironmentVariables decrypts every variable for an application into a
// plain map, for injection into a container at deploy time.
func (s *Store) OpenEnvironmentVariables(ctx context.Context, box *crypto.SecretBox, applicationID int64) (map[string]string, error) {
	evs, err := s.ListEnvironmentVariables(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(evs))
	for _, ev := range evs {
		plain, err := box.Open(ev.Value)
		if err != nil {
			return nil, apperror.Wrap(apperror.Crypto, fmt.Sprintf("failed to open environment variable %q", ev.Key), err)
		}
		out[ev.Key] = plain
	}
	return out, nil
}

// DeleteEnvironmentVariable removes a single (application_id, key) row.
func (s *Store) DeleteEnvironmentVariable(ctx context.Context, applicationID int64, key string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM environment_variables WHERE application_id = ? AND key = ?", applicationID, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "environment variable not found")
	}
	return nil
}
