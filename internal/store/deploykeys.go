package store

import (
	"context"
	"database/sql"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/crypto"
)

// PutDeployKey stores (or atomically replaces) the SSH key pair for an
// application. The unique index on application_id makes the upsert a
// single-row replace; the old private key is never readable again once
// this returns (spec.md §3: "regenerated atomically, old key replaced").
func (s *Store) PutDeployKey(ctx context.Context, box *crypto.SecretBox, applicationID int64, publicKey, privateKeyPlain string) (DeployKey, error) {
	sealed, err := box.Seal(privateKeyPlain)
	if err != nil {
		return DeployKey{}, apperror.Wrap(apperror.Crypto, "failed to seal deploy key", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deploy_keys (application_id, public_key, private_key) VALUES (?, ?, ?)
		 ON CONFLICT(application_id) DO UPDATE SET public_key = excluded.public_key, private_key = excluded.private_key`,
		applicationID, publicKey, sealed)
	if err != nil {
		return DeployKey{}, err
	}

	return s.GetDeployKey(ctx, applicationID)
}

// GetDeployKey returns the deploy key row (PrivateKey field holds the
// sealed, not plaintext, form).
func (s *Store) GetDeployKey(ctx context.Context, applicationID int64) (DeployKey, error) {
	var dk DeployKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, application_id, public_key, private_key, created_at FROM deploy_keys WHERE application_id = ?",
		applicationID,
	).Scan(&dk.ID, &dk.ApplicationID, &dk.PublicKey, &dk.PrivateKey, &dk.CreatedAt)
	if err == sql.ErrNoRows {
		return DeployKey{}, apperror.New(apperror.NotFound, "deploy key not found")
	}
	return dk, err
}

// OpenDeployKeyPrivate decrypts the stored private key for use by the git
// adapter at clone/fetch time.
func (s *Store) OpenDeployKeyPrivate(ctx context.Context, box *crypto.SecretBox, applicationID int64) (string, error) {
	dk, err := s.GetDeployKey(ctx, applicationID)
	if err != nil {
		return "", err
	}
	plain, err := box.Open(dk.PrivateKey)
	if err != nil {
		return "", apperror.Wrap(apperror.Crypto, "failed to open deploy key", err)
	}
	return plain, nil
}

// DeleteDeployKey removes the deploy key row for an application.
func (s *Store) DeleteDeployKey(ctx context.Context, applicationID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM deploy_keys WHERE application_id = ?", applicationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "deploy key not found")
	}
	return nil
}
