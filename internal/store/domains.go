package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// AddDomain attaches a hostname to an application. If primary is true, any
// existing primary domain for the same application is atomically demoted in
// the same transaction (spec.md §3: "at most one domain per application is
// primary").
func (s *Store) AddDomain(ctx context.Context, applicationID int64, hostname string, primary bool) (Domain, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Domain{}, err
	}
	defer tx.Rollback()

	if primary {
		if _, err := tx.ExecContext(ctx,
			"UPDATE domains SET is_primary = 0 WHERE application_id = ?", applicationID); err != nil {
			return Domain{}, err
		}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO domains (application_id, hostname, is_primary) VALUES (?, ?, ?)",
		applicationID, hostname, primary)
	if err != nil {
		return Domain{}, mapUniqueConstraint(err, fmt.Sprintf("domain %q already in use", hostname))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Domain{}, err
	}

	if err := tx.Commit(); err != nil {
		return Domain{}, err
	}

	return s.GetDomain(ctx, id)
}

// SetPrimaryDomain promotes domainID to primary for its application,
// demoting whichever domain previously held that slot, in one transaction.
func (s *Store) SetPrimaryDomain(ctx context.Context, domainID int64) (Domain, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Domain{}, err
	}
	defer tx.Rollback()

	var applicationID int64
	if err := tx.QueryRowContext(ctx, "SELECT application_id FROM domains WHERE id = ?", domainID).Scan(&applicationID); err != nil {
		if err == sql.ErrNoRows {
			return Domain{}, apperror.New(apperror.NotFound, "domain not found")
		}
		return Domain{}, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE domains SET is_primary = 0 WHERE application_id = ?", applicationID); err != nil {
		return Domain{}, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE domains SET is_primary = 1 WHERE id = ?", domainID); err != nil {
		return Domain{}, err
	}

	if err := tx.Commit(); err != nil {
		return Domain{}, err
	}

	return s.GetDomain(ctx, domainID)
}

func (s *Store) GetDomain(ctx context.Context, id int64) (Domain, error) {
	var d Domain
	err := s.db.QueryRowContext(ctx,
		"SELECT id, application_id, hostname, is_primary, ssl_active, created_at FROM domains WHERE id = ?", id,
	).Scan(&d.ID, &d.ApplicationID, &d.Hostname, &d.IsPrimary, &d.SSLActive, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return Domain{}, apperror.New(apperror.NotFound, "domain not found")
	}
	return d, err
}

// ListDomains returns every domain attached to an application.
func (s *Store) ListDomains(ctx context.Context, applicationID int64) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, hostname, is_primary, ssl_active, created_at
		 FROM domains WHERE application_id = ? ORDER BY is_primary DESC, hostname ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.Hostname, &d.IsPrimary, &d.SSLActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAllDomains returns every domain across all applications, used by the
// reconciler to rebuild the proxy adapter's route table from scratch.
func (s *Store) ListAllDomains(ctx context.Context) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, application_id, hostname, is_primary, ssl_active, created_at FROM domains ORDER BY application_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.Hostname, &d.IsPrimary, &d.SSLActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDomainSSLActive records whether the proxy adapter has an active
// certificate for this domain.
func (s *Store) SetDomainSSLActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE domains SET ssl_active = ? WHERE id = ?", active, id)
	return err
}

// RemoveDomain detaches a hostname. Removing the primary domain leaves the
// application with no primary until another is promoted explicitly; the
// reconciler treats a primary-less application as reachable only by its
// non-primary hostnames, matching spec.md's silence on auto-promotion.
func (s *Store) RemoveDomain(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM domains WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "domain not found")
	}
	return nil
}
