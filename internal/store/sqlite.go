package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs database migrations exactly once, tracked by an internal
// schema_version table, the same mechanism the teacher uses.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err = s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, migration := range migrations {
		if migration.IsDir() {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(migration.Name(), "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + migration.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", migration.Name(), err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", migration.Name(), err)
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", migration.Name(), err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration.Name(), err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Name(), err)
		}
	}

	return nil
}

// CreateToken creates a new token with bcrypt hash and role.
func (s *Store) CreateToken(ctx context.Context, name, plain, role string) (Token, error) {
	if name == "" || len(name) > 64 {
		return Token{}, fmt.Errorf("invalid token name: must be 1-64 characters")
	}

	if !IsRoleValid(role) {
		return Token{}, fmt.Errorf("invalid role: must be one of admin, user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return Token{}, fmt.Errorf("failed to hash token: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (name, hash, role) VALUES (?, ?, ?)",
		name, string(hash), role)
	if err != nil {
		return Token{}, fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Token{}, fmt.Errorf("failed to get token ID: %w", err)
	}

	return Token{
		ID:        id,
		Name:      name,
		Hash:      string(hash),
		Role:      role,
		CreatedAt: time.Now(),
	}, nil
}

// TokenCount returns the number of tokens in the store (used to decide
// whether to bootstrap an admin token on first boot).
func (s *Store) TokenCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tokens").Scan(&count)
	return count, err
}

// ListTokens returns all tokens (without hashes).
func (s *Store) ListTokens(ctx context.Context) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, created_at, last_used_at FROM tokens ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var token Token
		var lastUsedAt sql.NullTime

		if err := rows.Scan(&token.ID, &token.Name, &token.Role, &token.CreatedAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}

		if lastUsedAt.Valid {
			token.LastUsedAt = &lastUsedAt.Time
		}

		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// DeleteTokenByName removes a token by name.
func (s *Store) DeleteTokenByName(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("token not found: %s", name)
	}

	return nil
}

// TouchToken updates last_used_at for a token.
func (s *Store) TouchToken(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE tokens SET last_used_at = CURRENT_TIMESTAMP WHERE name = ?", name)
	return err
}

// GetTokenByName returns the full token row, including its role, by name.
func (s *Store) GetTokenByName(ctx context.Context, name string) (Token, error) {
	var token Token
	var lastUsedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, created_at, last_used_at FROM tokens WHERE name = ?", name,
	).Scan(&token.ID, &token.Name, &token.Role, &token.CreatedAt, &lastUsedAt)
	if err != nil {
		return Token{}, err
	}

	if lastUsedAt.Valid {
		token.LastUsedAt = &lastUsedAt.Time
	}

	return token, nil
}

// VerifyToken checks plain against every stored bcrypt hash and returns the
// matching token's name. Bcrypt comparison is inherently per-row; the token
// table is expected to stay small (operator + CI credentials, not end
// users), matching the teacher's token model.
func (s *Store) VerifyToken(ctx context.Context, plain string) (string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, hash FROM tokens")
	if err != nil {
		return "", fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return "", err
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("invalid token")
}
