package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// CreateUser records an identity. Authentication itself (login, password
// handling, session issuance) is an external collaborator's concern; this
// store only persists the profile referenced by Token.Role checks.
func (s *Store) CreateUser(ctx context.Context, email, name, role string) (User, error) {
	if !IsRoleValid(role) {
		return User{}, apperror.New(apperror.Validation, "invalid role: must be one of admin, user")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, name, role) VALUES (?, ?, ?)", email, name, role)
	if err != nil {
		return User{}, mapUniqueConstraint(err, fmt.Sprintf("user %q already exists", email))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, role, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, apperror.New(apperror.NotFound, "user not found")
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, role, created_at FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, apperror.New(apperror.NotFound, "user not found")
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, name, role, created_at FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUserRole changes a user's role (admin/user promotion-demotion).
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role string) error {
	if !IsRoleValid(role) {
		return apperror.New(apperror.Validation, "invalid role: must be one of admin, user")
	}
	res, err := s.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", role, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "user not found")
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "user not found")
	}
	return nil
}
