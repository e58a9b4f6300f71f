package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// CreateApplicationInput carries user-supplied fields for a new Application.
type CreateApplicationInput struct {
	Name           string
	ServerID       int64
	GitURL         *string
	GitBranch      *string
	BuildStrategy  string
	DockerfilePath *string
	Port           *int
	AutoDeploy     bool
}

// CreateApplication inserts a new Application in status "pending".
func (s *Store) CreateApplication(ctx context.Context, in CreateApplicationInput) (Application, error) {
	strategy := in.BuildStrategy
	if strategy == "" {
		strategy = BuildDockerfile
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (name, server_id, git_url, git_branch, build_strategy, dockerfile_path, port, auto_deploy, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.ServerID, in.GitURL, in.GitBranch, strategy, in.DockerfilePath, in.Port, in.AutoDeploy, AppPending)
	if err != nil {
		return Application{}, mapUniqueConstraint(err, fmt.Sprintf("application %q already exists", in.Name))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Application{}, err
	}
	return s.GetApplication(ctx, id)
}

func scanApplication(row interface {
	Scan(dest ...interface{}) error
}) (Application, error) {
	var app Application
	var gitURL, gitBranch, dockerfilePath sql.NullString
	var port sql.NullInt64

	err := row.Scan(&app.ID, &app.Name, &app.ServerID, &gitURL, &gitBranch, &app.BuildStrategy,
		&dockerfilePath, &port, &app.AutoDeploy, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return Application{}, err
	}
	if gitURL.Valid {
		app.GitURL = &gitURL.String
	}
	if gitBranch.Valid {
		app.GitBranch = &gitBranch.String
	}
	if dockerfilePath.Valid {
		app.DockerfilePath = &dockerfilePath.String
	}
	if port.Valid {
		p := int(port.Int64)
		app.Port = &p
	}
	return app, nil
}

const applicationColumns = `id, name, server_id, git_url, git_branch, build_strategy, dockerfile_path, port, auto_deploy, status, created_at, updated_at`

// GetApplication fetches an Application by id.
func (s *Store) GetApplication(ctx context.Context, id int64) (Application, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return Application{}, apperror.New(apperror.NotFound, "application not found")
	}
	return app, err
}

// GetApplicationByName fetches an Application by its unique name.
func (s *Store) GetApplicationByName(ctx context.Context, name string) (Application, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+applicationColumns+" FROM applications WHERE name = ?", name)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return Application{}, apperror.New(apperror.NotFound, "application not found")
	}
	return app, err
}

// ListApplications returns every Application.
func (s *Store) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+applicationColumns+" FROM applications ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApplicationInput is a partial update: nil fields are left unchanged
// (spec.md §6.1: "update is partial").
type UpdateApplicationInput struct {
	GitURL         **string
	GitBranch      **string
	BuildStrategy  *string
	DockerfilePath **string
	Port           **int
	AutoDeploy     *bool
}

// UpdateApplication applies a partial update to an Application.
func (s *Store) UpdateApplication(ctx context.Context, id int64, in UpdateApplicationInput) (Application, error) {
	app, err := s.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}

	if in.GitURL != nil {
		app.GitURL = *in.GitURL
	}
	if in.GitBranch != nil {
		app.GitBranch = *in.GitBranch
	}
	if in.BuildStrategy != nil {
		app.BuildStrategy = *in.BuildStrategy
	}
	if in.DockerfilePath != nil {
		app.DockerfilePath = *in.DockerfilePath
	}
	if in.Port != nil {
		app.Port = *in.Port
	}
	if in.AutoDeploy != nil {
		app.AutoDeploy = *in.AutoDeploy
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE applications SET git_url = ?, git_branch = ?, build_strategy = ?, dockerfile_path = ?, port = ?, auto_deploy = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		app.GitURL, app.GitBranch, app.BuildStrategy, app.DockerfilePath, app.Port, app.AutoDeploy, id)
	if err != nil {
		return Application{}, err
	}

	return s.GetApplication(ctx, id)
}

// SetApplicationStatus transitions an Application's status field.
func (s *Store) SetApplicationStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE applications SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	return err
}

// DeleteApplication removes an Application. Cascading deletes of
// EnvironmentVariable, Domain, Deployment, DeployKey, HealthCheck, Webhook
// and WebhookDelivery rows are enforced by the foreign keys declared in the
// migration (ON DELETE CASCADE); the fleet controller is responsible for
// stopping and removing the owned container before this call returns
// (spec.md §3) — that orchestration lives in internal/fleet, not here.
func (s *Store) DeleteApplication(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM applications WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.New(apperror.NotFound, "application not found")
	}
	return nil
}

func mapUniqueConstraint(err error, msg string) error {
	if err == nil {
		return nil
	}
	// mattn/go-sqlite3 reports unique violations as "UNIQUE constraint failed".
	if containsUniqueConstraint(err.Error()) {
		return apperror.Wrap(apperror.Conflict, msg, err)
	}
	return apperror.Wrap(apperror.Internal, "store operation failed", err)
}

func containsUniqueConstraint(msg string) bool {
	for i := 0; i+len("UNIQUE constraint") <= len(msg); i++ {
		if msg[i:i+len("UNIQUE constraint")] == "UNIQUE constraint" {
			return true
		}
	}
	return false
}
