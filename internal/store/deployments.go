package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GLINCKER/glinrdock/internal/apperror"
)

// maxBuildLogBytes caps the stored build log per deployment (spec.md §4.4).
// Once the cap is hit, further writes are dropped and BuildLogTruncated is
// set so the API can surface a marker to the client.
const maxBuildLogBytes = 1 << 20

// ErrDeploymentInProgress is returned by CreateDeployment when the target
// application already has a non-terminal deployment.
var ErrDeploymentInProgress = apperror.New(apperror.Conflict, "a deployment is already in progress for this application")

// CreateDeploymentInput carries the fields needed to queue a new pipeline
// run.
type CreateDeploymentInput struct {
	ApplicationID int64
	ServerID      int64
	Trigger       string
	ImageTag      string
}

// CreateDeployment queues a new Deployment in status "queued", enforcing
// the invariant that at most one non-terminal deployment exists per
// application at a time (spec.md §4.4) — the orchestrator's FIFO dispatcher
// relies on this to reject a concurrent queue attempt rather than silently
// interleaving two pipelines for the same app.
func (s *Store) CreateDeployment(ctx context.Context, in CreateDeploymentInput) (Deployment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Deployment{}, err
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deployments WHERE application_id = ? AND status NOT IN (?, ?, ?)`,
		in.ApplicationID, DeployRunning, DeployFailed, DeployCancelled,
	).Scan(&active)
	if err != nil {
		return Deployment{}, err
	}
	if active > 0 {
		return Deployment{}, ErrDeploymentInProgress
	}

	trigger := in.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO deployments (application_id, server_id, trigger_kind, status, image_tag)
		 VALUES (?, ?, ?, ?, ?)`,
		in.ApplicationID, in.ServerID, trigger, DeployQueued, in.ImageTag)
	if err != nil {
		return Deployment{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Deployment{}, err
	}

	if err := tx.Commit(); err != nil {
		return Deployment{}, err
	}

	return s.GetDeployment(ctx, id)
}

func scanDeployment(row interface {
	Scan(dest ...interface{}) error
}) (Deployment, error) {
	var d Deployment
	var commitSHA, commitMessage, containerID sql.NullString
	var hostPort sql.NullInt64
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&d.ID, &d.ApplicationID, &d.ServerID, &d.Trigger, &commitSHA, &commitMessage,
		&d.Status, &d.BuildLog, &d.BuildLogTruncated, &containerID, &d.ImageTag, &hostPort,
		&d.CancelRequested, &startedAt, &finishedAt, &d.CreatedAt)
	if err != nil {
		return Deployment{}, err
	}
	if commitSHA.Valid {
		d.CommitSHA = &commitSHA.String
	}
	if commitMessage.Valid {
		d.CommitMessage = &commitMessage.String
	}
	if containerID.Valid {
		d.ContainerID = &containerID.String
	}
	if hostPort.Valid {
		p := int(hostPort.Int64)
		d.HostPort = &p
	}
	if startedAt.Valid {
		d.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		d.FinishedAt = &finishedAt.Time
	}
	return d, nil
}

const deploymentColumns = `id, application_id, server_id, trigger_kind, commit_sha, commit_message,
	status, build_log, build_log_truncated, container_id, image_tag, host_port,
	cancel_requested, started_at, finished_at, created_at`

// GetDeployment fetches a Deployment by id.
func (s *Store) GetDeployment(ctx context.Context, id int64) (Deployment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deploymentColumns+" FROM deployments WHERE id = ?", id)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return Deployment{}, apperror.New(apperror.NotFound, "deployment not found")
	}
	return d, err
}

// ListDeployments returns every deployment for an application, most recent
// first.
func (s *Store) ListDeployments(ctx context.Context, applicationID int64) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+deploymentColumns+" FROM deployments WHERE application_id = ? ORDER BY created_at DESC", applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CurrentDeployment returns the application's most recent deployment, if
// any (used by the fleet controller to find "current" vs a rollback
// target).
func (s *Store) CurrentDeployment(ctx context.Context, applicationID int64) (Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deploymentColumns+" FROM deployments WHERE application_id = ? ORDER BY created_at DESC LIMIT 1", applicationID)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return Deployment{}, apperror.New(apperror.NotFound, "no deployments for application")
	}
	return d, err
}

// SetDeploymentStatus advances the pipeline state machine. Passing a
// terminal status also stamps finished_at.
func (s *Store) SetDeploymentStatus(ctx context.Context, id int64, status string) error {
	if IsTerminalDeploymentStatus(status) {
		_, err := s.db.ExecContext(ctx,
			"UPDATE deployments SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
		return err
	}
	_, err := s.db.ExecContext(ctx, "UPDATE deployments SET status = ? WHERE id = ?", status, id)
	return err
}

// MarkDeploymentStarted stamps started_at the first time a deployment
// leaves "queued".
func (s *Store) MarkDeploymentStarted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET started_at = CURRENT_TIMESTAMP WHERE id = ? AND started_at IS NULL", id)
	return err
}

// SetDeploymentCommit records the resolved commit once the git adapter has
// cloned the ref.
func (s *Store) SetDeploymentCommit(ctx context.Context, id int64, sha, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET commit_sha = ?, commit_message = ? WHERE id = ?", sha, message, id)
	return err
}

// SetDeploymentContainer records the container id and host port once the
// fleet controller has started the new container.
func (s *Store) SetDeploymentContainer(ctx context.Context, id int64, containerID string, hostPort int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET container_id = ?, host_port = ? WHERE id = ?", containerID, hostPort, id)
	return err
}

// RequestDeploymentCancellation sets the cooperative cancel flag; the
// orchestrator's pipeline loop polls this between stages (spec.md §4.4:
// cancellation is cooperative, not forced).
func (s *Store) RequestDeploymentCancellation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE deployments SET cancel_requested = 1 WHERE id = ?", id)
	return err
}

// IsCancellationRequested reports the current cancel_requested flag.
func (s *Store) IsCancellationRequested(ctx context.Context, id int64) (bool, error) {
	var flag bool
	err := s.db.QueryRowContext(ctx, "SELECT cancel_requested FROM deployments WHERE id = ?", id).Scan(&flag)
	return flag, err
}

// AppendBuildLog appends a chunk to the deployment's build log, capping the
// stored size at maxBuildLogBytes and flipping build_log_truncated once the
// cap is reached. Further appends after truncation are no-ops so the column
// never grows past the cap.
func (s *Store) AppendBuildLog(ctx context.Context, id int64, chunk string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	var truncated bool
	if err := tx.QueryRowContext(ctx,
		"SELECT build_log, build_log_truncated FROM deployments WHERE id = ?", id,
	).Scan(&existing, &truncated); err != nil {
		if err == sql.ErrNoRows {
			return apperror.New(apperror.NotFound, "deployment not found")
		}
		return err
	}

	if truncated {
		return tx.Commit()
	}

	combined := existing + chunk
	if len(combined) > maxBuildLogBytes {
		combined = combined[:maxBuildLogBytes]
		truncated = true
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE deployments SET build_log = ?, build_log_truncated = ? WHERE id = ?", combined, truncated, id,
	); err != nil {
		return fmt.Errorf("append build log: %w", err)
	}

	return tx.Commit()
}
