package store

import (
	"context"
	"database/sql"
)

// UpsertHealthCheck writes the probe configuration for an application,
// replacing any existing row (application_id is the primary key).
func (s *Store) UpsertHealthCheck(ctx context.Context, hc HealthCheck) (HealthCheck, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_checks (application_id, path, interval_seconds, timeout_seconds, healthy_threshold, unhealthy_threshold)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(application_id) DO UPDATE SET
		   path = excluded.path,
		   interval_seconds = excluded.interval_seconds,
		   timeout_seconds = excluded.timeout_seconds,
		   healthy_threshold = excluded.healthy_threshold,
		   unhealthy_threshold = excluded.unhealthy_threshold`,
		hc.ApplicationID, hc.Path, hc.IntervalSeconds, hc.TimeoutSeconds, hc.HealthyThreshold, hc.UnhealthyThreshold)
	if err != nil {
		return HealthCheck{}, err
	}
	return s.GetHealthCheck(ctx, hc.ApplicationID)
}

// GetHealthCheck returns the configured probe, or the package default if
// the application has never had one set (spec.md §3: "defaults apply if
// absent").
func (s *Store) GetHealthCheck(ctx context.Context, applicationID int64) (HealthCheck, error) {
	var hc HealthCheck
	err := s.db.QueryRowContext(ctx,
		`SELECT application_id, path, interval_seconds, timeout_seconds, healthy_threshold, unhealthy_threshold
		 FROM health_checks WHERE application_id = ?`, applicationID,
	).Scan(&hc.ApplicationID, &hc.Path, &hc.IntervalSeconds, &hc.TimeoutSeconds, &hc.HealthyThreshold, &hc.UnhealthyThreshold)
	if err == sql.ErrNoRows {
		return DefaultHealthCheck(applicationID), nil
	}
	return hc, err
}

// RecordHealthCheckResult inserts one probe outcome.
func (s *Store) RecordHealthCheckResult(ctx context.Context, r HealthCheckResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_check_results (application_id, container_id, status, response_time_ms, status_code, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ApplicationID, r.ContainerID, r.Status, r.ResponseTimeMs, r.StatusCode, r.ErrorMessage)
	return err
}

// RecentHealthCheckResults returns the most recent n results for an
// application, newest first; the API's health-check history endpoint reads
// it.
func (s *Store) RecentHealthCheckResults(ctx context.Context, applicationID int64, n int) ([]HealthCheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, container_id, status, response_time_ms, status_code, error_message, checked_at
		 FROM health_check_results WHERE application_id = ? ORDER BY checked_at DESC LIMIT ?`, applicationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HealthCheckResult
	for rows.Next() {
		var r HealthCheckResult
		var statusCode sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.ApplicationID, &r.ContainerID, &r.Status, &r.ResponseTimeMs, &statusCode, &errMsg, &r.CheckedAt); err != nil {
			return nil, err
		}
		if statusCode.Valid {
			c := int(statusCode.Int64)
			r.StatusCode = &c
		}
		if errMsg.Valid {
			r.ErrorMessage = &errMsg.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestHealthStatus returns the most recent recorded status for an
// application, or HealthUnknown if none has been recorded yet.
func (s *Store) LatestHealthStatus(ctx context.Context, applicationID int64) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM health_check_results WHERE application_id = ? ORDER BY checked_at DESC LIMIT 1", applicationID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return HealthUnknown, nil
	}
	return status, err
}
