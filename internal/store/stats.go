package store

import (
	"context"
)

// RecordContainerStats inserts one resource sample.
func (s *Store) RecordContainerStats(ctx context.Context, cs ContainerStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO container_stats (container_id, application_id, cpu_percent, memory_mb, memory_limit_mb, network_rx_mb, network_tx_mb)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cs.ContainerID, cs.ApplicationID, cs.CPUPercent, cs.MemoryMB, cs.MemoryLimitMB, cs.NetworkRxMB, cs.NetworkTxMB)
	return err
}

// RecentContainerStats returns the samples recorded for an application at
// or after sinceUnix, an absolute unix-seconds cutoff computed by the
// caller; this keeps the package free of a wall-clock dependency (time.Now
// is a caller concern so results stay deterministic under test).
func (s *Store) RecentContainerStats(ctx context.Context, applicationID int64, sinceUnix int64) ([]ContainerStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, container_id, application_id, cpu_percent, memory_mb, memory_limit_mb, network_rx_mb, network_tx_mb, recorded_at
		 FROM container_stats WHERE application_id = ? AND recorded_at >= datetime(?, 'unixepoch') ORDER BY recorded_at ASC`,
		applicationID, sinceUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContainerStats
	for rows.Next() {
		var cs ContainerStats
		var appID *int64
		if err := rows.Scan(&cs.ID, &cs.ContainerID, &appID, &cs.CPUPercent, &cs.MemoryMB, &cs.MemoryLimitMB, &cs.NetworkRxMB, &cs.NetworkTxMB, &cs.RecordedAt); err != nil {
			return nil, err
		}
		cs.ApplicationID = appID
		out = append(out, cs)
	}
	return out, rows.Err()
}

// PruneContainerStats deletes samples older than the retention window,
// expressed as an absolute unix cutoff. Called periodically by the health
// monitor's retention sweep.
func (s *Store) PruneContainerStats(ctx context.Context, beforeUnix int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM container_stats WHERE recorded_at < datetime(?, 'unixepoch')", beforeUnix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
