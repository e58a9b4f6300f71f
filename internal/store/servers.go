package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateServer inserts a new deployment target.
func (s *Store) CreateServer(ctx context.Context, srv Server) (Server, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (name, host, port, username, ssh_private_key, is_local, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		srv.Name, srv.Host, srv.Port, srv.Username, srv.SSHPrivateKey, srv.IsLocal, ServerUnknown)
	if err != nil {
		return Server{}, fmt.Errorf("create server: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Server{}, err
	}
	return s.GetServer(ctx, id)
}

// EnsureLocalServer returns the is_local=true server, creating it if this is
// the first boot. Invariant (spec.md §3): exactly one server is_local=true.
func (s *Store) EnsureLocalServer(ctx context.Context) (Server, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM servers WHERE is_local = 1 LIMIT 1").Scan(&id)
	if err == nil {
		return s.GetServer(ctx, id)
	}
	if err != sql.ErrNoRows {
		return Server{}, fmt.Errorf("query local server: %w", err)
	}

	return s.CreateServer(ctx, Server{
		Name:     "local",
		Host:     "127.0.0.1",
		Port:     22,
		Username: "root",
		IsLocal:  true,
	})
}

func (s *Store) GetServer(ctx context.Context, id int64) (Server, error) {
	var srv Server
	var sshKey sql.NullString
	var lastSeen sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, host, port, username, ssh_private_key, is_local, status, last_seen_at, created_at
		 FROM servers WHERE id = ?`, id,
	).Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Username, &sshKey, &srv.IsLocal, &srv.Status, &lastSeen, &srv.CreatedAt)
	if err != nil {
		return Server{}, err
	}
	if sshKey.Valid {
		srv.SSHPrivateKey = &sshKey.String
	}
	if lastSeen.Valid {
		srv.LastSeenAt = &lastSeen.Time
	}
	return srv, nil
}

func (s *Store) ListServers(ctx context.Context) ([]Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, host, port, username, ssh_private_key, is_local, status, last_seen_at, created_at
		 FROM servers ORDER BY is_local DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []Server
	for rows.Next() {
		var srv Server
		var sshKey sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Username, &sshKey, &srv.IsLocal, &srv.Status, &lastSeen, &srv.CreatedAt); err != nil {
			return nil, err
		}
		if sshKey.Valid {
			srv.SSHPrivateKey = &sshKey.String
		}
		if lastSeen.Valid {
			srv.LastSeenAt = &lastSeen.Time
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// UpdateServerStatus records the last heartbeat/reachability check result.
func (s *Store) UpdateServerStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE servers SET status = ?, last_seen_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	return err
}
