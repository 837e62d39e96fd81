package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridroad/trafficd/pkg/network"
)

// Store implements NetworkRepository and SessionRepository on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath (":memory:" for tests),
// enables WAL mode, and migrates the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS networks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data JSON NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		network_id TEXT NOT NULL,
		state TEXT NOT NULL,
		step_count INTEGER NOT NULL,
		sim_time INTEGER NOT NULL,
		updated_at DATETIME NOT NULL,
		payload JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_network ON sessions(network_id);

	-- Append-only metric history, one row per completed tick.
	CREATE TABLE IF NOT EXISTS metrics (
		session_id TEXT NOT NULL,
		sim_time INTEGER NOT NULL,
		step INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (session_id, sim_time)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// GetNetwork loads a network by id. The returned graph has its indexes rebuilt and
// all per-edge simulation state empty.
func (s *Store) GetNetwork(ctx context.Context, id string) (*network.Network, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM networks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("network %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load network %s: %w", id, err)
	}
	var n network.Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network %s: %w", id, err)
	}
	n.Reindex()
	return &n, nil
}

// SaveNetwork upserts a network. Occupancy state is not serialized, so a later Get
// returns the graph with occupancy reset.
func (s *Store) SaveNetwork(ctx context.Context, n *network.Network) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal network %s: %w", n.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO networks (id, name, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		n.ID, n.Name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save network %s: %w", n.ID, err)
	}
	return nil
}

// DeleteNetwork removes a network. Deleting an absent id is a no-op.
func (s *Store) DeleteNetwork(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete network %s: %w", id, err)
	}
	return nil
}

// CloneNetwork persists a structural copy of the network under a new name.
func (s *Store) CloneNetwork(ctx context.Context, n *network.Network, newName string) (*network.Network, error) {
	clone := n.Clone(newName)
	if err := s.SaveNetwork(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to save clone of %s: %w", n.ID, err)
	}
	return clone, nil
}

// GetSession loads a session record by id.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, network_id, state, step_count, sim_time, updated_at, payload
		FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return rec, nil
}

// SaveSession upserts a session record. Saves that would move StepCount or
// SimTime backwards for the same id are rejected: the clock is monotone.
func (s *Store) SaveSession(ctx context.Context, rec *SessionRecord) error {
	var step, simTime int64
	err := s.db.QueryRowContext(ctx,
		`SELECT step_count, sim_time FROM sessions WHERE id = ?`, rec.ID).Scan(&step, &simTime)
	if err == nil && (rec.StepCount < step || rec.SimTime < simTime) {
		return fmt.Errorf("session %s: refusing save moving clock backwards (step %d->%d, time %d->%d)",
			rec.ID, step, rec.StepCount, simTime, rec.SimTime)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check session %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, network_id, state, step_count, sim_time, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, state = excluded.state,
			step_count = excluded.step_count, sim_time = excluded.sim_time,
			updated_at = excluded.updated_at, payload = excluded.payload`,
		rec.ID, rec.Name, rec.NetworkID, rec.State, rec.StepCount, rec.SimTime,
		rec.UpdatedAt.UTC(), []byte(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

// ListSessionsByNetwork returns the session records bound to a network,
// newest first.
func (s *Store) ListSessionsByNetwork(ctx context.Context, networkID string) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, network_id, state, step_count, sim_time, updated_at, payload
		FROM sessions WHERE network_id = ? ORDER BY updated_at DESC`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for network %s: %w", networkID, err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its metric history.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metrics WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete metrics for session %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// AppendMetric upserts one per-tick metric row. Upsert, not plain insert: a
// tick that died between the metric write and the session save leaves an
// orphan row at the same sim time, and the retried tick must be able to
// overwrite it instead of failing the unique key forever.
func (s *Store) AppendMetric(ctx context.Context, m *Metric) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metric: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics (session_id, sim_time, step, created_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, sim_time) DO UPDATE SET
			step = excluded.step, created_at = excluded.created_at, data = excluded.data`,
		m.SessionID, m.SimTime, m.Step, m.CreatedAt.UTC(), data)
	if err != nil {
		return fmt.Errorf("failed to append metric for session %s: %w", m.SessionID, err)
	}
	return nil
}

// MetricHistory returns the session's metrics ordered by simulation time.
func (s *Store) MetricHistory(ctx context.Context, sessionID string) ([]*Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM metrics WHERE session_id = ? ORDER BY sim_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		var m Metric
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metric: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var payload []byte
	if err := row.Scan(&rec.ID, &rec.Name, &rec.NetworkID, &rec.State,
		&rec.StepCount, &rec.SimTime, &rec.UpdatedAt, &payload); err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}
