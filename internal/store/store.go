// Package store persists finished sort runs and their spike trains to
// sqlite so downstream tooling can query results without re-running the
// sorter.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/spikesort/internal/cluster"
)

// DB wraps the sqlite handle holding sort runs.
type DB struct {
	*sql.DB
}

// SortRun is one completed clustering run's metadata row.
type SortRun struct {
	RunID        string
	Recording    string
	Method       string // "mixture" or "split"
	ChannelCount int
	ClusterCount int
	SpikeCount   int
	CreatedAt    time.Time
}

// Open opens (creating if needed) a sort-run database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sort_runs (
			run_id         TEXT PRIMARY KEY,
			recording      TEXT,
			method         TEXT,
			channel_count  BIGINT,
			cluster_count  BIGINT,
			spike_count    BIGINT,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS spike_train (
			run_id         TEXT,
			spike_time     BIGINT,
			cluster_id     BIGINT,
			FOREIGN KEY(run_id) REFERENCES sort_runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_spike_train_run
			ON spike_train(run_id, spike_time);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// InsertRun writes a run's metadata and its spike train in one
// transaction and returns the generated run id.
func (db *DB) InsertRun(recording, method string, channelCount int, rows []cluster.TrainRow) (string, error) {
	runID := uuid.NewString()

	clusters := make(map[int]bool)
	for _, r := range rows {
		clusters[r.Cluster] = true
	}

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sort_runs (run_id, recording, method, channel_count, cluster_count, spike_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, recording, method, channelCount, len(clusters), len(rows))
	if err != nil {
		return "", fmt.Errorf("insert sort run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO spike_train (run_id, spike_time, cluster_id) VALUES (?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(runID, r.Time, r.Cluster); err != nil {
			return "", fmt.Errorf("insert spike train row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// GetRun returns one run's metadata.
func (db *DB) GetRun(runID string) (*SortRun, error) {
	row := db.QueryRow(`
		SELECT run_id, recording, method, channel_count, cluster_count, spike_count, created_at
		FROM sort_runs WHERE run_id = ?`, runID)
	var run SortRun
	err := row.Scan(&run.RunID, &run.Recording, &run.Method,
		&run.ChannelCount, &run.ClusterCount, &run.SpikeCount, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get sort run %s: %w", runID, err)
	}
	return &run, nil
}

// GetSpikeTrain returns a run's spike train ordered by ascending time.
func (db *DB) GetSpikeTrain(runID string) ([]cluster.TrainRow, error) {
	rows, err := db.Query(`
		SELECT spike_time, cluster_id FROM spike_train
		WHERE run_id = ? ORDER BY spike_time ASC, cluster_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cluster.TrainRow
	for rows.Next() {
		var r cluster.TrainRow
		if err := rows.Scan(&r.Time, &r.Cluster); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
