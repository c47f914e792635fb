package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLite stores every metric of every run in a SQLite database, keyed
// by run ID. Only metrics and environment states are stored.
type SQLite struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	db    *sql.DB
	runID string
	err   error
}

// NewSQLite returns a new SQLite tracker storing to the database at
// path. Init must be called before the tracker is used.
func NewSQLite(path string, logger *zap.Logger) *SQLite {
	return &SQLite{path: path, logger: logger}
}

// Init opens the database and creates its tables if needed
func (s *SQLite) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("init: sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("init: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("init: %v", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("init: %v", err)
	}

	s.db = db
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			episode INTEGER NOT NULL,
			reward REAL NOT NULL,
			critic_loss REAL NOT NULL,
			actor_loss REAL NOT NULL,
			q_value REAL NOT NULL,
			epsilon REAL NOT NULL,
			terminal INTEGER NOT NULL,
			learned INTEGER NOT NULL,
			position REAL NOT NULL,
			velocity REAL NOT NULL,
			target REAL NOT NULL,
			PRIMARY KEY (run_id, step)
		);
	`)
	return err
}

// Reset records the start of a new run. Subsequent metrics are stored
// under runID.
func (s *SQLite) Reset(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = runID
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO runs (id, started_at)
		VALUES (?, ?)`, runID, time.Now().UTC().Format(time.RFC3339Nano))
	s.record("could not store run", err)
}

// Track stores m and s under the current run ID. Failures are logged
// and reported by Err, but never interrupt training.
func (s *SQLite) Track(m metric.Metric, state pointmass.SimState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.record("could not store metric", errors.New("database not "+
			"initialized"))
		return
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO metrics (run_id, step, episode, reward,
			critic_loss, actor_loss, q_value, epsilon, terminal, learned,
			position, velocity, target)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.runID, m.Step, m.Episode, m.Reward, m.CriticLoss, m.ActorLoss,
		m.QValue, m.Epsilon, m.Terminal, m.Learned, state.Position,
		state.Velocity, state.Target)
	s.record("could not store metric", err)
}

// record keeps the first error seen and logs every error
func (s *SQLite) record(msg string, err error) {
	if err == nil {
		return
	}
	if s.err == nil {
		s.err = err
	}
	s.logger.Warn(msg, zap.String("run", s.runID), zap.Error(err))
}

// Err returns the first error encountered while storing data
func (s *SQLite) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Runs returns the IDs of all stored runs in the order they started
func (s *SQLite) Runs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("runs: %v", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("runs: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("runs: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Metrics returns all stored metrics of a run in step order
func (s *SQLite) Metrics(ctx context.Context, runID string) ([]metric.Metric,
	error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("metrics: %v", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT step, episode, reward, critic_loss, actor_loss, q_value,
			epsilon, terminal, learned
		FROM metrics WHERE run_id = ? ORDER BY step
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("metrics: %v", err)
	}
	defer rows.Close()

	var ms []metric.Metric
	for rows.Next() {
		var m metric.Metric
		err := rows.Scan(&m.Step, &m.Episode, &m.Reward, &m.CriticLoss,
			&m.ActorLoss, &m.QValue, &m.Epsilon, &m.Terminal, &m.Learned)
		if err != nil {
			return nil, fmt.Errorf("metrics: %v", err)
		}
		ms = append(ms, m)
	}
	return ms, rows.Err()
}

func (s *SQLite) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
