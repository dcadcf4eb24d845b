package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/VerdantProject/verdant/pkg/regression"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS baselines (
		branch        TEXT NOT NULL,
		workload      TEXT NOT NULL,
		energy_joules REAL NOT NULL,
		samples       INTEGER NOT NULL,
		updated_at    TEXT NOT NULL,
		PRIMARY KEY (branch, workload)
	)`,

	`CREATE TABLE IF NOT EXISTS measurements (
		id           TEXT PRIMARY KEY,
		branch       TEXT NOT NULL,
		workload     TEXT NOT NULL,
		commit_sha   TEXT NOT NULL DEFAULT '',
		total_joules REAL NOT NULL,
		components   TEXT NOT NULL DEFAULT '{}',
		phases       TEXT NOT NULL DEFAULT '[]',
		recorded_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_measurements_key ON measurements(branch, workload, recorded_at)`,
}

// SQLiteStore implements Store on SQLite. UpdateBaseline uses an
// immediate transaction so the read-modify-write is atomic across
// processes, not just goroutines.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath. Use
// ":memory:" for tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	// SQLite serializes writers anyway; a single connection keeps
	// transactions from fighting over the write lock and makes
	// ":memory:" share one database across the pool.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger.With("component", "store")}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadBaseline(ctx context.Context, branch, workload string) (regression.Baseline, error) {
	s.logger.Debug("sql", "op", "select", "table", "baselines", "branch", branch, "workload", workload)
	return loadBaseline(ctx, s.db, branch, workload)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadBaseline(ctx context.Context, q querier, branch, workload string) (regression.Baseline, error) {
	var b regression.Baseline
	var updatedAt string
	err := q.QueryRowContext(ctx,
		`SELECT branch, workload, energy_joules, samples, updated_at
		 FROM baselines WHERE branch = ? AND workload = ?`, branch, workload,
	).Scan(&b.Branch, &b.Workload, &b.EnergyJoules, &b.Samples, &updatedAt)
	if err == sql.ErrNoRows {
		return regression.Baseline{}, ErrNotFound
	}
	if err != nil {
		return regression.Baseline{}, err
	}
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return b, nil
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, b regression.Baseline) error {
	s.logger.Debug("sql", "op", "upsert", "table", "baselines", "branch", b.Branch, "workload", b.Workload)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baselines (branch, workload, energy_joules, samples, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (branch, workload) DO UPDATE SET
		   energy_joules = excluded.energy_joules,
		   samples = excluded.samples,
		   updated_at = excluded.updated_at`,
		b.Branch, b.Workload, b.EnergyJoules, b.Samples, b.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) UpdateBaseline(ctx context.Context, branch, workload string, fn func(regression.Baseline) (regression.Baseline, error)) (regression.Baseline, error) {
	s.logger.Debug("sql", "op", "update", "table", "baselines", "branch", branch, "workload", workload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return regression.Baseline{}, err
	}
	defer tx.Rollback()

	current, err := loadBaseline(ctx, tx, branch, workload)
	if err != nil && err != ErrNotFound {
		return regression.Baseline{}, err
	}

	next, err := fn(current)
	if err != nil {
		return regression.Baseline{}, err
	}
	next.Branch = branch
	next.Workload = workload

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO baselines (branch, workload, energy_joules, samples, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (branch, workload) DO UPDATE SET
		   energy_joules = excluded.energy_joules,
		   samples = excluded.samples,
		   updated_at = excluded.updated_at`,
		next.Branch, next.Workload, next.EnergyJoules, next.Samples, next.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return regression.Baseline{}, err
	}
	if err := tx.Commit(); err != nil {
		return regression.Baseline{}, err
	}
	return next, nil
}

func (s *SQLiteStore) AppendMeasurement(ctx context.Context, m regression.Measurement) error {
	s.logger.Debug("sql", "op", "insert", "table", "measurements", "id", m.ID)

	componentsJSON, err := json.Marshal(m.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	phases := m.Phases
	if phases == nil {
		phases = []regression.Phase{}
	}
	phasesJSON, err := json.Marshal(phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO measurements (id, branch, workload, commit_sha, total_joules, components, phases, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Branch, m.Workload, m.CommitSHA, m.TotalJoules,
		string(componentsJSON), string(phasesJSON),
		m.RecordedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListMeasurements(ctx context.Context, branch, workload string, limit int) ([]regression.Measurement, error) {
	s.logger.Debug("sql", "op", "select", "table", "measurements", "branch", branch, "workload", workload)

	query := `SELECT id, branch, workload, commit_sha, total_joules, components, phases, recorded_at
	          FROM measurements WHERE branch = ? AND workload = ?
	          ORDER BY recorded_at DESC`
	args := []any{branch, workload}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []regression.Measurement
	for rows.Next() {
		var m regression.Measurement
		var componentsJSON, phasesJSON, recordedAt string
		if err := rows.Scan(&m.ID, &m.Branch, &m.Workload, &m.CommitSHA, &m.TotalJoules,
			&componentsJSON, &phasesJSON, &recordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(componentsJSON), &m.Components); err != nil {
			return nil, fmt.Errorf("unmarshal components: %w", err)
		}
		if err := json.Unmarshal([]byte(phasesJSON), &m.Phases); err != nil {
			return nil, fmt.Errorf("unmarshal phases: %w", err)
		}
		if len(m.Phases) == 0 {
			m.Phases = nil
		}
		m.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
