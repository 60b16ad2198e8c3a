// Package store persists run history in SQLite so batch resolutions are
// auditable after the fact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/heritage-maps/gedmap-cli/internal/model"
)

// RunStore records resolution runs using modernc.org/sqlite.
type RunStore struct {
	db *sql.DB
}

// Open opens (or creates) the run database at path and configures WAL mode.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &RunStore{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	places      INTEGER NOT NULL DEFAULT 0,
	resolved    INTEGER NOT NULL DEFAULT 0,
	unresolved  INTEGER NOT NULL DEFAULT 0,
	stats       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *RunStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new running record for a batch over source.
func (s *RunStore) CreateRun(ctx context.Context, source string, places int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, places, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusRunning), places, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		Places:    places,
		StartedAt: now,
	}, nil
}

// CompleteRun finalizes a run with its outcome and counter snapshot.
func (s *RunStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, resolved, unresolved int, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "store: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, resolved = ?, unresolved = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(status), resolved, unresolved, string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// GetRun fetches one run by id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, places, resolved, unresolved, stats, started_at, finished_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// RecentRuns lists runs newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, places, resolved, unresolved, stats, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "store: list runs iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Source, &r.Status, &r.Places, &r.Resolved, &r.Unresolved,
		&statsJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	if statsJSON.Valid && statsJSON.String != "" && statsJSON.String != "null" {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Stats); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal stats")
		}
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}
