package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/urban-futures/plantable/internal/hexgrid"
	"github.com/urban-futures/plantable/internal/plan"
)

// Store persists run results to SQLite so later runs and the inspect
// command can query them without re-parsing the JSON artifacts.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the results database and configures WAL
// mode.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
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
	return &Store{db: db}, nil
}

const storeMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	manifest    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	id            TEXT NOT NULL,
	segment       TEXT NOT NULL,
	station       INTEGER NOT NULL,
	side          TEXT NOT NULL,
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	state         TEXT NOT NULL,
	superseded_by TEXT,
	margin_ft     REAL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS candidate_constraints (
	run_id             TEXT NOT NULL,
	candidate_id       TEXT NOT NULL,
	name               TEXT NOT NULL,
	verdict            TEXT NOT NULL,
	distance_ft        REAL,
	nearest_feature_id TEXT,
	approximate        INTEGER NOT NULL DEFAULT 0,
	detail             TEXT,
	PRIMARY KEY (run_id, candidate_id, name)
);

CREATE TABLE IF NOT EXISTS hex_cells (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	cell       TEXT NOT NULL,
	trees      INTEGER NOT NULL,
	accepted   INTEGER NOT NULL,
	rejections TEXT,
	PRIMARY KEY (run_id, cell)
);

CREATE INDEX IF NOT EXISTS idx_candidates_state ON candidates(run_id, state);
CREATE INDEX IF NOT EXISTS idx_constraints_verdict ON candidate_constraints(run_id, name, verdict);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, storeMigration)
	return eris.Wrap(err, "store: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes the whole run inside one transaction.
func (s *Store) SaveRun(ctx context.Context, m *Manifest, candidates []plan.Candidate, cells map[string]*hexgrid.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "store: marshal manifest")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, manifest) VALUES (?, ?, ?, ?)`,
		m.RunID, m.StartedAt, m.FinishedAt, string(manifestJSON),
	); err != nil {
		return eris.Wrapf(err, "store: insert run %s", m.RunID)
	}

	candStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidates (run_id, id, segment, station, side, latitude, longitude, state, superseded_by, margin_ft)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "store: prepare candidates")
	}
	defer candStmt.Close()

	resStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidate_constraints (run_id, candidate_id, name, verdict, distance_ft, nearest_feature_id, approximate, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "store: prepare constraints")
	}
	defer resStmt.Close()

	for i := range candidates {
		c := &candidates[i]
		var supersededBy any
		if c.SupersededBy != "" {
			supersededBy = c.SupersededBy
		}
		if _, err := candStmt.ExecContext(ctx,
			m.RunID, c.ID, c.Segment, c.Station, string(c.Side),
			c.Pt.Lat, c.Pt.Lng, string(c.State), supersededBy, c.MarginFt,
		); err != nil {
			return eris.Wrapf(err, "store: insert candidate %s", c.ID)
		}
		for name, r := range c.Results {
			approx := 0
			if r.Approximate {
				approx = 1
			}
			if _, err := resStmt.ExecContext(ctx,
				m.RunID, c.ID, name, string(r.Verdict),
				r.DistanceFt, r.NearestFeatureID, approx, r.Detail,
			); err != nil {
				return eris.Wrapf(err, "store: insert result %s/%s", c.ID, name)
			}
		}
	}

	for _, id := range hexgrid.SortedCells(cells) {
		cell := cells[id]
		rejJSON, err := json.Marshal(cell.RejectionsByConstraint)
		if err != nil {
			return eris.Wrap(err, "store: marshal rejections")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hex_cells (run_id, cell, trees, accepted, rejections) VALUES (?, ?, ?, ?, ?)`,
			m.RunID, id, cell.ExistingTrees, cell.AcceptedCandidates, string(rejJSON),
		); err != nil {
			return eris.Wrapf(err, "store: insert cell %s", id)
		}
	}

	return eris.Wrap(tx.Commit(), "store: commit")
}

// RunRecord is a stored run's header row.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Manifest   Manifest
}

// LatestRun returns the most recently started run, or nil when the
// database holds none.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, manifest FROM runs ORDER BY started_at DESC LIMIT 1`)

	var r RunRecord
	var manifestJSON string
	err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &manifestJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}
	if err := json.Unmarshal([]byte(manifestJSON), &r.Manifest); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal manifest")
	}
	return &r, nil
}

// ListRuns returns stored run headers, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, manifest FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var manifestJSON string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &manifestJSON); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		if err := json.Unmarshal([]byte(manifestJSON), &r.Manifest); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal manifest")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: list runs iterate")
}

// StateCounts returns candidate counts by state for a run.
func (s *Store) StateCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM candidates WHERE run_id = ? GROUP BY state`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: state counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "store: scan state count")
		}
		counts[state] = n
	}
	return counts, eris.Wrap(rows.Err(), "store: state counts iterate")
}

// FailureCounts returns, per constraint, how many candidates it failed
// in a run, most frequent first.
func (s *Store) FailureCounts(ctx context.Context, runID string) ([]NameCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*) FROM candidate_constraints
		 WHERE run_id = ? AND verdict = 'FAIL'
		 GROUP BY name ORDER BY COUNT(*) DESC, name`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: failure counts")
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, eris.Wrap(err, "store: scan failure count")
		}
		out = append(out, nc)
	}
	return out, eris.Wrap(rows.Err(), "store: failure counts iterate")
}

// TopCells returns a run's hex cells ordered by accepted-candidate
// count, densest first.
func (s *Store) TopCells(ctx context.Context, runID string, limit int) ([]CellCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell, trees, accepted FROM hex_cells
		 WHERE run_id = ? ORDER BY accepted DESC, cell LIMIT ?`, runID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: top cells")
	}
	defer rows.Close()

	var out []CellCount
	for rows.Next() {
		var cc CellCount
		if err := rows.Scan(&cc.Cell, &cc.Trees, &cc.Accepted); err != nil {
			return nil, eris.Wrap(err, "store: scan cell")
		}
		out = append(out, cc)
	}
	return out, eris.Wrap(rows.Err(), "store: top cells iterate")
}

// NameCount pairs a constraint name with an occurrence count.
type NameCount struct {
	Name  string
	Count int
}

// CellCount is one hex cell's headline counts.
type CellCount struct {
	Cell     string
	Trees    int
	Accepted int
}
