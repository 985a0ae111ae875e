package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// SQLiteStore persists tenders in a local SQLite file. Single-writer by
// nature; fine for one discovery process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite store at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "tenderscan.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// Serialized access keeps modernc happy under concurrent stage writes.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	fetched     INTEGER NOT NULL DEFAULT 0,
	approved    INTEGER NOT NULL DEFAULT 0,
	api_calls   INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS tenders (
	control_number  TEXT PRIMARY KEY,
	run_id          TEXT REFERENCES runs(id),
	org_id          TEXT NOT NULL,
	org_name        TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	estimated_value REAL NOT NULL DEFAULT 0,
	awarded_value   REAL NOT NULL DEFAULT 0,
	modality_id     INTEGER NOT NULL DEFAULT 0,
	modality_name   TEXT NOT NULL DEFAULT '',
	year            INTEGER NOT NULL DEFAULT 0,
	sequence        INTEGER NOT NULL DEFAULT 0,
	state           TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMP,
	annotation      TEXT NOT NULL DEFAULT '{}',
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tenders_org ON tenders (org_id);
CREATE INDEX IF NOT EXISTS idx_tenders_run ON tenders (run_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

// FilterNew returns controlNumbers that do not exist yet, input order
// preserved, duplicates dropped.
func (s *SQLiteStore) FilterNew(ctx context.Context, controlNumbers []string) ([]string, error) {
	if len(controlNumbers) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(controlNumbers))
	args := make([]any, len(controlNumbers))
	for i, cn := range controlNumbers {
		placeholders[i] = "?"
		args[i] = cn
	}
	query := `SELECT control_number FROM tenders WHERE control_number IN (` +
		strings.Join(placeholders, ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: filter new")
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var cn string
		if err := rows.Scan(&cn); err != nil {
			return nil, eris.Wrap(err, "store: scan control number")
		}
		existing[cn] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: filter new rows")
	}

	fresh := make([]string, 0, len(controlNumbers))
	seen := make(map[string]struct{}, len(controlNumbers))
	for _, cn := range controlNumbers {
		if cn == "" {
			continue
		}
		if _, dup := seen[cn]; dup {
			continue
		}
		seen[cn] = struct{}{}
		if _, ok := existing[cn]; !ok {
			fresh = append(fresh, cn)
		}
	}
	return fresh, nil
}

// SaveTenders upserts tenders with their annotations.
func (s *SQLiteStore) SaveTenders(ctx context.Context, runID string, tenders []model.Tender) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin save")
	}
	defer tx.Rollback()

	for _, t := range tenders {
		annotation, err := json.Marshal(t.Annotation)
		if err != nil {
			return eris.Wrapf(err, "store: marshal annotation %s", t.ControlNumber)
		}
		var publishedAt any
		if !t.PublishedAt.IsZero() {
			publishedAt = t.PublishedAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tenders (
				control_number, run_id, org_id, org_name, title, description,
				estimated_value, awarded_value, modality_id, modality_name,
				year, sequence, state, city, published_at, annotation
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT (control_number) DO UPDATE SET
				run_id = excluded.run_id,
				awarded_value = excluded.awarded_value,
				annotation = excluded.annotation`,
			t.ControlNumber, runID, t.OrgID, t.OrgName, t.Title, t.Description,
			t.EstimatedValue, t.AwardedValue, t.ModalityID, t.ModalityName,
			t.Year, t.Sequence, t.State, t.City, publishedAt, string(annotation))
		if err != nil {
			return eris.Wrapf(err, "store: save tender %s", t.ControlNumber)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit save")
	}
	return nil
}

// GetUnprocessed returns saved tenders without a full classification.
func (s *SQLiteStore) GetUnprocessed(ctx context.Context, limit int) ([]model.Tender, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT control_number, org_id, org_name, title, description,
			estimated_value, awarded_value, modality_id, modality_name,
			year, sequence, state, city, published_at, annotation
		FROM tenders
		WHERE json_extract(annotation, '$.classification') IS NULL
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: get unprocessed")
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		var t model.Tender
		var publishedAt sql.NullTime
		var annotation string
		err := rows.Scan(&t.ControlNumber, &t.OrgID, &t.OrgName, &t.Title, &t.Description,
			&t.EstimatedValue, &t.AwardedValue, &t.ModalityID, &t.ModalityName,
			&t.Year, &t.Sequence, &t.State, &t.City, &publishedAt, &annotation)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan tender")
		}
		if publishedAt.Valid {
			t.PublishedAt = publishedAt.Time
		}
		if annotation != "" {
			if err := json.Unmarshal([]byte(annotation), &t.Annotation); err != nil {
				return nil, eris.Wrapf(err, "store: unmarshal annotation %s", t.ControlNumber)
			}
		}
		tenders = append(tenders, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate tenders")
	}
	return tenders, nil
}

// CreateRun records a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, 'running')`, id, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "store: create run")
	}
	return id, nil
}

// FinishRun records the outcome of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, fetched = ?, approved = ?, api_calls = ?, status = 'done'
		WHERE id = ?`,
		time.Now().UTC(), summary.Fetched, summary.Approved, summary.APICalls, runID)
	if err != nil {
		return eris.Wrapf(err, "store: finish run %s", runID)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, fetched, approved, api_calls, status
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Fetched, &r.Approved, &r.APICalls, &r.Status); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate runs")
	}
	return runs, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}
