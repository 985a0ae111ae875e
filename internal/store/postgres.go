package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// pgxPool is the slice of pgxpool.Pool the store uses; pgxmock implements it
// in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists tenders in Postgres.
type PostgresStore struct {
	db pgxPool
}

// NewPostgres connects a pooled Postgres store.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{db: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	fetched     INTEGER NOT NULL DEFAULT 0,
	approved    INTEGER NOT NULL DEFAULT 0,
	api_calls   BIGINT NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS tenders (
	control_number  TEXT PRIMARY KEY,
	run_id          UUID REFERENCES runs(id),
	org_id          TEXT NOT NULL,
	org_name        TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	estimated_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	awarded_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
	modality_id     INTEGER NOT NULL DEFAULT 0,
	modality_name   TEXT NOT NULL DEFAULT '',
	year            INTEGER NOT NULL DEFAULT 0,
	sequence        INTEGER NOT NULL DEFAULT 0,
	state           TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ,
	annotation      JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tenders_org ON tenders (org_id);
CREATE INDEX IF NOT EXISTS idx_tenders_run ON tenders (run_id);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

// FilterNew returns controlNumbers that do not exist yet, input order
// preserved, duplicates dropped.
func (s *PostgresStore) FilterNew(ctx context.Context, controlNumbers []string) ([]string, error) {
	if len(controlNumbers) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT control_number FROM tenders WHERE control_number = ANY($1)`, controlNumbers)
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

const upsertTenderSQL = `
INSERT INTO tenders (
	control_number, run_id, org_id, org_name, title, description,
	estimated_value, awarded_value, modality_id, modality_name,
	year, sequence, state, city, published_at, annotation
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (control_number) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	awarded_value = EXCLUDED.awarded_value,
	annotation = EXCLUDED.annotation`

// SaveTenders upserts tenders with their annotations.
func (s *PostgresStore) SaveTenders(ctx context.Context, runID string, tenders []model.Tender) error {
	for _, t := range tenders {
		annotation, err := json.Marshal(t.Annotation)
		if err != nil {
			return eris.Wrapf(err, "store: marshal annotation %s", t.ControlNumber)
		}
		var publishedAt *time.Time
		if !t.PublishedAt.IsZero() {
			publishedAt = &t.PublishedAt
		}
		_, err = s.db.Exec(ctx, upsertTenderSQL,
			t.ControlNumber, runID, t.OrgID, t.OrgName, t.Title, t.Description,
			t.EstimatedValue, t.AwardedValue, t.ModalityID, t.ModalityName,
			t.Year, t.Sequence, t.State, t.City, publishedAt, annotation)
		if err != nil {
			return eris.Wrapf(err, "store: save tender %s", t.ControlNumber)
		}
	}
	return nil
}

const selectTenderSQL = `
SELECT control_number, org_id, org_name, title, description,
	estimated_value, awarded_value, modality_id, modality_name,
	year, sequence, state, city, published_at, annotation
FROM tenders`

// GetUnprocessed returns saved tenders without a full classification.
func (s *PostgresStore) GetUnprocessed(ctx context.Context, limit int) ([]model.Tender, error) {
	rows, err := s.db.Query(ctx,
		selectTenderSQL+` WHERE annotation->'classification' IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: get unprocessed")
	}
	defer rows.Close()
	return scanTenders(rows)
}

func scanTenders(rows pgx.Rows) ([]model.Tender, error) {
	var tenders []model.Tender
	for rows.Next() {
		var t model.Tender
		var publishedAt *time.Time
		var annotation []byte
		err := rows.Scan(&t.ControlNumber, &t.OrgID, &t.OrgName, &t.Title, &t.Description,
			&t.EstimatedValue, &t.AwardedValue, &t.ModalityID, &t.ModalityName,
			&t.Year, &t.Sequence, &t.State, &t.City, &publishedAt, &annotation)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan tender")
		}
		if publishedAt != nil {
			t.PublishedAt = *publishedAt
		}
		if len(annotation) > 0 {
			if err := json.Unmarshal(annotation, &t.Annotation); err != nil {
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
func (s *PostgresStore) CreateRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES ($1, now(), 'running')`, id)
	if err != nil {
		return "", eris.Wrap(err, "store: create run")
	}
	return id, nil
}

// FinishRun records the outcome of a run.
func (s *PostgresStore) FinishRun(ctx context.Context, runID string, summary RunSummary) error {
	_, err := s.db.Exec(ctx,
		`UPDATE runs SET finished_at = now(), fetched = $2, approved = $3, api_calls = $4, status = 'done'
		 WHERE id = $1`,
		runID, summary.Fetched, summary.Approved, summary.APICalls)
	if err != nil {
		return eris.Wrapf(err, "store: finish run %s", runID)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, started_at, finished_at, fetched, approved, api_calls, status
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Fetched, &r.Approved, &r.APICalls, &r.Status); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate runs")
	}
	return runs, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}
