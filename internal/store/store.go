// Package store persists discovered tenders and run history. Two backends
// implement the same interface: Postgres via pgx for deployments, SQLite via
// modernc for local single-binary use.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fernandes-group/tenderscan/internal/config"
	"github.com/fernandes-group/tenderscan/internal/model"
)

// Store is the persistence boundary for the discovery engine.
type Store interface {
	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// FilterNew returns the subset of controlNumbers not yet persisted,
	// preserving input order and dropping duplicates.
	FilterNew(ctx context.Context, controlNumbers []string) ([]string, error)

	// SaveTenders upserts tenders with their annotations under a run.
	SaveTenders(ctx context.Context, runID string, tenders []model.Tender) error

	// GetUnprocessed returns saved tenders that have no full classification
	// yet, oldest first.
	GetUnprocessed(ctx context.Context, limit int) ([]model.Tender, error)

	// CreateRun records the start of a discovery run and returns its ID.
	CreateRun(ctx context.Context) (string, error)

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, runID string, summary RunSummary) error

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close()
}

// RunSummary is the outcome written when a run finishes.
type RunSummary struct {
	Fetched  int
	Approved int
	APICalls int64
	Duration time.Duration
}

// Run is one recorded discovery run.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Fetched    int        `json:"fetched"`
	Approved   int        `json:"approved"`
	APICalls   int64      `json:"api_calls"`
	Status     string     `json:"status"`
}

// Open returns the store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
