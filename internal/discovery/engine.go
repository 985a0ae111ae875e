// Package discovery runs the four-stage tender funnel: bulk fetch, zero-call
// quick filter, bounded item sampling, and full processing. Each stage cuts
// the candidate set before the next spends API calls on it.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fernandes-group/tenderscan/internal/config"
	"github.com/fernandes-group/tenderscan/internal/model"
	"github.com/fernandes-group/tenderscan/internal/orgcache"
	"github.com/fernandes-group/tenderscan/internal/store"
	"github.com/fernandes-group/tenderscan/pkg/pncp"
)

// API is the slice of the registry client the engine needs.
type API interface {
	FetchListing(ctx context.Context, p pncp.Partition, modality, maxRecords int) ([]model.Tender, error)
	FetchItems(ctx context.Context, orgID string, year, sequence, limit int) ([]model.Item, error)
	FetchDetail(ctx context.Context, orgID string, year, sequence int) (model.Tender, error)
	Calls() int64
}

// Engine drives one partition through the funnel. All collaborators are
// injected; the engine owns no global state and two engines sharing a cache
// are safe.
type Engine struct {
	api   API
	store store.Store
	cache *orgcache.Cache
	cfg   config.DiscoveryConfig

	// pause is swapped out in tests to avoid real batch delays.
	pause func(ctx context.Context, d time.Duration)
}

// New wires an engine.
func New(api API, st store.Store, cache *orgcache.Cache, cfg config.DiscoveryConfig) *Engine {
	return &Engine{
		api:   api,
		store: st,
		cache: cache,
		cfg:   cfg,
		pause: sleepCtx,
	}
}

// Result is the outcome of one partition run.
type Result struct {
	RunID    string
	Approved []model.Tender
	Metrics  Metrics
}

// Run executes the full funnel for one partition and persists the outcome.
func (e *Engine) Run(ctx context.Context, p pncp.Partition) (*Result, error) {
	runID, err := e.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var m Metrics

	fetched := e.fetchStage(ctx, p, &m.Fetch)
	passed := e.quickFilterStage(fetched, &m.QuickFilter)
	approved := e.samplingStage(ctx, passed, &m.Sampling)
	final := e.fullProcessStage(ctx, approved, &m.FullProcess)

	if err := e.store.SaveTenders(ctx, runID, final); err != nil {
		return nil, err
	}
	if err := e.store.FinishRun(ctx, runID, store.RunSummary{
		Fetched:  m.Fetch.In,
		Approved: len(final),
		APICalls: m.TotalAPICalls(),
		Duration: time.Since(started),
	}); err != nil {
		return nil, err
	}

	m.Log()
	return &Result{RunID: runID, Approved: final, Metrics: m}, nil
}

// ProcessUnprocessed reruns Stage 4 over saved tenders that never received a
// full classification, usually because an earlier run was interrupted.
// Returns how many tenders were processed.
func (e *Engine) ProcessUnprocessed(ctx context.Context, limit int) (int, error) {
	tenders, err := e.store.GetUnprocessed(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(tenders) == 0 {
		return 0, nil
	}

	runID, err := e.store.CreateRun(ctx)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	var m StageMetrics
	processed := e.fullProcessStage(ctx, tenders, &m)

	if err := e.store.SaveTenders(ctx, runID, processed); err != nil {
		return 0, err
	}
	if err := e.store.FinishRun(ctx, runID, store.RunSummary{
		Fetched:  len(tenders),
		Approved: len(processed),
		APICalls: m.APICalls,
		Duration: time.Since(started),
	}); err != nil {
		return 0, err
	}

	zap.L().Info("reprocessed unclassified tenders",
		zap.Int("count", len(processed)), zap.Int64("api_calls", m.APICalls))
	return len(processed), nil
}

// fetchStage pulls listings for every configured modality and drops tenders
// already persisted. A failed modality contributes nothing instead of
// aborting the run.
func (e *Engine) fetchStage(ctx context.Context, p pncp.Partition, m *StageMetrics) []model.Tender {
	start := time.Now()
	callsBefore := e.api.Calls()
	m.Name = "fetch"

	var fetched []model.Tender
	for _, modality := range e.cfg.Modalities {
		tenders, err := e.api.FetchListing(ctx, p, modality, e.cfg.MaxRecords)
		if err != nil {
			zap.L().Warn("listing fetch failed, skipping modality",
				zap.Int("modality", modality), zap.Error(err))
			m.Errors++
			continue
		}
		fetched = append(fetched, tenders...)
	}
	m.In = len(fetched)

	fresh := e.filterNew(ctx, fetched, m)

	m.Out = len(fresh)
	m.APICalls = e.api.Calls() - callsBefore
	m.Duration = time.Since(start)
	return fresh
}

// filterNew drops tenders whose control numbers are already in the store.
// On store failure everything is treated as new; re-processing a tender is
// cheaper than losing one.
func (e *Engine) filterNew(ctx context.Context, fetched []model.Tender, m *StageMetrics) []model.Tender {
	if len(fetched) == 0 {
		return nil
	}

	controlNumbers := make([]string, 0, len(fetched))
	for _, t := range fetched {
		controlNumbers = append(controlNumbers, t.ControlNumber)
	}

	newNumbers, err := e.store.FilterNew(ctx, controlNumbers)
	if err != nil {
		zap.L().Warn("dedup lookup failed, treating all tenders as new", zap.Error(err))
		m.Errors++
		return dedupeByControlNumber(fetched)
	}

	keep := make(map[string]struct{}, len(newNumbers))
	for _, cn := range newNumbers {
		keep[cn] = struct{}{}
	}

	fresh := make([]model.Tender, 0, len(newNumbers))
	for _, t := range fetched {
		if _, ok := keep[t.ControlNumber]; ok {
			fresh = append(fresh, t)
			delete(keep, t.ControlNumber)
		}
	}
	return fresh
}

func dedupeByControlNumber(tenders []model.Tender) []model.Tender {
	seen := make(map[string]struct{}, len(tenders))
	out := make([]model.Tender, 0, len(tenders))
	for _, t := range tenders {
		if t.ControlNumber == "" {
			continue
		}
		if _, ok := seen[t.ControlNumber]; ok {
			continue
		}
		seen[t.ControlNumber] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
