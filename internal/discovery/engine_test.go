package discovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandes-group/tenderscan/internal/config"
	"github.com/fernandes-group/tenderscan/internal/model"
	"github.com/fernandes-group/tenderscan/internal/orgcache"
	"github.com/fernandes-group/tenderscan/internal/store"
	"github.com/fernandes-group/tenderscan/pkg/pncp"
)

// fakeAPI serves canned data and tracks call concurrency.
type fakeAPI struct {
	mu         sync.Mutex
	calls      int64
	listings   map[int][]model.Tender
	listingErr map[int]error
	items      map[string][]model.Item
	itemsErr   map[string]error
	details    map[string]model.Tender

	inFlight     int
	peakInFlight int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		listings:   make(map[int][]model.Tender),
		listingErr: make(map[int]error),
		items:      make(map[string][]model.Item),
		itemsErr:   make(map[string]error),
		details:    make(map[string]model.Tender),
	}
}

func itemKey(orgID string, year, sequence int) string {
	return fmt.Sprintf("%s/%d/%d", orgID, year, sequence)
}

func (f *fakeAPI) enter() {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.peakInFlight {
		f.peakInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeAPI) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeAPI) FetchListing(ctx context.Context, p pncp.Partition, modality, maxRecords int) ([]model.Tender, error) {
	f.enter()
	defer f.leave()
	if err := f.listingErr[modality]; err != nil {
		return nil, err
	}
	tenders := f.listings[modality]
	if maxRecords > 0 && len(tenders) > maxRecords {
		tenders = tenders[:maxRecords]
	}
	return tenders, nil
}

func (f *fakeAPI) FetchItems(ctx context.Context, orgID string, year, sequence, limit int) ([]model.Item, error) {
	f.enter()
	defer f.leave()
	time.Sleep(2 * time.Millisecond) // let concurrent workers overlap
	key := itemKey(orgID, year, sequence)
	if err := f.itemsErr[key]; err != nil {
		return nil, err
	}
	items := f.items[key]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeAPI) FetchDetail(ctx context.Context, orgID string, year, sequence int) (model.Tender, error) {
	f.enter()
	defer f.leave()
	if detail, ok := f.details[itemKey(orgID, year, sequence)]; ok {
		return detail, nil
	}
	return model.Tender{}, eris.New("not found")
}

func (f *fakeAPI) Calls() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAPI) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakInFlight
}

// fakeStore keeps everything in memory.
type fakeStore struct {
	mu        sync.Mutex
	existing    map[string]struct{}
	saved       map[string][]model.Tender
	summaries   map[string]store.RunSummary
	unprocessed []model.Tender
	runSeq      int
	filterErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing:  make(map[string]struct{}),
		saved:     make(map[string][]model.Tender),
		summaries: make(map[string]store.RunSummary),
	}
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }

func (f *fakeStore) FilterNew(ctx context.Context, controlNumbers []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var fresh []string
	seen := make(map[string]struct{})
	for _, cn := range controlNumbers {
		if cn == "" {
			continue
		}
		if _, dup := seen[cn]; dup {
			continue
		}
		seen[cn] = struct{}{}
		if _, ok := f.existing[cn]; !ok {
			fresh = append(fresh, cn)
		}
	}
	return fresh, nil
}

func (f *fakeStore) SaveTenders(ctx context.Context, runID string, tenders []model.Tender) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[runID] = append(f.saved[runID], tenders...)
	for _, t := range tenders {
		f.existing[t.ControlNumber] = struct{}{}
	}
	return nil
}

func (f *fakeStore) GetUnprocessed(ctx context.Context, limit int) ([]model.Tender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.unprocessed) > limit {
		return f.unprocessed[:limit], nil
	}
	return f.unprocessed, nil
}

func (f *fakeStore) CreateRun(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSeq++
	return fmt.Sprintf("run-%d", f.runSeq), nil
}

func (f *fakeStore) FinishRun(ctx context.Context, runID string, summary store.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[runID] = summary
	return nil
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) { return nil, nil }

func (f *fakeStore) Close() {}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MaxRecords:        1000,
		Modalities:        []int{6},
		MinTenderValue:    1000,
		PassThreshold:     30,
		SampleWorkers:     5,
		SampleBatchSize:   50,
		SampleItems:       3,
		BatchPauseSecs:    0,
		HighValueMin:      100_000,
		MediumValueMin:    10_000,
		HighConcurrency:   10,
		MediumConcurrency: 5,
		LowConcurrency:    3,
	}
}

func newTestEngine(api *fakeAPI, st store.Store, cfg config.DiscoveryConfig) (*Engine, *orgcache.Cache) {
	cache := orgcache.New(orgcache.DefaultOptions())
	e := New(api, st, cache, cfg)
	e.pause = func(ctx context.Context, d time.Duration) {}
	return e, cache
}

func hospitalTender(n int, value float64) model.Tender {
	return model.Tender{
		ControlNumber:  fmt.Sprintf("cn-%03d", n),
		OrgID:          fmt.Sprintf("%08d0001%02d", 11_000_000+n, n%100),
		OrgName:        "Hospital Municipal de Teste",
		Title:          "Aquisição de medicamentos e material hospitalar",
		EstimatedValue: value,
		ModalityID:     6,
		Year:           2026,
		Sequence:       n,
		State:          "SP",
	}
}

func plainTender(n int, value float64) model.Tender {
	return model.Tender{
		ControlNumber:  fmt.Sprintf("cn-%03d", n),
		OrgID:          fmt.Sprintf("%08d0001%02d", 22_000_000+n, n%100),
		OrgName:        "Prefeitura Municipal de Teste",
		Title:          "Aquisição de material de consumo diverso",
		EstimatedValue: value,
		ModalityID:     6,
		Year:           2026,
		Sequence:       n,
		State:          "SP",
	}
}

func TestEngineRun(t *testing.T) {
	api := newFakeAPI()
	st := newFakeStore()
	e, _ := newTestEngine(api, st, testDiscoveryConfig())

	winner := hospitalTender(1, 250_000)
	edge := samplingTender(2, 20_000)
	loser := plainTender(3, 20_000)
	duplicate := hospitalTender(1, 250_000)
	api.listings[6] = []model.Tender{winner, edge, loser, duplicate}

	for _, tender := range []model.Tender{winner, edge} {
		key := itemKey(tender.OrgID, tender.Year, tender.Sequence)
		api.items[key] = []model.Item{{Number: 1, Description: "Curativo CATMAT 651525", MaterialOrService: "M"}}
		api.details[key] = tender
	}

	result, err := e.Run(context.Background(), pncp.Partition{
		DateFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
		State:    "SP",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, result.Approved, 2)
	approved := map[string]model.Tender{}
	for _, tender := range result.Approved {
		approved[tender.ControlNumber] = tender
	}
	assert.Equal(t, "score+keywords", approved["cn-001"].Annotation.ApprovalReason)
	assert.Equal(t, "item_sampling", approved["cn-002"].Annotation.ApprovalReason)
	for _, tender := range result.Approved {
		assert.NotNil(t, tender.Annotation.Classification)
	}

	m := result.Metrics
	assert.Equal(t, 4, m.Fetch.In, "duplicates count as fetched")
	assert.Equal(t, 3, m.Fetch.Out, "duplicate control numbers are dropped")
	assert.Equal(t, 2, m.QuickFilter.Out)
	assert.Equal(t, 2, m.Sampling.Out)
	assert.Equal(t, 2, m.FullProcess.Out)

	// Persisted and recorded.
	assert.Len(t, st.saved[result.RunID], 2)
	summary, ok := st.summaries[result.RunID]
	require.True(t, ok)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 2, summary.Approved)
	assert.Equal(t, m.TotalAPICalls(), summary.APICalls)
}

func TestEngineRunSecondPassSkipsSaved(t *testing.T) {
	api := newFakeAPI()
	st := newFakeStore()
	e, _ := newTestEngine(api, st, testDiscoveryConfig())

	winner := hospitalTender(1, 250_000)
	key := itemKey(winner.OrgID, winner.Year, winner.Sequence)
	api.items[key] = []model.Item{{Number: 1, Description: "Curativo CATMAT 651525"}}
	api.details[key] = winner
	api.listings[6] = []model.Tender{winner}

	p := pncp.Partition{DateFrom: time.Now().AddDate(0, 0, -7), DateTo: time.Now()}

	first, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, first.Approved, 1)

	second, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, second.Approved, "already-persisted tenders must not be reprocessed")
	assert.Equal(t, 1, second.Metrics.Fetch.In)
	assert.Equal(t, 0, second.Metrics.Fetch.Out)
}

func TestEngineRunFetchFailureYieldsEmptyStage(t *testing.T) {
	api := newFakeAPI()
	cfg := testDiscoveryConfig()
	cfg.Modalities = []int{4, 6}
	st := newFakeStore()
	e, _ := newTestEngine(api, st, cfg)

	api.listingErr[4] = eris.New("registry down")
	winner := hospitalTender(1, 250_000)
	key := itemKey(winner.OrgID, winner.Year, winner.Sequence)
	api.items[key] = []model.Item{{Number: 1, Description: "Curativo CATMAT 651525"}}
	api.details[key] = winner
	api.listings[6] = []model.Tender{winner}

	result, err := e.Run(context.Background(), pncp.Partition{DateFrom: time.Now(), DateTo: time.Now()})
	require.NoError(t, err, "a failed modality must not abort the run")
	assert.Len(t, result.Approved, 1)
	assert.Equal(t, 1, result.Metrics.Fetch.Errors)
}

func TestProcessUnprocessed(t *testing.T) {
	api := newFakeAPI()
	st := newFakeStore()
	e, _ := newTestEngine(api, st, testDiscoveryConfig())

	leftover := hospitalTender(1, 250_000)
	key := itemKey(leftover.OrgID, leftover.Year, leftover.Sequence)
	api.items[key] = []model.Item{{Number: 1, Description: "Curativo CATMAT 651525"}}
	api.details[key] = leftover
	st.unprocessed = []model.Tender{leftover}

	processed, err := e.ProcessUnprocessed(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, st.saved["run-1"], 1)
	assert.NotNil(t, st.saved["run-1"][0].Annotation.Classification)
}

func TestProcessUnprocessedEmpty(t *testing.T) {
	e, _ := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	processed, err := e.ProcessUnprocessed(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestFilterNewFallsBackOnStoreError(t *testing.T) {
	api := newFakeAPI()
	st := newFakeStore()
	st.filterErr = eris.New("db down")
	e, _ := newTestEngine(api, st, testDiscoveryConfig())

	input := []model.Tender{hospitalTender(1, 20_000), hospitalTender(1, 20_000)}
	var m StageMetrics
	fresh := e.filterNew(context.Background(), input, &m)

	require.Len(t, fresh, 1, "fallback still drops duplicate control numbers")
	assert.Equal(t, 1, m.Errors)
}
