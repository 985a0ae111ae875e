package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// samplingTender scores exactly at the pass threshold with no strong
// keywords, so it survives Stage 2 but is not auto-approved in Stage 3.
func samplingTender(n int, value float64) model.Tender {
	t := plainTender(n, value)
	t.Title = "Aquisição de gaze e luvas descartáveis"
	return t
}

func rejectedTender(n int) model.Tender {
	t := plainTender(n, 50_000)
	t.OrgName = "Secretaria Municipal de Educação"
	return t
}

func TestQuickFilterStage(t *testing.T) {
	e, _ := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	input := []model.Tender{
		rejectedTender(1),
		samplingTender(2, 20_000),
		hospitalTender(3, 20_000),
		plainTender(4, 20_000), // below threshold
	}

	var m StageMetrics
	passed := e.quickFilterStage(input, &m)

	require.Len(t, passed, 2)
	assert.Equal(t, 4, m.In)
	assert.Equal(t, 2, m.Out)
	assert.Zero(t, m.APICalls, "quick filtering must not spend API calls")

	// Sorted best score first.
	assert.Equal(t, "cn-003", passed[0].ControlNumber)
	assert.Equal(t, "cn-002", passed[1].ControlNumber)
	assert.Greater(t, passed[0].Annotation.Score, passed[1].Annotation.Score)
	for _, tender := range passed {
		assert.GreaterOrEqual(t, tender.Annotation.Score, e.cfg.PassThreshold)
	}
}

func TestQuickFilterValueBounds(t *testing.T) {
	cfg := testDiscoveryConfig()
	cfg.MinTenderValue = 5_000
	cfg.MaxTenderValue = 1_000_000
	e, _ := newTestEngine(newFakeAPI(), newFakeStore(), cfg)

	input := []model.Tender{
		hospitalTender(1, 500),       // below min
		hospitalTender(2, 2_000_000), // above max
		hospitalTender(3, 50_000),
	}

	var m StageMetrics
	passed := e.quickFilterStage(input, &m)
	require.Len(t, passed, 1)
	assert.Equal(t, "cn-003", passed[0].ControlNumber)
}

func TestQuickFilterIdempotent(t *testing.T) {
	e, _ := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	input := []model.Tender{
		samplingTender(1, 20_000),
		hospitalTender(2, 20_000),
		hospitalTender(3, 90_000),
	}

	var m1, m2 StageMetrics
	first := e.quickFilterStage(append([]model.Tender(nil), input...), &m1)
	second := e.quickFilterStage(append([]model.Tender(nil), input...), &m2)
	assert.Equal(t, first, second, "same input must produce the same ordered output")
}

func TestQuickFilterRecordsHeuristicRejection(t *testing.T) {
	e, cache := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	rejected := rejectedTender(1)
	var m StageMetrics
	passed := e.quickFilterStage([]model.Tender{rejected}, &m)
	require.Empty(t, passed)

	verdict, ok := cache.Lookup(rejected.OrgID)
	require.True(t, ok, "a heuristic rejection must land in the non-medical set")
	assert.False(t, verdict.IsMedical)
}

func TestQuickFilterRejectionPrecedesValueBounds(t *testing.T) {
	cfg := testDiscoveryConfig()
	cfg.MinTenderValue = 5_000
	e, cache := newTestEngine(newFakeAPI(), newFakeStore(), cfg)

	rejected := rejectedTender(1)
	rejected.EstimatedValue = 100 // below the value floor

	var m StageMetrics
	e.quickFilterStage([]model.Tender{rejected}, &m)

	_, ok := cache.Lookup(rejected.OrgID)
	assert.True(t, ok, "the cache learns the rejection even when the value filter would drop the tender")
}

func TestQuickFilterCacheHitIncrementsCount(t *testing.T) {
	e, cache := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	known := plainTender(1, 20_000)
	cache.RecordMedical(known.OrgID, known.OrgName, model.OrgOther, model.GovUnknown, "SP", 88)

	var m StageMetrics
	e.quickFilterStage([]model.Tender{known}, &m)

	top := cache.TopOrgs("", 1)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].TenderCount, "a cache hit counts one more tender for the org")
}

func TestQuickFilterCacheShortCircuit(t *testing.T) {
	e, cache := newTestEngine(newFakeAPI(), newFakeStore(), testDiscoveryConfig())

	known := plainTender(1, 20_000) // would fail keyword scoring on its own
	cache.RecordMedical(known.OrgID, known.OrgName, model.OrgOther, model.GovUnknown, "SP", 88)

	blocked := hospitalTender(2, 20_000) // would pass on its own
	cache.RecordNonMedical(blocked.OrgID)

	var m StageMetrics
	passed := e.quickFilterStage([]model.Tender{known, blocked}, &m)
	require.Len(t, passed, 1)
	assert.Equal(t, known.ControlNumber, passed[0].ControlNumber)
	assert.Equal(t, 88, passed[0].Annotation.Score)
}
