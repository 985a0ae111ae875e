package discovery

import (
	"sort"
	"time"

	"github.com/fernandes-group/tenderscan/internal/classify"
	"github.com/fernandes-group/tenderscan/internal/model"
)

// quickFilterStage is Stage 2: a zero-API-call pass that scores every tender
// from fields already in hand and keeps only those at or above the pass
// threshold, sorted best first so later stages spend their budget on the
// most promising candidates.
func (e *Engine) quickFilterStage(tenders []model.Tender, m *StageMetrics) []model.Tender {
	start := time.Now()
	m.Name = "quick_filter"
	m.In = len(tenders)

	lookup := func(orgID string) (bool, float64, bool) {
		verdict, ok := e.cache.Lookup(orgID)
		return verdict.IsMedical, verdict.Confidence, ok
	}

	passed := make([]model.Tender, 0, len(tenders))
	for i := range tenders {
		t := &tenders[i]

		// The reject check runs before the value bounds so the cache learns
		// the verdict even for tenders the value filter would drop anyway.
		score, reject, fromCache := classify.QuickScore(t, lookup)
		if reject {
			// Heuristic rejections feed the non-medical set; cached ones
			// are already in it.
			if !fromCache && t.OrgID != "" {
				e.cache.RecordNonMedical(t.OrgID)
			}
			continue
		}
		if fromCache {
			e.cache.IncrementCount(t.OrgID)
		}

		value := t.Value()
		if value < e.cfg.MinTenderValue {
			continue
		}
		if e.cfg.MaxTenderValue > 0 && value > e.cfg.MaxTenderValue {
			continue
		}
		if score < e.cfg.PassThreshold {
			continue
		}

		t.Annotation.Score = score
		passed = append(passed, *t)
	}

	// Best candidates first; control number breaks ties so the order is
	// stable across runs.
	sort.SliceStable(passed, func(i, j int) bool {
		if passed[i].Annotation.Score != passed[j].Annotation.Score {
			return passed[i].Annotation.Score > passed[j].Annotation.Score
		}
		return passed[i].ControlNumber < passed[j].ControlNumber
	})

	m.Out = len(passed)
	m.Duration = time.Since(start)
	return passed
}
