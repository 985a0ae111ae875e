package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fernandes-group/tenderscan/internal/classify"
	"github.com/fernandes-group/tenderscan/internal/model"
	"github.com/fernandes-group/tenderscan/internal/orgcache"
)

// Approval thresholds for Stage 3.
const (
	autoApproveScore      = 70
	autoApproveKeywords   = 2
	sampleApproveMin      = 50 // sampled confidence above this approves the tender
	sampleCacheMedicalMin = 70 // sampled confidence above this caches the org as medical
	orgHistoryMinApproved = 2
	orgHistoryConfidence  = 75
	maxAutoConfidence     = 95
)

// samplingStage is Stage 3. Phase 1 approves obvious winners on score and
// strong keywords alone. Phase 2 fetches a small item sample for the
// remaining edge cases under a worker bound. Phase 3 approves leftovers from
// organizations that already produced two approved tenders this run.
func (e *Engine) samplingStage(ctx context.Context, tenders []model.Tender, m *StageMetrics) []model.Tender {
	start := time.Now()
	callsBefore := e.api.Calls()
	m.Name = "sampling"
	m.In = len(tenders)

	confirmed, needsSampling := e.approveByScore(tenders)
	zap.L().Info("auto-approval pass done",
		zap.Int("approved", len(confirmed)), zap.Int("needs_sampling", len(needsSampling)))

	sampled, errs := e.sampleEdgeCases(ctx, needsSampling)
	confirmed = append(confirmed, sampled...)
	m.Errors += errs

	confirmed = append(confirmed, e.approveByOrgHistory(confirmed, needsSampling)...)

	m.Out = len(confirmed)
	m.APICalls = e.api.Calls() - callsBefore
	m.Duration = time.Since(start)
	return confirmed
}

// approveByScore splits tenders into auto-approved and needs-sampling. High
// quick scores and repeated strong keywords are trusted without spending an
// API call.
func (e *Engine) approveByScore(tenders []model.Tender) (confirmed, needsSampling []model.Tender) {
	for i := range tenders {
		t := tenders[i]
		score := t.Annotation.Score
		keywords := classify.StrongKeywordCount(t.Title + " " + t.Description)

		if score >= autoApproveScore || keywords >= autoApproveKeywords {
			confidence := float64(60 + 10*keywords)
			if float64(score) > confidence {
				confidence = float64(score)
			}
			if confidence > maxAutoConfidence {
				confidence = maxAutoConfidence
			}
			t.Annotation.Confidence = confidence
			t.Annotation.AutoApproved = true
			t.Annotation.ApprovalReason = "score+keywords"
			confirmed = append(confirmed, t)
			continue
		}
		needsSampling = append(needsSampling, t)
	}
	return confirmed, needsSampling
}

// sampleEdgeCases fetches a few items per tender to settle the medium-score
// cases. Work runs in batches with a bounded worker count and a pause between
// batches; verdicts feed the organization cache either way.
func (e *Engine) sampleEdgeCases(ctx context.Context, tenders []model.Tender) ([]model.Tender, int) {
	if len(tenders) == 0 {
		return nil, 0
	}

	workers := int64(e.cfg.SampleWorkers)
	sem := semaphore.NewWeighted(workers)

	var (
		mu       sync.Mutex
		approved []model.Tender
		errs     int
	)

	batchSize := e.cfg.SampleBatchSize
	for offset := 0; offset < len(tenders); offset += batchSize {
		batch := tenders[offset:min(offset+batchSize, len(tenders))]

		var wg sync.WaitGroup
		for i := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs++
				mu.Unlock()
				break
			}
			wg.Add(1)
			go func(t model.Tender) {
				defer sem.Release(1)
				defer wg.Done()

				result, ok, failed := e.sampleOne(ctx, t)
				mu.Lock()
				defer mu.Unlock()
				if failed {
					errs++
				}
				if ok {
					approved = append(approved, result)
				}
			}(batch[i])
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
		if offset+batchSize < len(tenders) && e.cfg.BatchPauseSecs > 0 {
			e.pause(ctx, time.Duration(e.cfg.BatchPauseSecs)*time.Second)
		}
	}

	return approved, errs
}

// sampleOne settles one tender by its first few items. Returns the annotated
// tender, whether it was approved, and whether a non-fatal error occurred.
func (e *Engine) sampleOne(ctx context.Context, t model.Tender) (model.Tender, bool, bool) {
	if t.OrgID == "" || t.Year == 0 || t.Sequence == 0 {
		return t, false, false
	}

	items, ok := e.cache.GetItems(t.OrgID, t.Year, t.Sequence)
	if !ok {
		var err error
		items, err = e.api.FetchItems(ctx, t.OrgID, t.Year, t.Sequence, e.cfg.SampleItems)
		if err != nil {
			zap.L().Warn("item sampling failed",
				zap.String("control_number", t.ControlNumber), zap.Error(err))
			return t, false, true
		}
		e.cache.PutItems(t.OrgID, t.Year, t.Sequence, items)
	}
	if len(items) == 0 {
		// No items published yet; no verdict either way.
		return t, false, false
	}

	confidence := classify.SampleConfidence(items)
	if confidence > sampleApproveMin {
		t.Annotation.Confidence = confidence
		t.Annotation.SampleItems = items
		t.Annotation.ApprovalReason = "item_sampling"
		if confidence > sampleCacheMedicalMin {
			e.cache.RecordMedical(t.OrgID, t.OrgName, model.OrgOther, model.GovUnknown, t.State, confidence)
		}
		return t, true, false
	}

	e.cache.RecordNonMedical(t.OrgID)
	return t, false, false
}

// approveByOrgHistory approves unapproved tenders whose organization already
// produced enough approved tenders this run.
func (e *Engine) approveByOrgHistory(confirmed, needsSampling []model.Tender) []model.Tender {
	orgCounts := make(map[string]int)
	confirmedNumbers := make(map[string]struct{}, len(confirmed))
	for _, t := range confirmed {
		orgCounts[orgcache.NormalizeOrgID(t.OrgID)]++
		confirmedNumbers[t.ControlNumber] = struct{}{}
	}

	var approved []model.Tender
	for _, t := range needsSampling {
		if _, done := confirmedNumbers[t.ControlNumber]; done {
			continue
		}
		if orgCounts[orgcache.NormalizeOrgID(t.OrgID)] >= orgHistoryMinApproved {
			t.Annotation.Confidence = orgHistoryConfidence
			t.Annotation.AutoApproved = true
			t.Annotation.ApprovalReason = "org_history"
			approved = append(approved, t)
		}
	}
	if len(approved) > 0 {
		zap.L().Info("approved by organization history", zap.Int("count", len(approved)))
	}
	return approved
}
