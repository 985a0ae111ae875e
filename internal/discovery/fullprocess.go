package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fernandes-group/tenderscan/internal/classify"
	"github.com/fernandes-group/tenderscan/internal/model"
)

// fullProcessStage is Stage 4: fetch the full record and items for every
// approved tender and attach the complete classification. High-value tenders
// go first with the widest worker bound; the output keeps the input order
// regardless of which tier finished when. A record whose fetches fail is
// dropped and counted as a stage error; the rest of its tier is unaffected.
func (e *Engine) fullProcessStage(ctx context.Context, tenders []model.Tender, m *StageMetrics) []model.Tender {
	start := time.Now()
	callsBefore := e.api.Calls()
	m.Name = "full_process"
	m.In = len(tenders)

	results := make([]model.Tender, len(tenders))
	copy(results, tenders)
	kept := make([]bool, len(tenders))

	type tier struct {
		name        string
		concurrency int
		indexes     []int
	}
	tiers := []tier{
		{name: "high_value", concurrency: e.cfg.HighConcurrency},
		{name: "medium_value", concurrency: e.cfg.MediumConcurrency},
		{name: "low_value", concurrency: e.cfg.LowConcurrency},
	}
	for i := range tenders {
		switch value := tenders[i].Value(); {
		case value > e.cfg.HighValueMin:
			tiers[0].indexes = append(tiers[0].indexes, i)
		case value >= e.cfg.MediumValueMin:
			tiers[1].indexes = append(tiers[1].indexes, i)
		default:
			tiers[2].indexes = append(tiers[2].indexes, i)
		}
	}

	var errs atomic.Int64
	var mu sync.Mutex // guards results and kept; each worker writes a distinct index but the copy is not atomic

	for _, tr := range tiers {
		if len(tr.indexes) == 0 {
			continue
		}
		zap.L().Info("processing value tier",
			zap.String("tier", tr.name),
			zap.Int("tenders", len(tr.indexes)),
			zap.Int("concurrency", tr.concurrency))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(tr.concurrency)
		for _, idx := range tr.indexes {
			g.Go(func() error {
				processed, err := e.processOne(gctx, results[idx])
				if err != nil {
					zap.L().Warn("full processing failed, dropping tender",
						zap.String("control_number", results[idx].ControlNumber), zap.Error(err))
					errs.Add(1)
					return nil
				}
				mu.Lock()
				results[idx] = processed
				kept[idx] = true
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	out := make([]model.Tender, 0, len(results))
	for i, keep := range kept {
		if keep {
			out = append(out, results[i])
		}
	}

	m.Out = len(out)
	m.Errors += int(errs.Load())
	m.APICalls = e.api.Calls() - callsBefore
	m.Duration = time.Since(start)
	return out
}

// processOne completes a single tender: full detail, items and the final
// classification. A fetch failure aborts the record.
func (e *Engine) processOne(ctx context.Context, t model.Tender) (model.Tender, error) {
	if t.OrgID != "" && t.Year != 0 && t.Sequence != 0 {
		detail, ok := e.cache.GetTender(t.OrgID, t.Year, t.Sequence)
		if !ok {
			var err error
			detail, err = e.api.FetchDetail(ctx, t.OrgID, t.Year, t.Sequence)
			if err != nil {
				return model.Tender{}, eris.Wrapf(err, "discovery: fetch detail %s", t.ControlNumber)
			}
			e.cache.PutTender(detail)
		}
		if detail.ControlNumber != "" || detail.OrgID != "" {
			mergeDetail(&t, detail)
		}

		if len(t.Annotation.SampleItems) == 0 {
			items, ok := e.cache.GetItems(t.OrgID, t.Year, t.Sequence)
			if !ok {
				var err error
				items, err = e.api.FetchItems(ctx, t.OrgID, t.Year, t.Sequence, e.cfg.SampleItems)
				if err != nil {
					return model.Tender{}, eris.Wrapf(err, "discovery: fetch items %s", t.ControlNumber)
				}
				e.cache.PutItems(t.OrgID, t.Year, t.Sequence, items)
			}
			t.Annotation.SampleItems = items
		}
	}

	cls := classify.Classify(&t)
	t.Annotation.Classification = &cls

	if cls.IsMedical {
		confidence := cls.MedicalScore
		if t.Annotation.Confidence > confidence {
			confidence = t.Annotation.Confidence
		}
		e.cache.RecordMedical(t.OrgID, t.OrgName, cls.OrgType, cls.GovernmentLevel, t.State, confidence)
	}

	return t, nil
}

// mergeDetail folds authoritative fields from the full record into the
// listing row without losing anything the listing already had.
func mergeDetail(t *model.Tender, detail model.Tender) {
	if detail.AwardedValue > 0 {
		t.AwardedValue = detail.AwardedValue
	}
	if detail.EstimatedValue > 0 && t.EstimatedValue == 0 {
		t.EstimatedValue = detail.EstimatedValue
	}
	if detail.Description != "" && t.Description == "" {
		t.Description = detail.Description
	}
	if detail.ModalityName != "" {
		t.ModalityName = detail.ModalityName
	}
	if !detail.PublishedAt.IsZero() && t.PublishedAt.IsZero() {
		t.PublishedAt = detail.PublishedAt
	}
	if detail.OrgName != "" && t.OrgName == "" {
		t.OrgName = detail.OrgName
	}
}
