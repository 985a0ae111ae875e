package discovery

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StageMetrics records one pipeline stage: counts in and out, API spend,
// wall time and non-fatal errors.
type StageMetrics struct {
	Name     string        `json:"name"`
	In       int           `json:"in"`
	Out      int           `json:"out"`
	APICalls int64         `json:"api_calls"`
	Duration time.Duration `json:"duration"`
	Errors   int           `json:"errors"`
}

// ReductionPercent is how much of the stage input was filtered away.
func (m StageMetrics) ReductionPercent() float64 {
	if m.In == 0 {
		return 0
	}
	return float64(m.In-m.Out) / float64(m.In) * 100
}

// Throughput is stage output per second of wall time.
func (m StageMetrics) Throughput() float64 {
	secs := m.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.Out) / secs
}

// Metrics aggregates the four pipeline stages. Totals are always derived
// from the per-stage records, never accumulated separately, so the two can
// not drift apart.
type Metrics struct {
	Fetch       StageMetrics `json:"fetch"`
	QuickFilter StageMetrics `json:"quick_filter"`
	Sampling    StageMetrics `json:"sampling"`
	FullProcess StageMetrics `json:"full_process"`
}

func (m *Metrics) stages() []*StageMetrics {
	return []*StageMetrics{&m.Fetch, &m.QuickFilter, &m.Sampling, &m.FullProcess}
}

// TotalAPICalls sums API spend across stages.
func (m *Metrics) TotalAPICalls() int64 {
	var total int64
	for _, s := range m.stages() {
		total += s.APICalls
	}
	return total
}

// TotalDuration sums stage wall time.
func (m *Metrics) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range m.stages() {
		total += s.Duration
	}
	return total
}

// TotalErrors sums non-fatal errors across stages.
func (m *Metrics) TotalErrors() int {
	total := 0
	for _, s := range m.stages() {
		total += s.Errors
	}
	return total
}

// Efficiency is the end-to-end reduction: what fraction of fetched tenders
// was filtered out before full processing finished.
func (m *Metrics) Efficiency() float64 {
	if m.Fetch.In == 0 {
		return 0
	}
	return float64(m.Fetch.In-m.FullProcess.Out) / float64(m.Fetch.In) * 100
}

// Summary renders a one-line-per-stage report.
func (m *Metrics) Summary() string {
	out := ""
	for _, s := range m.stages() {
		out += fmt.Sprintf("%-12s in=%-6d out=%-6d calls=%-5d errors=%-3d %.1f%% reduction in %s\n",
			s.Name, s.In, s.Out, s.APICalls, s.Errors, s.ReductionPercent(), s.Duration.Round(time.Millisecond))
	}
	out += fmt.Sprintf("%-12s in=%-6d out=%-6d calls=%-5d %.1f%% overall reduction in %s\n",
		"total", m.Fetch.In, m.FullProcess.Out, m.TotalAPICalls(), m.Efficiency(),
		m.TotalDuration().Round(time.Millisecond))
	return out
}

// Log writes the stage breakdown to the structured log.
func (m *Metrics) Log() {
	for _, s := range m.stages() {
		zap.L().Info("stage complete",
			zap.String("stage", s.Name),
			zap.Int("in", s.In),
			zap.Int("out", s.Out),
			zap.Int64("api_calls", s.APICalls),
			zap.Int("errors", s.Errors),
			zap.Duration("duration", s.Duration),
		)
	}
	zap.L().Info("run complete",
		zap.Int("fetched", m.Fetch.In),
		zap.Int("approved", m.FullProcess.Out),
		zap.Int64("api_calls", m.TotalAPICalls()),
		zap.Float64("efficiency_pct", m.Efficiency()),
		zap.Duration("duration", m.TotalDuration()),
	)
}
