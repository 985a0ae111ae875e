// Package orgcache maintains the organization reputation cache: a durable
// map of CNPJ -> medical verdict that lets future discovery runs skip
// per-tender API spend, plus per-run ephemeral tender/item caches.
//
// A Cache instance is safe for concurrent use; Stage 3 sampling workers
// write verdicts into it in parallel. Construct one explicitly and share it
// deliberately; there is no package-level instance.
package orgcache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// Entry is one cached medical organization.
type Entry struct {
	OrgID       string                `json:"cnpj"`
	Name        string                `json:"name"`
	OrgType     model.OrgType         `json:"organization_type"`
	GovLevel    model.GovernmentLevel `json:"government_level"`
	State       string                `json:"state_code"`
	IsMedical   bool                  `json:"is_medical"`
	Confidence  float64               `json:"medical_confidence"`
	LastUpdated time.Time             `json:"last_updated"`
	TenderCount int                   `json:"tender_count"`
}

// Verdict is the answer to a cache lookup.
type Verdict struct {
	IsMedical  bool
	Confidence float64
}

// Fixed confidences for the two verdict sources that carry no per-org score.
const (
	nonMedicalConfidence = 90
	seedConfidence       = 95
)

// seedOrgs maps 8-digit CNPJ roots of known medical buyers to display names.
// Matched by prefix so every branch of the organization hits.
var seedOrgs = map[string]string{
	"26989715": "Ministério da Saúde",
	"00394544": "ANVISA",
	"33781055": "Fiocruz",
	"46374500": "Hospital das Clínicas - USP",
	"46392130": "UNIFESP - Hospital São Paulo",
	"60742616": "Hospital Albert Einstein",
	"61599908": "Hospital Sírio-Libanês",
	"42498717": "Hospital Universitário Clementino Fraga Filho - UFRJ",
	"28481581": "INCA - Instituto Nacional do Câncer",
}

// Options configures a Cache.
type Options struct {
	MaxAge       time.Duration // medical entries older than this are treated as absent
	EphemeralTTL time.Duration // TTL for the per-run tender/item caches
}

// DefaultOptions returns the standard cache configuration.
func DefaultOptions() Options {
	return Options{
		MaxAge:       30 * 24 * time.Hour,
		EphemeralTTL: time.Hour,
	}
}

// Cache is the two-tier organization cache. The medical map and non-medical
// set persist across runs via Save/Load; the ephemeral tender/item caches do
// not.
type Cache struct {
	mu          sync.Mutex
	medical     map[string]*Entry
	nonMedical  map[string]struct{}
	tenders     map[string]ephemeralTender
	items       map[string]ephemeralItems
	opts        Options
	now         func() time.Time // swapped in tests
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultOptions().MaxAge
	}
	if opts.EphemeralTTL <= 0 {
		opts.EphemeralTTL = DefaultOptions().EphemeralTTL
	}
	return &Cache{
		medical:    make(map[string]*Entry),
		nonMedical: make(map[string]struct{}),
		tenders:    make(map[string]ephemeralTender),
		items:      make(map[string]ephemeralItems),
		opts:       opts,
		now:        time.Now,
	}
}

// NormalizeOrgID reduces a CNPJ to its canonical digits-only form.
func NormalizeOrgID(orgID string) string {
	var b strings.Builder
	b.Grow(len(orgID))
	for _, r := range orgID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup resolves an organization. ok is false on a true miss; callers must
// not treat a miss as non-medical. A stale medical entry is evicted on this
// read and reported as a miss.
func (c *Cache) Lookup(orgID string) (Verdict, bool) {
	id := NormalizeOrgID(orgID)
	if id == "" {
		return Verdict{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.medical[id]; ok {
		if c.now().Sub(entry.LastUpdated) <= c.opts.MaxAge {
			return Verdict{IsMedical: true, Confidence: entry.Confidence}, true
		}
		// Lazy eviction: expired entries are indistinguishable from misses.
		delete(c.medical, id)
		return Verdict{}, false
	}

	if _, ok := c.nonMedical[id]; ok {
		return Verdict{IsMedical: false, Confidence: nonMedicalConfidence}, true
	}

	if len(id) >= 8 {
		if _, ok := seedOrgs[id[:8]]; ok {
			return Verdict{IsMedical: true, Confidence: seedConfidence}, true
		}
	}

	return Verdict{}, false
}

// RecordMedical upserts a medical verdict. Confidence replaces the previous
// value; it is not averaged.
func (c *Cache) RecordMedical(orgID, name string, orgType model.OrgType, govLevel model.GovernmentLevel, state string, confidence float64) {
	id := NormalizeOrgID(orgID)
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.medical[id]; ok {
		existing.Confidence = confidence
		existing.LastUpdated = c.now()
		existing.TenderCount++
		// Later stages know more about the org than earlier ones; take any
		// descriptive fields they offer.
		if name != "" {
			existing.Name = name
		}
		if orgType != "" && orgType != model.OrgOther {
			existing.OrgType = orgType
		}
		if govLevel != "" && govLevel != model.GovUnknown {
			existing.GovLevel = govLevel
		}
		if state != "" {
			existing.State = state
		}
		return
	}
	c.medical[id] = &Entry{
		OrgID:       id,
		Name:        name,
		OrgType:     orgType,
		GovLevel:    govLevel,
		State:       state,
		IsMedical:   true,
		Confidence:  confidence,
		LastUpdated: c.now(),
		TenderCount: 1,
	}
	zap.L().Debug("cached medical org", zap.String("org_id", id), zap.String("name", name))
}

// RecordNonMedical marks an organization as non-medical. Idempotent.
func (c *Cache) RecordNonMedical(orgID string) {
	id := NormalizeOrgID(orgID)
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonMedical[id] = struct{}{}
}

// IncrementCount bumps the tender counter for a cached medical org. No-op
// for unknown organizations.
func (c *Cache) IncrementCount(orgID string) {
	id := NormalizeOrgID(orgID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.medical[id]; ok {
		entry.TenderCount++
	}
}

// MedicalOrgsByState returns the cached medical org IDs for one state.
func (c *Cache) MedicalOrgsByState(state string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, entry := range c.medical {
		if entry.State == state {
			ids = append(ids, entry.OrgID)
		}
	}
	sort.Strings(ids)
	return ids
}

// TopOrgs returns the cached medical orgs with the most tenders, optionally
// filtered by state.
func (c *Cache) TopOrgs(state string, limit int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.medical))
	for _, entry := range c.medical {
		if state != "" && entry.State != state {
			continue
		}
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TenderCount != entries[j].TenderCount {
			return entries[i].TenderCount > entries[j].TenderCount
		}
		return entries[i].OrgID < entries[j].OrgID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Stats summarizes cache contents for reporting.
type Stats struct {
	MedicalOrgs    int            `json:"medical_orgs"`
	NonMedicalOrgs int            `json:"non_medical_orgs"`
	ByState        map[string]int `json:"by_state"`
	ByType         map[string]int `json:"by_type"`
	TopOrgs        []Entry        `json:"top_orgs"`
}

// Statistics returns a snapshot of cache composition.
func (c *Cache) Statistics() Stats {
	top := c.TopOrgs("", 10)

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		MedicalOrgs:    len(c.medical),
		NonMedicalOrgs: len(c.nonMedical),
		ByState:        make(map[string]int),
		ByType:         make(map[string]int),
		TopOrgs:        top,
	}
	for _, entry := range c.medical {
		stats.ByState[entry.State]++
		stats.ByType[string(entry.OrgType)]++
	}
	return stats
}

// PurgeExpired removes medical entries older than the max age and returns
// how many were dropped. Lookup already evicts lazily; this is the
// administrative sweep.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.opts.MaxAge)
	purged := 0
	for id, entry := range c.medical {
		if entry.LastUpdated.Before(cutoff) {
			delete(c.medical, id)
			purged++
		}
	}
	if purged > 0 {
		zap.L().Info("purged expired cache entries", zap.Int("count", purged))
	}
	return purged
}

// Purge empties the persistent maps entirely.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.medical = make(map[string]*Entry)
	c.nonMedical = make(map[string]struct{})
}
