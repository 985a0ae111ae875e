package orgcache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// The ephemeral caches hold tenders and item lists fetched during the
// current run, keyed by (org, year, sequence). They exist only to avoid
// re-fetching within a run: entries expire after the TTL and are never
// persisted.

type ephemeralTender struct {
	tender   model.Tender
	inserted time.Time
}

type ephemeralItems struct {
	items    []model.Item
	inserted time.Time
}

func ephemeralKey(orgID string, year, sequence int) string {
	return fmt.Sprintf("%s_%d_%d", NormalizeOrgID(orgID), year, sequence)
}

// PutTender caches a fetched tender for the rest of the run.
func (c *Cache) PutTender(t model.Tender) {
	if t.OrgID == "" || t.Year == 0 || t.Sequence == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenders[ephemeralKey(t.OrgID, t.Year, t.Sequence)] = ephemeralTender{tender: t, inserted: c.now()}
}

// GetTender returns a cached tender if present and fresh. An expired entry
// is evicted on this read, never served stale.
func (c *Cache) GetTender(orgID string, year, sequence int) (model.Tender, bool) {
	key := ephemeralKey(orgID, year, sequence)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tenders[key]
	if !ok {
		return model.Tender{}, false
	}
	if c.now().Sub(entry.inserted) >= c.opts.EphemeralTTL {
		delete(c.tenders, key)
		return model.Tender{}, false
	}
	return entry.tender, true
}

// PutItems caches a fetched item list for the rest of the run.
func (c *Cache) PutItems(orgID string, year, sequence int, items []model.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[ephemeralKey(orgID, year, sequence)] = ephemeralItems{items: items, inserted: c.now()}
}

// GetItems returns cached items if present and fresh, evicting on expiry.
func (c *Cache) GetItems(orgID string, year, sequence int) ([]model.Item, bool) {
	key := ephemeralKey(orgID, year, sequence)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.inserted) >= c.opts.EphemeralTTL {
		delete(c.items, key)
		return nil, false
	}
	return entry.items, true
}

// ClearEphemeral empties both ephemeral maps. Called between partitions to
// bound memory.
func (c *Cache) ClearEphemeral() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := len(c.tenders) + len(c.items)
	c.tenders = make(map[string]ephemeralTender)
	c.items = make(map[string]ephemeralItems)
	if cleared > 0 {
		zap.L().Debug("cleared ephemeral caches", zap.Int("entries", cleared))
	}
}
