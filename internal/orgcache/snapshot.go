package orgcache

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// snapshot is the on-disk document: the medical map, the non-medical set and
// a save timestamp. It round-trips losslessly; the ephemeral caches are
// deliberately excluded.
type snapshot struct {
	MedicalOrgs    map[string]*Entry `json:"medical_orgs"`
	NonMedicalOrgs []string          `json:"non_medical_orgs"`
	LastSaved      time.Time         `json:"last_saved"`
}

// Save writes the persistent cache state to path. The write goes through a
// temp file and rename so a crash cannot leave a half-written snapshot.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	snap := snapshot{
		MedicalOrgs:    make(map[string]*Entry, len(c.medical)),
		NonMedicalOrgs: make([]string, 0, len(c.nonMedical)),
		LastSaved:      c.now(),
	}
	for id, entry := range c.medical {
		copied := *entry
		snap.MedicalOrgs[id] = &copied
	}
	for id := range c.nonMedical {
		snap.NonMedicalOrgs = append(snap.NonMedicalOrgs, id)
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "orgcache: marshal snapshot")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "orgcache: write snapshot")
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrap(err, "orgcache: rename snapshot")
	}

	zap.L().Info("saved organization cache",
		zap.String("path", path),
		zap.Int("medical_orgs", len(snap.MedicalOrgs)),
		zap.Int("non_medical_orgs", len(snap.NonMedicalOrgs)),
	)
	return nil
}

// Load replaces the persistent cache state from a snapshot file. A missing
// or corrupt file yields an empty cache and a logged warning; cache
// restore must never take the process down.
func (c *Cache) Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Info("no cache snapshot found, starting empty", zap.String("path", path))
		} else {
			zap.L().Warn("cache snapshot unreadable, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		zap.L().Warn("cache snapshot corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.medical = make(map[string]*Entry, len(snap.MedicalOrgs))
	for id, entry := range snap.MedicalOrgs {
		c.medical[id] = entry
	}
	c.nonMedical = make(map[string]struct{}, len(snap.NonMedicalOrgs))
	for _, id := range snap.NonMedicalOrgs {
		c.nonMedical[id] = struct{}{}
	}

	zap.L().Info("loaded organization cache",
		zap.String("path", path),
		zap.Int("medical_orgs", len(c.medical)),
		zap.Int("non_medical_orgs", len(c.nonMedical)),
	)
}
