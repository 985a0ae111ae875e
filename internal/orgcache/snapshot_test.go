package orgcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandes-group/tenderscan/internal/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org_cache.json")

	c, _ := newTestCache()
	c.RecordMedical("11222333000144", "Hospital Teste", model.OrgHospital, model.GovMunicipal, "SP", 85)
	c.RecordNonMedical("99888777000166")
	c.PutItems("11222333000144", 2026, 1, []model.Item{{Number: 1}})

	require.NoError(t, c.Save(path))

	restored, _ := newTestCache()
	restored.Load(path)

	verdict, ok := restored.Lookup("11222333000144")
	require.True(t, ok)
	assert.True(t, verdict.IsMedical)
	assert.InDelta(t, 85, verdict.Confidence, 0.01)

	verdict, ok = restored.Lookup("99888777000166")
	require.True(t, ok)
	assert.False(t, verdict.IsMedical)

	// Ephemeral caches are not persisted.
	_, ok = restored.GetItems("11222333000144", 2026, 1)
	assert.False(t, ok)
}

func TestSnapshotFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org_cache.json")

	c, _ := newTestCache()
	c.RecordMedical("11222333000144", "Hospital Teste", model.OrgHospital, model.GovMunicipal, "SP", 85)
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "medical_orgs")
	assert.Contains(t, doc, "non_medical_orgs")
	assert.Contains(t, doc, "last_saved")
}

func TestLoadMissingFile(t *testing.T) {
	c, _ := newTestCache()
	c.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))

	stats := c.Statistics()
	assert.Zero(t, stats.MedicalOrgs)
	assert.Zero(t, stats.NonMedicalOrgs)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c, _ := newTestCache()
	c.Load(path)

	stats := c.Statistics()
	assert.Zero(t, stats.MedicalOrgs, "corrupt snapshot must yield an empty cache, not a crash")
}
