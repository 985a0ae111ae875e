package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			MaxRecords:        1000,
			Modalities:        []int{4, 6, 8},
			MinTenderValue:    1000,
			PassThreshold:     30,
			SampleWorkers:     5,
			SampleBatchSize:   50,
			SampleItems:       3,
			HighValueMin:      100_000,
			MediumValueMin:    10_000,
			HighConcurrency:   10,
			MediumConcurrency: 5,
			LowConcurrency:    3,
		},
		Cache: CacheConfig{MaxAgeDays: 30},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above 100", func(c *Config) { c.Discovery.PassThreshold = 150 }},
		{"negative threshold", func(c *Config) { c.Discovery.PassThreshold = -1 }},
		{"max value below min", func(c *Config) {
			c.Discovery.MinTenderValue = 10_000
			c.Discovery.MaxTenderValue = 500
		}},
		{"inverted value tiers", func(c *Config) { c.Discovery.MediumValueMin = 200_000 }},
		{"zero sample workers", func(c *Config) { c.Discovery.SampleWorkers = 0 }},
		{"zero tier concurrency", func(c *Config) { c.Discovery.LowConcurrency = 0 }},
		{"zero cache age", func(c *Config) { c.Cache.MaxAgeDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Discovery.PassThreshold)
	assert.Equal(t, []int{4, 6, 8}, cfg.Discovery.Modalities)
	assert.Equal(t, 5, cfg.Discovery.SampleWorkers)
	assert.Equal(t, 50, cfg.Discovery.SampleBatchSize)
	assert.Equal(t, 3, cfg.Discovery.SampleItems)
	assert.Equal(t, 10, cfg.Discovery.HighConcurrency)
	assert.Equal(t, 5, cfg.Discovery.MediumConcurrency)
	assert.Equal(t, 3, cfg.Discovery.LowConcurrency)
	assert.Equal(t, 30, cfg.Cache.MaxAgeDays)
	assert.Equal(t, "https://pncp.gov.br/api/consulta", cfg.PNCP.ConsultationURL)
}
