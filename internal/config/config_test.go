package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 6*time.Hour, cfg.CatalogTTL)
	assert.Equal(t, time.Hour, cfg.RefreshInterval)
	assert.Contains(t, cfg.Networks, "CDEC")
	assert.Contains(t, cfg.Networks, "SNOTEL")
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("NETWORKS", "CDEC , USGS,")
	t.Setenv("CATALOG_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{"CDEC", "USGS"}, cfg.Networks)
	assert.Equal(t, time.Hour, cfg.CatalogTTL)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}
