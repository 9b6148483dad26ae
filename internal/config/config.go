package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the service configuration, read from environment with
// optional .env overrides.
type AppConfig struct {
	Port string

	// HTTPTimeout bounds every upstream provider request.
	HTTPTimeout time.Duration

	// Networks to register, e.g. "CDEC,SNOTEL,USGS".
	Networks []string

	// CacheDir holds downloaded flat-file snapshots.
	CacheDir string

	// SynopticTokenFile overrides the default Mesowest credential
	// location (empty means ~/.synoptic_token.json).
	SynopticTokenFile string

	// CatalogTTL bounds how long discovered station listings are
	// reused (0 = never expire).
	CatalogTTL time.Duration

	// RefreshInterval controls the catalog warm-up schedule.
	RefreshInterval time.Duration

	// RegionFile is a GeoJSON footprint to warm the catalog with.
	// Empty disables warm-up.
	RegionFile string

	// GeocoderAPIKey enables the address-based station search.
	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	timeout, err := getenvDuration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	networks := getenvDefault("NETWORKS", "CDEC,SNOTEL,USGS,MESOWEST,NWS-FORECAST,CSAS")
	for _, n := range strings.Split(networks, ",") {
		if n = strings.TrimSpace(n); n != "" {
			cfg.Networks = append(cfg.Networks, n)
		}
	}

	cfg.CacheDir = getenvDefault("CACHE_DIR", filepathDefault())
	cfg.SynopticTokenFile = os.Getenv("SYNOPTIC_TOKEN_FILE")

	ttl, err := getenvDuration("CATALOG_TTL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.CatalogTTL = ttl

	refresh, err := getenvDuration("REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = refresh

	cfg.RegionFile = os.Getenv("REGION_FILE")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	return cfg, nil
}

func filepathDefault() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".pointloom-cache"
	}
	return dir + string(os.PathSeparator) + "pointloom"
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
