package networks

import (
	"net/http"

	"github.com/pointloom/pointloom/internal/cache"
	"github.com/pointloom/pointloom/internal/point"
)

// settings collects the per-adapter knobs the constructors accept. Not
// every adapter consults every field.
type settings struct {
	baseURL   string
	searchURL string
	client    *http.Client
	registry  *point.Registry
	tokenPath string
	cache     *cache.FileCache
}

// Option customizes an adapter at construction.
type Option func(*settings)

// WithBaseURL overrides the provider data endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithSearchURL overrides the provider station-search endpoint, for
// providers that split discovery from data retrieval.
func WithSearchURL(u string) Option {
	return func(s *settings) { s.searchURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithRegistry substitutes a complete replacement sensor registry.
func WithRegistry(r *point.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithTokenPath overrides the on-disk credential location, for
// providers that require an API token.
func WithTokenPath(p string) Option {
	return func(s *settings) { s.tokenPath = p }
}

// WithFileCache attaches a flat-file download cache, for providers that
// publish whole-season snapshots.
func WithFileCache(fc *cache.FileCache) Option {
	return func(s *settings) { s.cache = fc }
}
