package point

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pointloom/pointloom/internal/geo"
)

// Resolution is the requested temporal granularity.
type Resolution string

const (
	ResolutionDaily         Resolution = "daily"
	ResolutionHourly        Resolution = "hourly"
	ResolutionInstantaneous Resolution = "instantaneous"
	ResolutionSnowCourse    Resolution = "snow-course"
	ResolutionForecast      Resolution = "forecast"
)

// ParseResolution validates a resolution string.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case ResolutionDaily, ResolutionHourly, ResolutionInstantaneous,
		ResolutionSnowCourse, ResolutionForecast:
		return Resolution(s), nil
	}
	return "", fmt.Errorf("invalid resolution %q", s)
}

// Window is a half-open [Start, End) retrieval range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window requires both start and end")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end %s is not after start %s",
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// RawPoint is one provider record before normalization. Value is nil
// when the provider sent null or an empty string.
type RawPoint struct {
	Timestamp string
	Value     *float64
}

// RawResponse is the wire-neutral result of one station x sensor x
// resolution fetch. Timestamps are civil time in Local (nil means the
// provider already reports UTC), formatted per TimeLayout (empty means
// RFC 3339).
type RawResponse struct {
	Network    Network
	StationID  string
	Sensor     SensorDescription
	Units      string
	TimeLayout string
	Local      *time.Location
	Points     []RawPoint
}

// Adapter is the capability set every network variant implements. An
// adapter owns its registry, its transport and any local caches; all
// variants hide rate and availability differences behind this one
// contract. Fetch returns ErrNoData, not an error condition, when the
// provider has no records for the request.
type Adapter interface {
	Network() Network
	Registry() *Registry

	// Stations yields the network catalog restricted to the region's
	// bounding box where the provider supports it. Precise containment
	// is the geo-filter's job, not the adapter's.
	Stations(ctx context.Context, region *geo.Region, sensors []SensorDescription) ([]Station, error)

	// Fetch retrieves one station x sensor series over the window.
	Fetch(ctx context.Context, st Station, sensor SensorDescription, win Window, res Resolution) (*RawResponse, error)
}

// Dispatcher resolves adapters by network tag. Registration replaces
// inheritance: variants stay independent of one another.
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[Network]Adapter
}

// NewDispatcher registers the given adapters, failing on duplicates.
func NewDispatcher(adapters ...Adapter) (*Dispatcher, error) {
	d := &Dispatcher{adapters: map[Network]Adapter{}}
	for _, a := range adapters {
		if err := d.Register(a); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds an adapter under its network tag.
func (d *Dispatcher) Register(a Adapter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tag := a.Network()
	if _, ok := d.adapters[tag]; ok {
		return fmt.Errorf("adapter already registered for network %s", tag)
	}
	d.adapters[tag] = a
	return nil
}

// Lookup resolves a network tag.
func (d *Dispatcher) Lookup(network Network) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[network]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for network %s", network)
	}
	return a, nil
}

// Networks lists the registered network tags, sorted.
func (d *Dispatcher) Networks() []Network {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Network, 0, len(d.adapters))
	for tag := range d.adapters {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
