package point

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/store"
)

// DiscoveryOptions mirrors the geo-filter knobs. Sensors restrict which
// stations a network reports as candidates; no round trip verifies that
// a station actually recorded a sensor over any particular range.
type DiscoveryOptions struct {
	Buffer         float64
	WithinGeometry bool
}

// DefaultDiscoveryOptions is exact containment with no buffer.
var DefaultDiscoveryOptions = DiscoveryOptions{WithinGeometry: true}

// Service is the core call surface: variable listing, geographic
// station discovery and series retrieval across all registered
// networks. Each retrieval is stateless end to end; the only shared
// state is the optional catalog cache and adapter-local caches.
type Service struct {
	dispatcher *Dispatcher
	catalog    *store.Catalog[Station]
	logger     *slog.Logger
}

// NewService wires the dispatcher with an optional catalog cache.
func NewService(dispatcher *Dispatcher, catalog *store.Catalog[Station], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dispatcher: dispatcher, catalog: catalog, logger: logger}
}

// Networks lists registered network tags.
func (s *Service) Networks() []Network {
	return s.dispatcher.Networks()
}

// Variables lists the active registry of a network.
func (s *Service) Variables(network Network) ([]SensorDescription, error) {
	registry, err := s.Registry(network)
	if err != nil {
		return nil, err
	}
	return registry.Sensors(), nil
}

// Registry returns a network's active sensor registry.
func (s *Service) Registry(network Network) (*Registry, error) {
	adapter, err := s.dispatcher.Lookup(network)
	if err != nil {
		return nil, err
	}
	return adapter.Registry(), nil
}

// PointsFromGeometry discovers a network's stations intersecting the
// (optionally buffered) region. Stations come back in catalog order.
func (s *Service) PointsFromGeometry(
	ctx context.Context,
	network Network,
	region *geo.Region,
	sensors []SensorDescription,
	opts DiscoveryOptions,
) (*Collection, error) {
	if region == nil {
		return nil, &geo.Error{Reason: "nil region"}
	}
	adapter, err := s.dispatcher.Lookup(network)
	if err != nil {
		return nil, err
	}
	if err := adapter.Registry().Validate(sensors); err != nil {
		return nil, err
	}

	stations, err := s.listStations(ctx, adapter, region, sensors)
	if err != nil {
		return nil, err
	}

	filtered := geo.Filter(region, stations, geo.FilterOptions{
		Buffer: opts.Buffer,
		Within: opts.WithinGeometry,
	})
	s.logger.Debug("discovery complete",
		"network", network, "candidates", len(stations), "matched", len(filtered))
	return NewCollection(filtered...), nil
}

// listStations consults the catalog cache before hitting the adapter.
func (s *Service) listStations(
	ctx context.Context, adapter Adapter, region *geo.Region, sensors []SensorDescription,
) ([]Station, error) {
	key := listingKey(adapter.Network(), region, sensors)
	if s.catalog != nil {
		if stations, ok := s.catalog.Get(key); ok {
			return stations, nil
		}
	}
	stations, err := adapter.Stations(ctx, region, sensors)
	if err != nil {
		return nil, err
	}
	if s.catalog != nil {
		s.catalog.Put(key, stations)
	}
	return stations, nil
}

func listingKey(network Network, region *geo.Region, sensors []SensorDescription) string {
	b := region.Bounds()
	codes := make([]string, 0, len(sensors))
	for _, sd := range sensors {
		codes = append(codes, sd.Code)
	}
	sort.Strings(codes)
	return fmt.Sprintf("%s|%.4f,%.4f,%.4f,%.4f|%s",
		network, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, strings.Join(codes, ","))
}

// Series retrieves, normalizes and joins the requested sensors for one
// station over the window. Sensors the provider has no records for are
// skipped; if none produce records the result is ErrNoData. A table
// whose rows exist but hold only absent values is a valid zero-filled
// result, not ErrNoData.
func (s *Service) Series(
	ctx context.Context,
	st Station,
	sensors []SensorDescription,
	win Window,
	res Resolution,
) (*Table, error) {
	if err := win.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.dispatcher.Lookup(st.Network)
	if err != nil {
		return nil, err
	}
	if err := adapter.Registry().Validate(sensors); err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(sensors))
	for _, sensor := range sensors {
		raw, err := adapter.Fetch(ctx, st, sensor, win, res)
		if errors.Is(err, ErrNoData) {
			s.logger.Debug("no records",
				"network", st.Network, "station", st.ID, "sensor", sensor.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		table, err := Normalize(raw)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return Join(tables...)
}

// BatchResult is the outcome of a multi-station retrieval. Tables holds
// per-station results keyed by station id; NoData lists stations the
// provider had no records for; Failed carries per-station errors. A
// failure on one station never discards sibling results.
type BatchResult struct {
	Tables map[string]*Table
	NoData []string
	Failed map[string]error
}

// Err aggregates the per-station failures, nil when everything
// succeeded.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	var merr *multierror.Error
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		merr = multierror.Append(merr, r.Failed[id])
	}
	return merr.ErrorOrNil()
}

// BatchSeries runs Series concurrently across stations. Station
// pipelines are independent and side-effect free, so fan-out is always
// safe; adapter caches serialize themselves. Cancelling the context
// abandons stations not yet fetched while keeping results already
// collected.
func (s *Service) BatchSeries(
	ctx context.Context,
	stations []Station,
	sensors []SensorDescription,
	win Window,
	res Resolution,
) *BatchResult {
	result := &BatchResult{
		Tables: map[string]*Table{},
		Failed: map[string]error{},
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, st := range stations {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(st Station) {
			defer wg.Done()
			table, err := s.Series(ctx, st, sensors, win, res)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNoData):
				result.NoData = append(result.NoData, st.ID)
			case err != nil:
				s.logger.Warn("station retrieval failed",
					"network", st.Network, "station", st.ID, "error", err)
				result.Failed[st.ID] = &StationError{
					Network:   st.Network,
					StationID: st.ID,
					Err:       err,
				}
			default:
				result.Tables[st.ID] = table
			}
		}(st)
	}
	wg.Wait()
	sort.Strings(result.NoData)
	return result
}
