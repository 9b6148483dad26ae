package point

import (
	"time"
)

// Station is one fixed monitoring location within a network. It is a
// value object: constructed either directly by a caller or by an
// adapter's discovery call, and never mutated afterwards. A station
// references its network's registry, it does not own it.
type Station struct {
	ID        string
	Name      string
	Network   Network
	Lon       float64
	Lat       float64
	Elevation float64 // source units, no conversion
	TZ        *time.Location

	registry *Registry
}

// NewStation builds a station bound to its network registry. tz may be
// nil for sources that report UTC.
func NewStation(network Network, id, name string, lon, lat, elevation float64, tz *time.Location, registry *Registry) Station {
	return Station{
		ID:        id,
		Name:      name,
		Network:   network,
		Lon:       lon,
		Lat:       lat,
		Elevation: elevation,
		TZ:        tz,
		registry:  registry,
	}
}

// Key returns a canonical string key for indexing this station.
func (s Station) Key() string {
	return string(s.Network) + ":" + s.ID
}

// Coordinates reports the 2D location. Elevation is deliberately not
// part of the geometry; 3D coordinates corrupt containment tests and
// downstream merging.
func (s Station) Coordinates() (lon, lat float64) {
	return s.Lon, s.Lat
}

// Timezone returns the station zone, defaulting to UTC.
func (s Station) Timezone() *time.Location {
	if s.TZ == nil {
		return time.UTC
	}
	return s.TZ
}

// Registry returns the network vocabulary this station can report.
func (s Station) Registry() *Registry { return s.registry }

// Geometry is a 2D GeoJSON-style point.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// StationRecord is the flat tabular form of one station.
type StationRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Network   Network `json:"network"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Elevation float64 `json:"elevation"`
}

// GeoStationRecord is a station record carrying a point geometry.
type GeoStationRecord struct {
	StationRecord
	Geometry Geometry `json:"geometry"`
}

// Collection is an ordered set of discovered stations. Discovery order
// (the source catalog order) is preserved; conversion to records happens
// on demand.
type Collection struct {
	stations []Station
}

// NewCollection wraps stations in discovery order.
func NewCollection(stations ...Station) *Collection {
	return &Collection{stations: append([]Station(nil), stations...)}
}

// Add appends a station.
func (c *Collection) Add(st Station) {
	c.stations = append(c.stations, st)
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stations)
}

// Stations returns the members in order.
func (c *Collection) Stations() []Station {
	if c == nil {
		return nil
	}
	return append([]Station(nil), c.stations...)
}

// Records converts the collection to flat rows, one per station.
func (c *Collection) Records() []StationRecord {
	if c == nil {
		return nil
	}
	out := make([]StationRecord, 0, len(c.stations))
	for _, st := range c.stations {
		out = append(out, StationRecord{
			ID:        st.ID,
			Name:      st.Name,
			Network:   st.Network,
			Longitude: st.Lon,
			Latitude:  st.Lat,
			Elevation: st.Elevation,
		})
	}
	return out
}

// GeoRecords converts the collection to rows carrying a 2D point
// geometry each.
func (c *Collection) GeoRecords() []GeoStationRecord {
	recs := c.Records()
	out := make([]GeoStationRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, GeoStationRecord{
			StationRecord: r,
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{r.Longitude, r.Latitude},
			},
		})
	}
	return out
}
