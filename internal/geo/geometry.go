// Package geo provides region geometry parsing and geographic station
// filtering. Regions are spherical polygons; all containment tests run
// on 2D coordinates — Z values present in source geometries are
// discarded during parsing.
package geo

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Error reports an invalid or empty region input. Surfaced immediately;
// never retried.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "geometry: " + e.Reason }

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Expand grows the box by a margin in degrees on every side.
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{
		MinLon: b.MinLon - margin,
		MinLat: b.MinLat - margin,
		MaxLon: b.MaxLon + margin,
		MaxLat: b.MaxLat + margin,
	}
}

// Contains tests a 2D point against the box.
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Region is a single- or multi-polygon geographic footprint.
type Region struct {
	polygon *s2.Polygon
	index   *s2.ShapeIndex
	bounds  Bounds
}

// boundsAccum tracks the vertex envelope of the rings as they are
// parsed. s2's RectBound inflates boxes poleward along geodesic edges,
// which would leak into provider bbox parameters, so the box is kept
// vertex-exact instead.
type boundsAccum struct {
	set bool
	b   Bounds
}

func (a *boundsAccum) add(lon, lat float64) {
	if !a.set {
		a.b = Bounds{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat}
		a.set = true
		return
	}
	if lon < a.b.MinLon {
		a.b.MinLon = lon
	}
	if lon > a.b.MaxLon {
		a.b.MaxLon = lon
	}
	if lat < a.b.MinLat {
		a.b.MinLat = lat
	}
	if lat > a.b.MaxLat {
		a.b.MaxLat = lat
	}
}

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometry    json.RawMessage `json:"geometry"`
}

// ParseGeoJSON builds a region from a GeoJSON Polygon or MultiPolygon.
// A Feature wrapper is unwrapped; any Z coordinate is dropped.
func ParseGeoJSON(data []byte) (*Region, error) {
	if len(data) == 0 {
		return nil, &Error{Reason: "empty region input"}
	}
	var g geoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("invalid GeoJSON: %v", err)}
	}
	if g.Type == "Feature" {
		return ParseGeoJSON(g.Geometry)
	}

	var loops []*s2.Loop
	var bb boundsAccum
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("invalid Polygon coordinates: %v", err)}
		}
		built, err := buildLoops(rings, &bb)
		if err != nil {
			return nil, err
		}
		loops = built
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("invalid MultiPolygon coordinates: %v", err)}
		}
		for _, rings := range polys {
			built, err := buildLoops(rings, &bb)
			if err != nil {
				return nil, err
			}
			loops = append(loops, built...)
		}
	default:
		return nil, &Error{Reason: fmt.Sprintf("unsupported GeoJSON type %q", g.Type)}
	}
	if len(loops) == 0 {
		return nil, &Error{Reason: "region contains no rings"}
	}
	return newRegion(s2.PolygonFromOrientedLoops(loops), bb.b), nil
}

// buildLoops converts GeoJSON rings to oriented s2 loops. GeoJSON
// closes each ring by repeating the first point, which s2 must not see;
// orientation is normalized on the shell since the RFC 7946 right-hand
// rule is commonly disregarded in the wild.
func buildLoops(rings [][][]float64, bb *boundsAccum) ([]*s2.Loop, error) {
	loops := make([]*s2.Loop, 0, len(rings))
	for i, ring := range rings {
		if len(ring) < 4 {
			return nil, &Error{Reason: fmt.Sprintf("ring %d has %d points, need at least 4", i, len(ring))}
		}
		points := make([]s2.Point, 0, len(ring)-1)
		for _, coord := range ring[:len(ring)-1] {
			if len(coord) < 2 {
				return nil, &Error{Reason: fmt.Sprintf("ring %d has a point with %d coordinates", i, len(coord))}
			}
			// GeoJSON order is lon, lat; a third Z value is dropped.
			bb.add(coord[0], coord[1])
			points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(coord[1], coord[0])))
		}
		loop := s2.LoopFromPoints(points)
		if i == 0 {
			loop.Normalize()
		}
		loops = append(loops, loop)
	}
	return loops, nil
}

// FromBounds builds a rectangular region, for callers whose footprint is
// already a bounding box.
func FromBounds(b Bounds) (*Region, error) {
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return nil, &Error{Reason: fmt.Sprintf("degenerate bounds %+v", b)}
	}
	ring := [][][]float64{{
		{b.MinLon, b.MinLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
		{b.MinLon, b.MaxLat},
		{b.MinLon, b.MinLat},
	}}
	var bb boundsAccum
	loops, err := buildLoops(ring, &bb)
	if err != nil {
		return nil, err
	}
	return newRegion(s2.PolygonFromOrientedLoops(loops), b), nil
}

func newRegion(p *s2.Polygon, b Bounds) *Region {
	index := s2.NewShapeIndex()
	index.Add(p)
	return &Region{polygon: p, index: index, bounds: b}
}

// Bounds returns the vertex envelope of the region in degrees.
func (r *Region) Bounds() Bounds {
	return r.bounds
}

// Contains tests whether a 2D point lies inside the region.
func (r *Region) Contains(lon, lat float64) bool {
	return r.polygon.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)))
}

// ContainsBuffered tests containment of the region expanded by an
// angular margin in degrees. A zero buffer is exact containment.
func (r *Region) ContainsBuffered(lon, lat, bufferDeg float64) bool {
	if r.Contains(lon, lat) {
		return true
	}
	if bufferDeg <= 0 {
		return false
	}
	point := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	query := s2.NewClosestEdgeQuery(r.index, s2.NewClosestEdgeQueryOptions().MaxResults(1))
	target := s2.NewMinDistanceToPointTarget(point)
	limit := s1.ChordAngleFromAngle(s1.Angle(bufferDeg) * s1.Degree)
	return query.IsDistanceLess(target, limit)
}
