package httpapi

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kelvins/geocoder"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

var validate = validator.New()

// GeocodeFunc resolves a free-form address to a coordinate.
type GeocodeFunc func(address string) (lat, lon float64, err error)

// Handlers binds the HTTP surface to the retrieval service.
type Handlers struct {
	service *point.Service
	geocode GeocodeFunc
}

// NewHandlers wires the service. An empty geocoder key disables the
// address-based station search.
func NewHandlers(service *point.Service, geocoderKey string) *Handlers {
	h := &Handlers{service: service}
	if geocoderKey != "" {
		geocoder.ApiKey = geocoderKey
		h.geocode = func(address string) (float64, float64, error) {
			loc, err := geocoder.Geocoding(geocoder.Address{Street: address})
			if err != nil {
				return 0, 0, err
			}
			return loc.Latitude, loc.Longitude, nil
		}
	}
	return h
}

// WithGeocoder substitutes the address resolver.
func (h *Handlers) WithGeocoder(fn GeocodeFunc) *Handlers {
	h.geocode = fn
	return h
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handlers) {
	v1 := app.Group("/api/v1")

	v1.Get("/networks", h.listNetworks)
	v1.Get("/networks/:network/variables", h.listVariables)
	v1.Post("/stations", h.searchStations)
	v1.Get("/stations", h.searchStationsNear)
	v1.Get("/series", h.getSeries)
}

func (h *Handlers) listNetworks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"networks": h.service.Networks()})
}

func (h *Handlers) listVariables(c *fiber.Ctx) error {
	sensors, err := h.service.Variables(point.Network(c.Params("network")))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(fiber.Map{"variables": sensors})
}

// stationSearchRequest is the POST /stations body: a network, a GeoJSON
// footprint and optional variable codes and filter knobs.
type stationSearchRequest struct {
	Network        string          `json:"network" validate:"required"`
	Geometry       json.RawMessage `json:"geometry" validate:"required"`
	Variables      []string        `json:"variables"`
	Buffer         float64         `json:"buffer" validate:"gte=0"`
	WithinGeometry *bool           `json:"within_geometry"`
}

func (h *Handlers) searchStations(c *fiber.Ctx) error {
	var req stationSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	region, err := geo.ParseGeoJSON(req.Geometry)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	network := point.Network(req.Network)
	sensors, err := h.resolveVariables(network, req.Variables)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	opts := point.DefaultDiscoveryOptions
	opts.Buffer = req.Buffer
	if req.WithinGeometry != nil {
		opts.WithinGeometry = *req.WithinGeometry
	}

	collection, err := h.service.PointsFromGeometry(c.Context(), network, region, sensors, opts)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"stations": collection.GeoRecords()})
}

// searchStationsNear discovers stations around a geocoded address.
// radius is in degrees and doubles as the buffer around the resulting
// box.
func (h *Handlers) searchStationsNear(c *fiber.Ctx) error {
	if h.geocode == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "geocoder is not configured")
	}
	near := c.Query("near")
	network := point.Network(c.Query("network"))
	if near == "" || network == "" {
		return fiber.NewError(fiber.StatusBadRequest, "near and network query parameters are required")
	}
	radius := 0.25
	if v := c.Query("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "radius must be a positive number of degrees")
		}
		radius = parsed
	}

	lat, lon, err := h.geocode(near)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "geocoding failed: "+err.Error())
	}
	region, err := geo.FromBounds(geo.Bounds{
		MinLon: lon - radius, MinLat: lat - radius,
		MaxLon: lon + radius, MaxLat: lat + radius,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sensors, err := h.resolveVariables(network, splitList(c.Query("variables")))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	collection, err := h.service.PointsFromGeometry(
		c.Context(), network, region, sensors, point.DefaultDiscoveryOptions)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"stations": collection.GeoRecords()})
}

// seriesQuery holds query parameters for the series endpoint. TZ is the
// station's IANA zone for providers that speak civil time; it defaults
// to UTC.
type seriesQuery struct {
	Network    string `validate:"required"`
	Station    string `validate:"required"`
	Variables  string `validate:"required"`
	Resolution string `validate:"required"`
	TZ         string
	Lat        float64
	Lon        float64
}

func (h *Handlers) getSeries(c *fiber.Ctx) error {
	q := seriesQuery{
		Network:    c.Query("network"),
		Station:    c.Query("station"),
		Variables:  c.Query("variables"),
		Resolution: c.Query("resolution"),
		TZ:         c.Query("tz"),
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if v := c.Query("lat"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid lat")
		}
		q.Lat = lat
	}
	if v := c.Query("lon"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid lon")
		}
		q.Lon = lon
	}

	res, err := point.ParseResolution(q.Resolution)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	win, err := parseWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	network := point.Network(q.Network)
	sensors, err := h.resolveVariables(network, splitList(q.Variables))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	registry, err := h.registryFor(network)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	// Civil-time providers stamp readings in the station's local zone;
	// ambiguous stamps resolve at the fixed standard offset.
	var local *time.Location
	if q.TZ != "" {
		loc, err := time.LoadLocation(q.TZ)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid tz: "+q.TZ)
		}
		local = point.StandardZone(loc)
	}
	station := point.NewStation(network, q.Station, "", q.Lon, q.Lat, 0, local, registry)

	table, err := h.service.Series(c.Context(), station, sensors, win, res)
	if err != nil {
		return mapServiceError(err)
	}
	units := map[string]string{}
	for _, col := range table.Columns() {
		units[col] = table.Units(col)
	}
	return c.JSON(fiber.Map{
		"network": network,
		"station": q.Station,
		"units":   units,
		"records": table.Records(),
	})
}

// resolveVariables maps request codes through the network registry.
func (h *Handlers) resolveVariables(network point.Network, codes []string) ([]point.SensorDescription, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	registry, err := h.registryFor(network)
	if err != nil {
		return nil, err
	}
	sensors := make([]point.SensorDescription, 0, len(codes))
	for _, code := range codes {
		sd, err := registry.Lookup(code)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, sd)
	}
	return sensors, nil
}

func (h *Handlers) registryFor(network point.Network) (*point.Registry, error) {
	return h.service.Registry(network)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseWindow(start, end string) (point.Window, error) {
	if start == "" || end == "" {
		return point.Window{}, errors.New("start and end query parameters are required")
	}
	s, err := parseTime(start)
	if err != nil {
		return point.Window{}, err
	}
	e, err := parseTime(end)
	if err != nil {
		return point.Window{}, err
	}
	win := point.Window{Start: s, End: e}
	return win, win.Validate()
}

// parseTime tries to parse either RFC3339 or a plain date.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or YYYY-MM-DD")
}

// mapServiceError translates retrieval outcomes to HTTP statuses. No
// records is a 404, unsupported operations and bad variables are the
// caller's mistake, everything else is upstream trouble.
func mapServiceError(err error) error {
	var unknown *point.UnknownVariableError
	var geoErr *geo.Error
	switch {
	case errors.Is(err, point.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, "no records for request")
	case errors.Is(err, point.ErrNotSupported):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unknown), errors.As(err, &geoErr):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusBadGateway, err.Error())
}
