package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

// stubAdapter backs the API tests with canned data.
type stubAdapter struct {
	registry *point.Registry
	stations []point.Station
	fetch    func(st point.Station, sensor point.SensorDescription) (*point.RawResponse, error)
}

func (s *stubAdapter) Network() point.Network    { return s.registry.Network() }
func (s *stubAdapter) Registry() *point.Registry { return s.registry }

func (s *stubAdapter) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	return s.stations, nil
}

func (s *stubAdapter) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	if s.fetch == nil {
		return nil, point.ErrNoData
	}
	return s.fetch(st, sensor)
}

func newTestApp(t *testing.T, stub *stubAdapter) (*fiber.App, *Handlers) {
	t.Helper()
	dispatcher, err := point.NewDispatcher(stub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	service := point.NewService(dispatcher, nil, nil)
	handlers := NewHandlers(service, "")

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	RegisterRoutes(app, handlers)
	return app, handlers
}

func defaultStub() *stubAdapter {
	registry := point.MustRegistry(point.NetworkCDEC,
		point.SensorDescription{Code: "3", Name: "SWE"},
	)
	return &stubAdapter{
		registry: registry,
		stations: []point.Station{
			point.NewStation(point.NetworkCDEC, "TNY", "Tenaya Lake", -119.448, 37.838, 8150, nil, registry),
			point.NewStation(point.NetworkCDEC, "FAR", "Far Away", -100, 30, 0, nil, registry),
		},
	}
}

func TestListNetworks(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "CDEC") {
		t.Fatalf("expected CDEC in %s", body)
	}
}

func TestListVariables(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/networks/CDEC/variables", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	// Unknown network is a 404.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/networks/NOPE/variables", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestSearchStations(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	body := `{
		"network": "CDEC",
		"variables": ["3"],
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[-120,37],[-118,37],[-118,39],[-120,39],[-120,37]]]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, raw)
	}

	var payload struct {
		Stations []point.GeoStationRecord `json:"stations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Stations) != 1 {
		t.Fatalf("expected 1 station inside the polygon, got %d", len(payload.Stations))
	}
	if payload.Stations[0].ID != "TNY" {
		t.Fatalf("expected TNY, got %s", payload.Stations[0].ID)
	}
	if payload.Stations[0].Geometry.Type != "Point" {
		t.Fatalf("expected point geometry, got %s", payload.Stations[0].Geometry.Type)
	}
}

func TestSearchStationsValidation(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	// Missing geometry should return 400.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stations", strings.NewReader(`{"network": "CDEC"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Unknown variable code should also return 400.
	body := `{
		"network": "CDEC",
		"variables": ["999"],
		"geometry": {"type": "Polygon", "coordinates": [[[-120,37],[-118,37],[-118,39],[-120,39],[-120,37]]]}
	}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/stations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestSearchStationsNear(t *testing.T) {
	app, handlers := newTestApp(t, defaultStub())

	// Without a geocoder the endpoint is disabled.
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations?near=Yosemite&network=CDEC", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected status %d, got %d", http.StatusNotImplemented, resp.StatusCode)
	}

	handlers.WithGeocoder(func(address string) (float64, float64, error) {
		return 37.838, -119.448, nil
	})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stations?near=Yosemite&network=CDEC&radius=0.5", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, raw)
	}
	var payload struct {
		Stations []point.GeoStationRecord `json:"stations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Stations) != 1 || payload.Stations[0].ID != "TNY" {
		t.Fatalf("expected only TNY near the geocoded point, got %+v", payload.Stations)
	}
}

func TestGetSeries(t *testing.T) {
	stub := defaultStub()
	stub.fetch = func(st point.Station, sensor point.SensorDescription) (*point.RawResponse, error) {
		return &point.RawResponse{
			Network:   point.NetworkCDEC,
			StationID: st.ID,
			Sensor:    sensor,
			Units:     "INCHES",
			Points: []point.RawPoint{
				{Timestamp: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), Value: f64(10.2)},
			},
		}, nil
	}
	app, _ := newTestApp(t, stub)

	url := "/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=daily&start=2023-03-01&end=2023-03-05"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, raw)
	}

	var payload struct {
		Units   map[string]string `json:"units"`
		Records []point.Record    `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(payload.Records))
	}
	if payload.Units["SWE"] != "INCHES" {
		t.Fatalf("expected INCHES units, got %q", payload.Units["SWE"])
	}
	if got := payload.Records[0].Values["SWE"]; got != point.SomeValue(10.2) {
		t.Fatalf("expected 10.2, got %+v", got)
	}
}

func TestGetSeriesTimezoneParam(t *testing.T) {
	stub := defaultStub()
	var gotZone *time.Location
	stub.fetch = func(st point.Station, sensor point.SensorDescription) (*point.RawResponse, error) {
		gotZone = st.Timezone()
		return &point.RawResponse{
			Network:   point.NetworkCDEC,
			StationID: st.ID,
			Sensor:    sensor,
			Units:     "INCHES",
			Points: []point.RawPoint{
				{Timestamp: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), Value: f64(10.2)},
			},
		}, nil
	}
	app, _ := newTestApp(t, stub)

	url := "/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=daily&start=2023-03-01&end=2023-03-05&tz=America/Denver"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, raw)
	}
	// The adapter sees the station at the zone's fixed standard offset.
	_, offset := time.Now().In(gotZone).Zone()
	if offset != -7*3600 {
		t.Fatalf("expected UTC-7 standard offset, got %d", offset)
	}

	// An unknown zone is the caller's mistake.
	url = "/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=daily&start=2023-03-01&end=2023-03-05&tz=Not/AZone"
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestGetSeriesNoDataIs404(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	url := "/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=daily&start=2023-03-01&end=2023-03-05"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestGetSeriesValidation(t *testing.T) {
	app, _ := newTestApp(t, defaultStub())

	cases := []string{
		// Missing station.
		"/api/v1/series?network=CDEC&variables=3&resolution=daily&start=2023-03-01&end=2023-03-05",
		// Bad resolution.
		"/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=weekly&start=2023-03-01&end=2023-03-05",
		// Inverted window.
		"/api/v1/series?network=CDEC&station=TNY&variables=3&resolution=daily&start=2023-03-05&end=2023-03-01",
		// Unknown variable.
		"/api/v1/series?network=CDEC&station=TNY&variables=999&resolution=daily&start=2023-03-01&end=2023-03-05",
	}
	for i, url := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: expected status %d, got %d", i, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func f64(f float64) *float64 { return &f }
