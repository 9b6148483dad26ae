package networks

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

const (
	cdecDataURL   = "https://cdec.water.ca.gov/dynamicapp/req/JsonDataServlet"
	cdecSearchURL = "https://cdec.water.ca.gov/dynamicapp/staSearch"
	cdecLayout    = "2006-1-2 15:04"
)

// CDEC serves the California Data Exchange Center. Data comes from the
// JSON data servlet; station discovery from the station-search report.
// CDEC reports civil time in US Pacific; ambiguous fall-back stamps
// resolve at the fixed standard offset.
type CDEC struct {
	registry  *point.Registry
	transport *transport
	dataURL   string
	searchURL string
	local     *time.Location
}

// NewCDEC builds the adapter with the default registry and endpoints.
func NewCDEC(opts ...Option) *CDEC {
	s := settings{
		baseURL:   cdecDataURL,
		searchURL: cdecSearchURL,
		registry:  point.CDECVariables,
	}
	for _, opt := range opts {
		opt(&s)
	}
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.FixedZone("PST", -8*3600)
	}
	return &CDEC{
		registry:  s.registry,
		transport: newTransport("cdec", s.client),
		dataURL:   s.baseURL,
		searchURL: s.searchURL,
		local:     point.StandardZone(loc),
	}
}

func (c *CDEC) Network() point.Network    { return c.registry.Network() }
func (c *CDEC) Registry() *point.Registry { return c.registry }

// Stations queries the station-search report restricted to the region's
// bounding box. When sensors are given the search is additionally
// narrowed to stations carrying the first sensor; CDEC cannot AND
// multiple sensor constraints in one query.
func (c *CDEC) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	b := region.Bounds()
	values := url.Values{}
	values.Set("sta", "")
	values.Set("loc_chk", "on")
	values.Set("lon1", fmt.Sprintf("%f", b.MinLon))
	values.Set("lon2", fmt.Sprintf("%f", b.MaxLon))
	values.Set("lat1", fmt.Sprintf("%f", b.MinLat))
	values.Set("lat2", fmt.Sprintf("%f", b.MaxLat))
	if len(sensors) > 0 {
		values.Set("sensor_chk", "on")
		values.Set("sensor", sensors[0].Code)
	}
	values.Set("display", "csv")

	body, err := c.transport.get(ctx, c.searchURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{Network: c.Network(), Err: err}
	}
	return c.parseStationCSV(body)
}

func (c *CDEC) parseStationCSV(body []byte) ([]point.Station, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &point.MalformedResponseError{
			Network: c.Network(), Reason: fmt.Sprintf("station search CSV: %v", err),
		}
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	needed := 0
	for _, required := range []string{"ID", "Station Name", "Longitude", "Latitude"} {
		i, ok := col[required]
		if !ok {
			return nil, &point.MalformedResponseError{
				Network: c.Network(), Reason: fmt.Sprintf("station search missing column %q", required),
			}
		}
		if i > needed {
			needed = i
		}
	}

	var stations []point.Station
	for _, row := range records[1:] {
		// The report can trail off with free-text rows shorter than the
		// header, e.g. "no station data available".
		if len(row) <= needed {
			continue
		}
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[col["Longitude"]]), 64)
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[col["Latitude"]]), 64)
		if lonErr != nil || latErr != nil {
			continue
		}
		var elevation float64
		if i, ok := col["ElevationFeet"]; ok && i < len(row) {
			elevation, _ = strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		}
		stations = append(stations, point.NewStation(
			c.Network(),
			strings.TrimSpace(row[col["ID"]]),
			strings.TrimSpace(row[col["Station Name"]]),
			lon, lat, elevation,
			c.local,
			c.registry,
		))
	}
	return stations, nil
}

// durCode maps resolutions to CDEC duration codes. Snow courses are
// CDEC's monthly manual measurements.
func durCode(res point.Resolution) (string, error) {
	switch res {
	case point.ResolutionDaily:
		return "D", nil
	case point.ResolutionHourly:
		return "H", nil
	case point.ResolutionInstantaneous:
		return "E", nil
	case point.ResolutionSnowCourse:
		return "M", nil
	}
	return "", fmt.Errorf("%w: CDEC resolution %s", point.ErrNotSupported, res)
}

type cdecRecord struct {
	StationID string   `json:"stationId"`
	DurCode   string   `json:"durCode"`
	SensorNum int      `json:"SENSOR_NUM"`
	Date      string   `json:"date"`
	Value     *float64 `json:"value"`
	Units     string   `json:"units"`
}

// Fetch pulls one sensor series from the JSON data servlet.
func (c *CDEC) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	dur, err := durCode(res)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("Stations", st.ID)
	values.Set("SensorNums", sensor.Code)
	values.Set("dur_code", dur)
	values.Set("Start", win.Start.In(c.local).Format("2006-01-02"))
	values.Set("End", win.End.In(c.local).Format("2006-01-02"))

	body, err := c.transport.get(ctx, c.dataURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{
			Network: c.Network(), StationID: st.ID, Sensor: sensor.Code, Err: err,
		}
	}

	var records []cdecRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &point.MalformedResponseError{
			Network: c.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("data servlet JSON: %v", err),
		}
	}
	if len(records) == 0 {
		return nil, point.ErrNoData
	}

	raw := &point.RawResponse{
		Network:    c.Network(),
		StationID:  st.ID,
		Sensor:     sensor,
		Units:      records[0].Units,
		TimeLayout: cdecLayout,
		Local:      c.local,
	}
	for _, rec := range records {
		raw.Points = append(raw.Points, point.RawPoint{
			Timestamp: rec.Date,
			Value:     rec.Value,
		})
	}
	return raw, nil
}
