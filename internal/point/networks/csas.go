package networks

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pointloom/pointloom/internal/cache"
	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

const csasBaseURL = "https://snowstudies.org/wp-content/uploads/2022/02"

// csasZone is the fixed local time of the Senator Beck basin archives.
var csasZone = time.FixedZone("UTC-7", -7*3600)

// csasPeriods are the year spans the archive is published in, one CSV
// file per station, interval and span.
var csasPeriods = [][2]int{
	{2003, 2009},
	{2010, 2023},
}

// CSAS serves the Center for Snow and Avalanche Studies' Senator Beck
// basin archive. The catalog is four fixed study sites; data comes as
// whole-period CSV snapshots, downloaded once through the file cache
// and filtered locally. Timestamps are year, day-of-year and hour at a
// fixed UTC-7 offset.
type CSAS struct {
	registry *point.Registry
	client   *transport
	baseURL  string
	cache    *cache.FileCache
	catalog  []point.Station
}

// NewCSAS builds the adapter. A file cache is required because every
// fetch pulls multi-year snapshots.
func NewCSAS(fc *cache.FileCache, opts ...Option) *CSAS {
	s := settings{
		baseURL:  csasBaseURL,
		registry: point.CSASVariables,
		cache:    fc,
	}
	for _, opt := range opts {
		opt(&s)
	}
	c := &CSAS{
		registry: s.registry,
		client:   newTransport("csas", s.client),
		baseURL:  s.baseURL,
		cache:    s.cache,
	}
	c.catalog = []point.Station{
		point.NewStation(c.Network(), "SBSP", "Senator Beck Study Plot", -107.726272, 37.906885, 3714, csasZone, c.registry),
		point.NewStation(c.Network(), "SASP", "Swamp Angel Study Plot", -107.711317, 37.906914, 3371, csasZone, c.registry),
		point.NewStation(c.Network(), "PTSP", "Putney Study Plot", -107.695771, 37.892329, 3757, csasZone, c.registry),
		point.NewStation(c.Network(), "SBSG", "Senator Beck Stream Gauge", -107.709434, 37.906778, 3362, csasZone, c.registry),
	}
	return c
}

func (c *CSAS) Network() point.Network    { return c.registry.Network() }
func (c *CSAS) Registry() *point.Registry { return c.registry }

// Stations filters the static four-site catalog by the region's
// bounding box.
func (c *CSAS) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	b := region.Bounds()
	var out []point.Station
	for _, st := range c.catalog {
		if b.Contains(st.Lon, st.Lat) {
			out = append(out, st)
		}
	}
	return out, nil
}

func csasInterval(res point.Resolution) (string, error) {
	switch res {
	case point.ResolutionHourly:
		return "1hr", nil
	case point.ResolutionDaily:
		return "24hr", nil
	}
	return "", fmt.Errorf("%w: CSAS resolution %s", point.ErrNotSupported, res)
}

// Fetch reads the archive snapshots overlapping the window and extracts
// one sensor column.
func (c *CSAS) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	interval, err := csasInterval(res)
	if err != nil {
		return nil, err
	}
	if c.cache == nil {
		return nil, &point.TransportError{
			Network: c.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win,
			Err: fmt.Errorf("no file cache configured"),
		}
	}

	startYear := win.Start.In(csasZone).Year()
	endYear := win.End.In(csasZone).Year()

	raw := &point.RawResponse{
		Network:    c.Network(),
		StationID:  st.ID,
		Sensor:     sensor,
		TimeLayout: time.RFC3339,
	}
	for _, period := range csasPeriods {
		if period[1] < startYear || period[0] > endYear {
			continue
		}
		name := fmt.Sprintf("%s_%s_%d-%d.csv", st.ID, interval, period[0], period[1])
		body, err := c.cache.Fetch(ctx, name, func(ctx context.Context) ([]byte, error) {
			return c.client.get(ctx, c.baseURL+"/"+name, nil)
		})
		if err != nil {
			return nil, &point.TransportError{
				Network: c.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
			}
		}
		points, err := c.parseArchive(body, st.ID, sensor.Code, win)
		if err != nil {
			return nil, err
		}
		raw.Points = append(raw.Points, points...)
	}
	if len(raw.Points) == 0 {
		return nil, point.ErrNoData
	}
	return raw, nil
}

// parseArchive extracts one column from a snapshot. Rows are stamped by
// Year, DOY and Hour columns; hour 2400 is the end of the stamped day.
func (c *CSAS) parseArchive(body []byte, stationID, code string, win point.Window) ([]point.RawPoint, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &point.MalformedResponseError{
			Network: c.Network(), StationID: stationID, Sensor: code,
			Reason: fmt.Sprintf("archive CSV: %v", err),
		}
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Year", "DOY"} {
		if _, ok := col[required]; !ok {
			return nil, &point.MalformedResponseError{
				Network: c.Network(), StationID: stationID, Sensor: code,
				Reason: fmt.Sprintf("archive missing column %q", required),
			}
		}
	}
	valueCol, ok := col[code]
	if !ok {
		return nil, nil
	}
	hourCol, hasHour := col["Hour"]

	var points []point.RawPoint
	for _, row := range records[1:] {
		if valueCol >= len(row) {
			continue
		}
		year, yearErr := strconv.Atoi(strings.TrimSpace(row[col["Year"]]))
		doy, doyErr := strconv.Atoi(strings.TrimSpace(row[col["DOY"]]))
		if yearErr != nil || doyErr != nil {
			continue
		}
		var hour int
		if hasHour && hourCol < len(row) {
			hour, _ = strconv.Atoi(strings.TrimSpace(row[hourCol]))
		}
		ts := csasStamp(year, doy, hour)
		if ts.Before(win.Start) || !ts.Before(win.End) {
			continue
		}

		var value *float64
		if f, err := strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64); err == nil {
			value = &f
		}
		points = append(points, point.RawPoint{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Value:     value,
		})
	}
	return points, nil
}

// csasStamp builds the instant for a Year, DOY, Hour triple. Hour is
// HHMM on a 100..2400 clock.
func csasStamp(year, doy, hour int) time.Time {
	base := time.Date(year, time.January, 1, 0, 0, 0, 0, csasZone)
	base = base.AddDate(0, 0, doy-1)
	return base.Add(time.Duration(hour/100)*time.Hour + time.Duration(hour%100)*time.Minute)
}
