package networks

import (
	"bufio"
	"context"
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
	usgsDataURL  = "https://waterservices.usgs.gov/nwis"
	usgsSiteURL  = "https://waterservices.usgs.gov/nwis/site/"
	usgsDVLayout = "2006-01-02T15:04:05.000"
	usgsIVLayout = "2006-01-02T15:04:05.000-07:00"
)

// USGS serves the NWIS water services. Daily values come from the dv
// service, instantaneous values from iv; site discovery uses the RDB
// site service. Instantaneous stamps carry their own offset, daily
// stamps are civil dates.
type USGS struct {
	registry  *point.Registry
	transport *transport
	dataURL   string
	siteURL   string
}

// NewUSGS builds the adapter with the default registry and endpoints.
func NewUSGS(opts ...Option) *USGS {
	s := settings{
		baseURL:   usgsDataURL,
		searchURL: usgsSiteURL,
		registry:  point.USGSVariables,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &USGS{
		registry:  s.registry,
		transport: newTransport("usgs", s.client),
		dataURL:   s.baseURL,
		siteURL:   s.searchURL,
	}
}

func (u *USGS) Network() point.Network    { return u.registry.Network() }
func (u *USGS) Registry() *point.Registry { return u.registry }

// Stations queries the RDB site service restricted to the region's
// bounding box. NWIS caps the box at one degree per side; larger
// requests fail upstream rather than silently truncate.
func (u *USGS) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	b := region.Bounds()
	values := url.Values{}
	values.Set("format", "rdb")
	values.Set("bBox", fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat))
	values.Set("siteStatus", "active")
	values.Set("hasDataTypeCd", "dv")
	if len(sensors) > 0 {
		codes := make([]string, 0, len(sensors))
		for _, sd := range sensors {
			codes = append(codes, sd.Code)
		}
		values.Set("parameterCd", strings.Join(codes, ","))
	}

	body, err := u.transport.get(ctx, u.siteURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{Network: u.Network(), Err: err}
	}
	return u.parseRDB(body)
}

// parseRDB reads the tab-delimited site listing: comment lines, a header
// row, a column-format row, then data.
func (u *USGS) parseRDB(body []byte) ([]point.Station, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var header []string
	col := map[string]int{}
	var stations []point.Station
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if header == nil {
			header = fields
			for i, name := range header {
				col[name] = i
			}
			for _, required := range []string{"site_no", "station_nm", "dec_lat_va", "dec_long_va"} {
				if _, ok := col[required]; !ok {
					return nil, &point.MalformedResponseError{
						Network: u.Network(),
						Reason:  fmt.Sprintf("site listing missing column %q", required),
					}
				}
			}
			continue
		}
		// The row after the header encodes column widths, e.g. "5s".
		if strings.HasSuffix(fields[0], "s") || strings.HasSuffix(fields[0], "d") {
			if _, err := strconv.Atoi(strings.TrimRight(fields[0], "sd")); err == nil {
				continue
			}
		}
		if len(fields) < len(header) {
			continue
		}
		lat, latErr := strconv.ParseFloat(fields[col["dec_lat_va"]], 64)
		lon, lonErr := strconv.ParseFloat(fields[col["dec_long_va"]], 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		var elevation float64
		if i, ok := col["alt_va"]; ok {
			elevation, _ = strconv.ParseFloat(fields[i], 64)
		}
		stations = append(stations, point.NewStation(
			u.Network(),
			fields[col["site_no"]],
			fields[col["station_nm"]],
			lon, lat, elevation,
			time.UTC,
			u.registry,
		))
	}
	if err := scanner.Err(); err != nil {
		return nil, &point.MalformedResponseError{
			Network: u.Network(), Reason: fmt.Sprintf("site listing: %v", err),
		}
	}
	return stations, nil
}

type nwisPayload struct {
	Value struct {
		TimeSeries []struct {
			Variable struct {
				Unit struct {
					UnitCode string `json:"unitCode"`
				} `json:"unit"`
				NoDataValue float64 `json:"noDataValue"`
			} `json:"variable"`
			Values []struct {
				Value []struct {
					Value    string `json:"value"`
					DateTime string `json:"dateTime"`
				} `json:"value"`
			} `json:"values"`
		} `json:"timeSeries"`
	} `json:"value"`
}

// Fetch pulls one parameter series from the dv or iv service.
func (u *USGS) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	var service, layout string
	switch res {
	case point.ResolutionDaily:
		service, layout = "dv", usgsDVLayout
	case point.ResolutionInstantaneous:
		service, layout = "iv", usgsIVLayout
	default:
		return nil, fmt.Errorf("%w: USGS resolution %s", point.ErrNotSupported, res)
	}

	values := url.Values{}
	values.Set("format", "json")
	values.Set("sites", st.ID)
	values.Set("parameterCd", sensor.Code)
	values.Set("startDT", win.Start.UTC().Format("2006-01-02"))
	values.Set("endDT", win.End.UTC().Format("2006-01-02"))
	values.Set("siteStatus", "all")

	body, err := u.transport.get(ctx, fmt.Sprintf("%s/%s/?%s", u.dataURL, service, values.Encode()), nil)
	if err != nil {
		return nil, &point.TransportError{
			Network: u.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	var payload nwisPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &point.MalformedResponseError{
			Network: u.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("%s JSON: %v", service, err),
		}
	}
	if len(payload.Value.TimeSeries) == 0 {
		return nil, point.ErrNoData
	}

	series := payload.Value.TimeSeries[0]
	raw := &point.RawResponse{
		Network:    u.Network(),
		StationID:  st.ID,
		Sensor:     sensor,
		Units:      series.Variable.Unit.UnitCode,
		TimeLayout: layout,
		Local:      nil, // dv dates are treated as UTC days; iv stamps carry an offset
	}
	for _, block := range series.Values {
		for _, v := range block.Value {
			raw.Points = append(raw.Points, point.RawPoint{
				Timestamp: v.DateTime,
				Value:     nwisValue(v.Value, series.Variable.NoDataValue),
			})
		}
	}
	if len(raw.Points) == 0 {
		return nil, point.ErrNoData
	}
	return raw, nil
}

// nwisValue converts the string-encoded reading, mapping the variable's
// declared no-data value to absent.
func nwisValue(s string, noData float64) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if noData != 0 && f == noData {
		return nil
	}
	return &f
}
