package networks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

const nwsBaseURL = "https://api.weather.gov"

// NWSForecast serves National Weather Service gridded forecasts. The
// grid is resolved per station coordinate via the points endpoint and
// memoized; there is no station catalog, so region discovery is not
// supported and callers construct stations directly. Only forecast
// resolution is served.
type NWSForecast struct {
	registry  *point.Registry
	transport *transport
	baseURL   string

	mu    sync.Mutex
	grids map[string]string // station key -> grid data URL
}

// NewNWSForecast builds the adapter with the default registry and
// endpoint.
func NewNWSForecast(opts ...Option) *NWSForecast {
	s := settings{
		baseURL:  nwsBaseURL,
		registry: point.NWSForecastVariables,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &NWSForecast{
		registry:  s.registry,
		transport: newTransport("nws-forecast", s.client),
		baseURL:   s.baseURL,
		grids:     map[string]string{},
	}
}

func (n *NWSForecast) Network() point.Network    { return n.registry.Network() }
func (n *NWSForecast) Registry() *point.Registry { return n.registry }

// Stations is not supported: forecasts are gridded, not stationed.
func (n *NWSForecast) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	return nil, fmt.Errorf("%w: NWS forecast has no station catalog", point.ErrNotSupported)
}

func (n *NWSForecast) header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "pointloom (github.com/pointloom/pointloom)")
	h.Set("Accept", "application/geo+json")
	return h
}

// gridURL resolves and memoizes the forecast grid for a coordinate.
func (n *NWSForecast) gridURL(ctx context.Context, st point.Station) (string, error) {
	n.mu.Lock()
	cached, ok := n.grids[st.Key()]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/points/%.4f,%.4f", n.baseURL, st.Lat, st.Lon)
	body, err := n.transport.get(ctx, url, n.header())
	if err != nil {
		return "", err
	}

	var payload struct {
		Properties struct {
			ForecastGridData string `json:"forecastGridData"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &point.MalformedResponseError{
			Network: n.Network(), StationID: st.ID,
			Reason: fmt.Sprintf("points JSON: %v", err),
		}
	}
	if payload.Properties.ForecastGridData == "" {
		return "", &point.MalformedResponseError{
			Network: n.Network(), StationID: st.ID,
			Reason: "points response has no forecastGridData",
		}
	}

	n.mu.Lock()
	n.grids[st.Key()] = payload.Properties.ForecastGridData
	n.mu.Unlock()
	return payload.Properties.ForecastGridData, nil
}

type nwsValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

type nwsLayer struct {
	UOM    string     `json:"uom"`
	Values []nwsValue `json:"values"`
}

// Fetch pulls one forecast layer from the grid endpoint, restricted to
// points whose valid time starts inside the window.
func (n *NWSForecast) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	if res != point.ResolutionForecast {
		return nil, fmt.Errorf("%w: NWS resolution %s", point.ErrNotSupported, res)
	}

	grid, err := n.gridURL(ctx, st)
	if err != nil {
		var malformed *point.MalformedResponseError
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, &point.TransportError{
			Network: n.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	body, err := n.transport.get(ctx, grid, n.header())
	if err != nil {
		return nil, &point.TransportError{
			Network: n.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	var payload struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &point.MalformedResponseError{
			Network: n.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("grid JSON: %v", err),
		}
	}
	layerRaw, ok := payload.Properties[sensor.Code]
	if !ok {
		return nil, point.ErrNoData
	}
	var layer nwsLayer
	if err := json.Unmarshal(layerRaw, &layer); err != nil {
		return nil, &point.MalformedResponseError{
			Network: n.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("layer %s: %v", sensor.Code, err),
		}
	}

	raw := &point.RawResponse{
		Network:   n.Network(),
		StationID: st.ID,
		Sensor:    sensor,
		Units:     strings.TrimPrefix(layer.UOM, "wmoUnit:"),
	}
	for _, v := range layer.Values {
		// validTime is "<RFC 3339 stamp>/<ISO 8601 duration>"; the
		// reading is keyed to the interval start.
		stamp, _, found := strings.Cut(v.ValidTime, "/")
		if !found {
			stamp = v.ValidTime
		}
		ts, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, &point.MalformedResponseError{
				Network: n.Network(), StationID: st.ID, Sensor: sensor.Code,
				Reason: fmt.Sprintf("unparsable validTime %q", v.ValidTime),
			}
		}
		if ts.Before(win.Start) || !ts.Before(win.End) {
			continue
		}
		raw.Points = append(raw.Points, point.RawPoint{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Value:     v.Value,
		})
	}
	if len(raw.Points) == 0 {
		return nil, point.ErrNoData
	}
	return raw, nil
}
