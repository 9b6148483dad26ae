package networks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

const (
	synopticBaseURL    = "https://api.synopticdata.com/v2/stations"
	synopticTokenFile  = ".synoptic_token.json"
	synopticStampParam = "200601021504"
)

// Mesowest serves the Synoptic Data Mesonet API. Requests need an API
// token read from a JSON credential file in the user's home directory.
// Observations are raw sensor readings, so only instantaneous
// resolution is served; timestamps are requested in UTC.
type Mesowest struct {
	registry  *point.Registry
	transport *transport
	baseURL   string
	tokenPath string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

// NewMesowest builds the adapter with the default registry, endpoint
// and credential location.
func NewMesowest(opts ...Option) *Mesowest {
	s := settings{
		baseURL:  synopticBaseURL,
		registry: point.MesowestVariables,
	}
	for _, opt := range opts {
		opt(&s)
	}
	tokenPath := s.tokenPath
	if tokenPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			tokenPath = filepath.Join(home, synopticTokenFile)
		} else {
			tokenPath = synopticTokenFile
		}
	}
	return &Mesowest{
		registry:  s.registry,
		transport: newTransport("mesowest", s.client),
		baseURL:   s.baseURL,
		tokenPath: tokenPath,
	}
}

func (m *Mesowest) Network() point.Network    { return m.registry.Network() }
func (m *Mesowest) Registry() *point.Registry { return m.registry }

// loadToken reads the credential file once. Retrieval without a token
// is a transport failure, not a malformed response.
func (m *Mesowest) loadToken() (string, error) {
	m.tokenOnce.Do(func() {
		raw, err := os.ReadFile(m.tokenPath)
		if err != nil {
			m.tokenErr = fmt.Errorf("read synoptic token %s: %w", m.tokenPath, err)
			return
		}
		var cred struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(raw, &cred); err != nil {
			m.tokenErr = fmt.Errorf("parse synoptic token %s: %w", m.tokenPath, err)
			return
		}
		if cred.Token == "" {
			m.tokenErr = fmt.Errorf("synoptic token file %s has no token field", m.tokenPath)
			return
		}
		m.token = cred.Token
	})
	return m.token, m.tokenErr
}

type synopticStation struct {
	STID      string `json:"STID"`
	Name      string `json:"NAME"`
	Latitude  string `json:"LATITUDE"`
	Longitude string `json:"LONGITUDE"`
	Elevation string `json:"ELEVATION"`
}

// Stations queries station metadata restricted to the region's bounding
// box, narrowed to stations reporting the requested variables.
func (m *Mesowest) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	token, err := m.loadToken()
	if err != nil {
		return nil, &point.TransportError{Network: m.Network(), Err: err}
	}

	b := region.Bounds()
	values := url.Values{}
	values.Set("token", token)
	values.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat))
	if len(sensors) > 0 {
		vars := ""
		for i, sd := range sensors {
			if i > 0 {
				vars += ","
			}
			vars += sd.Code
		}
		values.Set("vars", vars)
	}

	body, err := m.transport.get(ctx, m.baseURL+"/metadata?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{Network: m.Network(), Err: err}
	}

	var payload struct {
		Station []synopticStation `json:"STATION"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &point.MalformedResponseError{
			Network: m.Network(), Reason: fmt.Sprintf("metadata JSON: %v", err),
		}
	}

	var stations []point.Station
	for _, s := range payload.Station {
		lat, latErr := strconv.ParseFloat(s.Latitude, 64)
		lon, lonErr := strconv.ParseFloat(s.Longitude, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		elevation, _ := strconv.ParseFloat(s.Elevation, 64)
		stations = append(stations, point.NewStation(
			m.Network(), s.STID, s.Name, lon, lat, elevation, time.UTC, m.registry,
		))
	}
	return stations, nil
}

// Fetch pulls one variable's observations from the timeseries endpoint.
func (m *Mesowest) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	if res != point.ResolutionInstantaneous {
		return nil, fmt.Errorf("%w: Mesowest resolution %s", point.ErrNotSupported, res)
	}
	token, err := m.loadToken()
	if err != nil {
		return nil, &point.TransportError{
			Network: m.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	values := url.Values{}
	values.Set("token", token)
	values.Set("stid", st.ID)
	values.Set("vars", sensor.Code)
	values.Set("start", win.Start.UTC().Format(synopticStampParam))
	values.Set("end", win.End.UTC().Format(synopticStampParam))
	values.Set("obtimezone", "utc")

	body, err := m.transport.get(ctx, m.baseURL+"/timeseries?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{
			Network: m.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	var payload struct {
		Station []struct {
			Observations map[string]json.RawMessage `json:"OBSERVATIONS"`
			Units        map[string]string          `json:"UNITS"`
		} `json:"STATION"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &point.MalformedResponseError{
			Network: m.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("timeseries JSON: %v", err),
		}
	}
	if len(payload.Station) == 0 {
		return nil, point.ErrNoData
	}
	obs := payload.Station[0].Observations

	var stamps []string
	if raw, ok := obs["date_time"]; ok {
		if err := json.Unmarshal(raw, &stamps); err != nil {
			return nil, &point.MalformedResponseError{
				Network: m.Network(), StationID: st.ID, Sensor: sensor.Code,
				Reason: fmt.Sprintf("date_time array: %v", err),
			}
		}
	}

	// Observed series are suffixed with a sensor-set ordinal.
	var readings []*float64
	if raw, ok := obs[sensor.Code+"_set_1"]; ok {
		if err := json.Unmarshal(raw, &readings); err != nil {
			return nil, &point.MalformedResponseError{
				Network: m.Network(), StationID: st.ID, Sensor: sensor.Code,
				Reason: fmt.Sprintf("%s_set_1 array: %v", sensor.Code, err),
			}
		}
	}
	if len(stamps) == 0 || len(readings) == 0 {
		return nil, point.ErrNoData
	}
	if len(stamps) != len(readings) {
		return nil, &point.MalformedResponseError{
			Network: m.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("%d timestamps but %d values", len(stamps), len(readings)),
		}
	}

	raw := &point.RawResponse{
		Network:   m.Network(),
		StationID: st.ID,
		Sensor:    sensor,
		Units:     payload.Station[0].Units[sensor.Code],
	}
	for i := range stamps {
		raw.Points = append(raw.Points, point.RawPoint{Timestamp: stamps[i], Value: readings[i]})
	}
	return raw, nil
}
