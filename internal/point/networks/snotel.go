package networks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

const (
	awdbBaseURL      = "https://wcc.sc.egov.usda.gov/awdbRestApi/services/v1"
	awdbDailyLayout  = "2006-01-02"
	awdbHourlyLayout = "2006-01-02 15:04"
)

// Snotel serves the USDA NRCS AWDB REST API, covering SNOTEL telemetry
// and the manual snow-course program. Station ids are AWDB triplets
// ("id:state:network"). AWDB reports each station's fixed data offset
// directly, so no DST resolution is needed.
type Snotel struct {
	registry  *point.Registry
	transport *transport
	baseURL   string
}

// NewSnotel builds the adapter with the default registry and endpoint.
func NewSnotel(opts ...Option) *Snotel {
	s := settings{
		baseURL:  awdbBaseURL,
		registry: point.SnotelVariables,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Snotel{
		registry:  s.registry,
		transport: newTransport("snotel", s.client),
		baseURL:   s.baseURL,
	}
}

func (a *Snotel) Network() point.Network    { return a.registry.Network() }
func (a *Snotel) Registry() *point.Registry { return a.registry }

type awdbStation struct {
	StationTriplet string  `json:"stationTriplet"`
	Name           string  `json:"name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Elevation      float64 `json:"elevation"`
	DataTimeZone   float64 `json:"dataTimeZone"`
}

// Stations queries the AWDB station endpoint restricted to the region's
// bounding box, narrowed to stations carrying all requested elements.
func (a *Snotel) Stations(ctx context.Context, region *geo.Region, sensors []point.SensorDescription) ([]point.Station, error) {
	b := region.Bounds()
	values := url.Values{}
	values.Set("minLatitude", fmt.Sprintf("%f", b.MinLat))
	values.Set("maxLatitude", fmt.Sprintf("%f", b.MaxLat))
	values.Set("minLongitude", fmt.Sprintf("%f", b.MinLon))
	values.Set("maxLongitude", fmt.Sprintf("%f", b.MaxLon))
	values.Set("networkCds", "SNTL,SNOW")
	if len(sensors) > 0 {
		codes := make([]string, 0, len(sensors))
		for _, sd := range sensors {
			codes = append(codes, sd.Code)
		}
		values.Set("elements", strings.Join(codes, ","))
	}

	body, err := a.transport.get(ctx, a.baseURL+"/stations?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{Network: a.Network(), Err: err}
	}

	var upstream []awdbStation
	if err := json.Unmarshal(body, &upstream); err != nil {
		return nil, &point.MalformedResponseError{
			Network: a.Network(), Reason: fmt.Sprintf("station listing JSON: %v", err),
		}
	}

	stations := make([]point.Station, 0, len(upstream))
	for _, s := range upstream {
		stations = append(stations, point.NewStation(
			a.Network(),
			s.StationTriplet,
			s.Name,
			s.Longitude, s.Latitude, s.Elevation,
			awdbZone(s.DataTimeZone),
			a.registry,
		))
	}
	return stations, nil
}

// awdbZone converts AWDB's fractional hour offset to a fixed zone.
func awdbZone(offsetHours float64) *time.Location {
	if offsetHours == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+.0f", offsetHours), int(offsetHours*3600))
}

func awdbDuration(res point.Resolution) (duration, layout string, err error) {
	switch res {
	case point.ResolutionDaily:
		return "DAILY", awdbDailyLayout, nil
	case point.ResolutionHourly:
		return "HOURLY", awdbHourlyLayout, nil
	case point.ResolutionSnowCourse:
		// Snow courses are measured manually around the start and
		// middle of each month.
		return "SEMIMONTHLY", awdbDailyLayout, nil
	}
	return "", "", fmt.Errorf("%w: SNOTEL resolution %s", point.ErrNotSupported, res)
}

type awdbValue struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

type awdbData struct {
	StationElement struct {
		ElementCode    string `json:"elementCode"`
		StoredUnitCode string `json:"storedUnitCode"`
	} `json:"stationElement"`
	Values []awdbValue `json:"values"`
}

type awdbSeries struct {
	StationTriplet string     `json:"stationTriplet"`
	Data           []awdbData `json:"data"`
}

// Fetch pulls one element series from the AWDB data endpoint.
func (a *Snotel) Fetch(ctx context.Context, st point.Station, sensor point.SensorDescription, win point.Window, res point.Resolution) (*point.RawResponse, error) {
	duration, layout, err := awdbDuration(res)
	if err != nil {
		return nil, err
	}

	local := st.Timezone()
	values := url.Values{}
	values.Set("stationTriplets", st.ID)
	values.Set("elements", sensor.Code)
	values.Set("duration", duration)
	values.Set("beginDate", win.Start.In(local).Format(awdbDailyLayout))
	values.Set("endDate", win.End.In(local).Format(awdbDailyLayout))

	body, err := a.transport.get(ctx, a.baseURL+"/data?"+values.Encode(), nil)
	if err != nil {
		return nil, &point.TransportError{
			Network: a.Network(), StationID: st.ID, Sensor: sensor.Code, Window: win, Err: err,
		}
	}

	var series []awdbSeries
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, &point.MalformedResponseError{
			Network: a.Network(), StationID: st.ID, Sensor: sensor.Code,
			Reason: fmt.Sprintf("data JSON: %v", err),
		}
	}
	if len(series) == 0 || len(series[0].Data) == 0 {
		return nil, point.ErrNoData
	}

	data := series[0].Data[0]
	raw := &point.RawResponse{
		Network:    a.Network(),
		StationID:  st.ID,
		Sensor:     sensor,
		Units:      data.StationElement.StoredUnitCode,
		TimeLayout: layout,
		Local:      local,
	}
	for _, v := range data.Values {
		raw.Points = append(raw.Points, point.RawPoint{Timestamp: v.Date, Value: v.Value})
	}
	if len(raw.Points) == 0 {
		return nil, point.ErrNoData
	}
	return raw, nil
}
