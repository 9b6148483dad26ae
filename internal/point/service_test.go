package point

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/store"
)

// stubAdapter serves canned stations and per-station raw responses.
type stubAdapter struct {
	registry     *Registry
	stations     []Station
	stationCalls int
	fetch        func(st Station, sensor SensorDescription) (*RawResponse, error)
}

func (s *stubAdapter) Network() Network    { return s.registry.Network() }
func (s *stubAdapter) Registry() *Registry { return s.registry }

func (s *stubAdapter) Stations(ctx context.Context, region *geo.Region, sensors []SensorDescription) ([]Station, error) {
	s.stationCalls++
	return s.stations, nil
}

func (s *stubAdapter) Fetch(ctx context.Context, st Station, sensor SensorDescription, win Window, res Resolution) (*RawResponse, error) {
	return s.fetch(st, sensor)
}

func testRegion(t *testing.T) *geo.Region {
	t.Helper()
	region, err := geo.FromBounds(geo.Bounds{MinLon: -120, MinLat: 37, MaxLon: -118, MaxLat: 39})
	require.NoError(t, err)
	return region
}

func newStubService(t *testing.T, stub *stubAdapter, catalog *store.Catalog[Station]) *Service {
	t.Helper()
	dispatcher, err := NewDispatcher(stub)
	require.NoError(t, err)
	return NewService(dispatcher, catalog, nil)
}

func TestPointsFromGeometryFiltersStations(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	inside := NewStation(NetworkCDEC, "IN", "Inside", -119, 38, 0, nil, registry)
	outside := NewStation(NetworkCDEC, "OUT", "Outside", -110, 45, 0, nil, registry)
	stub := &stubAdapter{registry: registry, stations: []Station{inside, outside}}
	svc := newStubService(t, stub, nil)

	collection, err := svc.PointsFromGeometry(
		context.Background(), NetworkCDEC, testRegion(t),
		[]SensorDescription{{Code: "3", Name: "SWE"}}, DefaultDiscoveryOptions)
	require.NoError(t, err)
	require.Equal(t, 1, collection.Len())
	assert.Equal(t, "IN", collection.Stations()[0].ID)
}

func TestPointsFromGeometryRejectsUnknownVariable(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	svc := newStubService(t, &stubAdapter{registry: registry}, nil)

	_, err := svc.PointsFromGeometry(
		context.Background(), NetworkCDEC, testRegion(t),
		[]SensorDescription{{Code: "999", Name: "BOGUS"}}, DefaultDiscoveryOptions)
	var unknown *UnknownVariableError
	require.True(t, errors.As(err, &unknown))
}

func TestPointsFromGeometryUsesCatalog(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	st := NewStation(NetworkCDEC, "IN", "Inside", -119, 38, 0, nil, registry)
	stub := &stubAdapter{registry: registry, stations: []Station{st}}
	svc := newStubService(t, stub, store.NewCatalog[Station](time.Hour))

	for i := 0; i < 3; i++ {
		_, err := svc.PointsFromGeometry(
			context.Background(), NetworkCDEC, testRegion(t), nil, DefaultDiscoveryOptions)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, stub.stationCalls)
}

func TestSeriesJoinsSensors(t *testing.T) {
	registry := MustRegistry(NetworkSnotel,
		SensorDescription{Code: "WTEQ", Name: "SWE"},
		SensorDescription{Code: "SNWD", Name: "SNOWDEPTH"},
	)
	st := NewStation(NetworkSnotel, "713:CO:SNTL", "Red Mountain Pass", -107.7, 37.9, 3400, nil, registry)

	stamp := func(d int) string {
		return time.Date(2023, time.March, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	stub := &stubAdapter{registry: registry}
	stub.fetch = func(st Station, sensor SensorDescription) (*RawResponse, error) {
		raw := &RawResponse{Network: NetworkSnotel, StationID: st.ID, Sensor: sensor, Units: "in"}
		switch sensor.Code {
		case "WTEQ":
			// Day 3 is missing upstream.
			for _, d := range []int{1, 2, 4, 5} {
				raw.Points = append(raw.Points, RawPoint{Timestamp: stamp(d), Value: fptr(float64(d))})
			}
		case "SNWD":
			raw.Points = append(raw.Points, RawPoint{Timestamp: stamp(3), Value: fptr(30)})
		}
		return raw, nil
	}
	svc := newStubService(t, stub, nil)

	win := Window{Start: day(1), End: day(6)}
	table, err := svc.Series(context.Background(), st, registry.Sensors(), win, ResolutionDaily)
	require.NoError(t, err)

	rows := table.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, Absent, rows[2].Value("SWE"))
	assert.Equal(t, SomeValue(30), rows[2].Value("SNOWDEPTH"))
	assert.Equal(t, SomeValue(4), rows[3].Value("SWE"))
	assert.Equal(t, Absent, rows[3].Value("SNOWDEPTH"))
}

func TestSeriesAllSensorsEmptyIsNoData(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	st := NewStation(NetworkCDEC, "TNY", "Tenaya Lake", -119.4, 37.8, 2500, nil, registry)
	stub := &stubAdapter{registry: registry}
	stub.fetch = func(Station, SensorDescription) (*RawResponse, error) {
		return nil, ErrNoData
	}
	svc := newStubService(t, stub, nil)

	_, err := svc.Series(context.Background(), st, registry.Sensors(),
		Window{Start: day(1), End: day(2)}, ResolutionDaily)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestSeriesRejectsInvalidWindow(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	st := NewStation(NetworkCDEC, "TNY", "", -119.4, 37.8, 0, nil, registry)
	svc := newStubService(t, &stubAdapter{registry: registry}, nil)

	_, err := svc.Series(context.Background(), st, registry.Sensors(),
		Window{Start: day(2), End: day(1)}, ResolutionDaily)
	require.Error(t, err)
}

func TestBatchSeriesPartialFailure(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	ok := NewStation(NetworkCDEC, "OK", "", -119, 38, 0, nil, registry)
	empty := NewStation(NetworkCDEC, "EMPTY", "", -119, 38, 0, nil, registry)
	broken := NewStation(NetworkCDEC, "BROKEN", "", -119, 38, 0, nil, registry)

	stub := &stubAdapter{registry: registry}
	stub.fetch = func(st Station, sensor SensorDescription) (*RawResponse, error) {
		switch st.ID {
		case "OK":
			return &RawResponse{
				Network: NetworkCDEC, StationID: st.ID, Sensor: sensor,
				Points: []RawPoint{{Timestamp: day(1).Format(time.RFC3339), Value: fptr(7)}},
			}, nil
		case "EMPTY":
			return nil, ErrNoData
		}
		return nil, &TransportError{Network: NetworkCDEC, StationID: st.ID, Err: fmt.Errorf("boom")}
	}
	svc := newStubService(t, stub, nil)

	result := svc.BatchSeries(context.Background(), []Station{ok, empty, broken},
		registry.Sensors(), Window{Start: day(1), End: day(2)}, ResolutionDaily)

	require.Len(t, result.Tables, 1)
	assert.Equal(t, 1, result.Tables["OK"].Len())
	assert.Equal(t, []string{"EMPTY"}, result.NoData)

	require.Len(t, result.Failed, 1)
	var stErr *StationError
	require.True(t, errors.As(result.Failed["BROKEN"], &stErr))
	assert.Equal(t, "BROKEN", stErr.StationID)
	require.Error(t, result.Err())
}

func TestBatchSeriesAllSucceedHasNilErr(t *testing.T) {
	registry := MustRegistry(NetworkCDEC, SensorDescription{Code: "3", Name: "SWE"})
	st := NewStation(NetworkCDEC, "OK", "", -119, 38, 0, nil, registry)
	stub := &stubAdapter{registry: registry}
	stub.fetch = func(st Station, sensor SensorDescription) (*RawResponse, error) {
		return &RawResponse{
			Network: NetworkCDEC, StationID: st.ID, Sensor: sensor,
			Points: []RawPoint{{Timestamp: day(1).Format(time.RFC3339), Value: fptr(1)}},
		}, nil
	}
	svc := newStubService(t, stub, nil)

	result := svc.BatchSeries(context.Background(), []Station{st},
		registry.Sensors(), Window{Start: day(1), End: day(2)}, ResolutionDaily)
	assert.NoError(t, result.Err())
	assert.Empty(t, result.NoData)
}
