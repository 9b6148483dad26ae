package point

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network identifies the owning data source of a station or registry.
type Network string

const (
	NetworkCDEC        Network = "CDEC"
	NetworkSnotel      Network = "SNOTEL"
	NetworkUSGS        Network = "USGS"
	NetworkMesowest    Network = "MESOWEST"
	NetworkNWSForecast Network = "NWS-FORECAST"
	NetworkCSAS        Network = "CSAS"
)

// SensorDescription describes one variable as a network reports it.
// Code is the provider-native identifier; Name is the canonical
// cross-network name. Two networks measuring the same quantity must use
// the byte-identical Name (e.g. snow-water-equivalent is always "SWE"),
// which is what makes cross-network joins and concatenation possible.
// Accumulated marks cumulative quantities that must be summed rather
// than averaged when a caller resamples.
type SensorDescription struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Accumulated bool   `yaml:"accumulated,omitempty" json:"accumulated,omitempty"`
}

// Registry is the read-only sensor vocabulary of one network. A network
// adapter owns exactly one registry; every station of that network
// references it. Extension is by substitution: a caller wanting extra
// sensors builds a complete replacement registry and configures the
// adapter with it. Registries are never merged.
type Registry struct {
	network Network
	sensors []SensorDescription
	byCode  map[string]SensorDescription
}

// NewRegistry builds a registry, rejecting duplicate provider codes.
// Canonical-name consistency across registries is a convention, not
// validated here; see CheckCanonicalNames.
func NewRegistry(network Network, sensors ...SensorDescription) (*Registry, error) {
	byCode := make(map[string]SensorDescription, len(sensors))
	for _, s := range sensors {
		if s.Code == "" || s.Name == "" {
			return nil, fmt.Errorf("registry %s: sensor needs both code and name, got %+v", network, s)
		}
		if _, ok := byCode[s.Code]; ok {
			return nil, fmt.Errorf("registry %s: duplicate sensor code %q", network, s.Code)
		}
		byCode[s.Code] = s
	}
	return &Registry{
		network: network,
		sensors: append([]SensorDescription(nil), sensors...),
		byCode:  byCode,
	}, nil
}

// MustRegistry is NewRegistry for package-level defaults.
func MustRegistry(network Network, sensors ...SensorDescription) *Registry {
	r, err := NewRegistry(network, sensors...)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRegistry reads a replacement registry from a YAML file containing a
// list of sensor descriptions.
func LoadRegistry(network Network, path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var sensors []SensorDescription
	if err := yaml.Unmarshal(raw, &sensors); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}
	return NewRegistry(network, sensors...)
}

// Network returns the owning network tag.
func (r *Registry) Network() Network { return r.network }

// Sensors returns the registry contents in definition order.
func (r *Registry) Sensors() []SensorDescription {
	return append([]SensorDescription(nil), r.sensors...)
}

// Lookup resolves a provider code to its description.
func (r *Registry) Lookup(code string) (SensorDescription, error) {
	s, ok := r.byCode[code]
	if !ok {
		return SensorDescription{}, &UnknownVariableError{Network: r.network, Code: code}
	}
	return s, nil
}

// Validate checks that every requested sensor is defined in this registry
// with the same canonical name.
func (r *Registry) Validate(sensors []SensorDescription) error {
	for _, want := range sensors {
		got, err := r.Lookup(want.Code)
		if err != nil {
			return err
		}
		if got.Name != want.Name {
			return &UnknownVariableError{Network: r.network, Code: want.Code}
		}
	}
	return nil
}

// CheckCanonicalNames verifies the cross-registry convention that a
// canonical name always describes the same accumulation semantics. It is
// an opt-in check for callers composing independently extended
// registries.
func CheckCanonicalNames(registries ...*Registry) error {
	seen := map[string]SensorDescription{}
	for _, r := range registries {
		for _, s := range r.sensors {
			prev, ok := seen[s.Name]
			if ok && prev.Accumulated != s.Accumulated {
				return fmt.Errorf(
					"canonical name %q is accumulated in one registry and not in another", s.Name)
			}
			seen[s.Name] = s
		}
	}
	return nil
}

// Default registries. Codes and canonical names follow each provider's
// published sensor lists; semantically equal quantities share a name
// across networks.
var (
	CDECVariables = MustRegistry(NetworkCDEC,
		SensorDescription{Code: "3", Name: "SWE", Description: "SNOW, WATER CONTENT"},
		SensorDescription{Code: "18", Name: "SNOWDEPTH", Description: "SNOW DEPTH"},
		SensorDescription{Code: "45", Name: "PRECIPITATION", Description: "PRECIPITATION, INCREMENTAL", Accumulated: true},
		SensorDescription{Code: "2", Name: "ACCUMULATED PRECIPITATION", Description: "PRECIPITATION, ACCUMULATED"},
		SensorDescription{Code: "4", Name: "AIR TEMP", Description: "TEMPERATURE, AIR"},
		SensorDescription{Code: "30", Name: "AVG AIR TEMP", Description: "TEMPERATURE, AIR AVERAGE"},
		SensorDescription{Code: "32", Name: "MIN AIR TEMP", Description: "TEMPERATURE, AIR MINIMUM"},
		SensorDescription{Code: "31", Name: "MAX AIR TEMP", Description: "TEMPERATURE, AIR MAXIMUM"},
		SensorDescription{Code: "12", Name: "RELATIVE HUMIDITY", Description: "RELATIVE HUMIDITY"},
		SensorDescription{Code: "103", Name: "SOLAR RADIATION", Description: "SOLAR RADIATION"},
		SensorDescription{Code: "9", Name: "WIND SPEED", Description: "WIND SPEED"},
		SensorDescription{Code: "10", Name: "WIND DIRECTION", Description: "WIND DIRECTION"},
	)

	SnotelVariables = MustRegistry(NetworkSnotel,
		SensorDescription{Code: "WTEQ", Name: "SWE"},
		SensorDescription{Code: "SNWD", Name: "SNOWDEPTH"},
		SensorDescription{Code: "TOBS", Name: "AIR TEMP"},
		SensorDescription{Code: "TAVG", Name: "AVG AIR TEMP", Description: "AIR TEMPERATURE AVERAGE"},
		SensorDescription{Code: "TMIN", Name: "MIN AIR TEMP", Description: "AIR TEMPERATURE MINIMUM"},
		SensorDescription{Code: "TMAX", Name: "MAX AIR TEMP", Description: "AIR TEMPERATURE MAXIMUM"},
		SensorDescription{Code: "PRCPSA", Name: "PRECIPITATION", Description: "PRECIPITATION INCREMENT SNOW-ADJUSTED", Accumulated: true},
		SensorDescription{Code: "PREC", Name: "ACCUMULATED PRECIPITATION", Description: "PRECIPITATION ACCUMULATION"},
		SensorDescription{Code: "RHUMV", Name: "RELATIVE HUMIDITY"},
		SensorDescription{Code: "SRVO", Name: "STREAM VOLUME OBS"},
	)

	USGSVariables = MustRegistry(NetworkUSGS,
		SensorDescription{Code: "00060", Name: "DISCHARGE", Description: "DISCHARGE (CFS)"},
		SensorDescription{Code: "74082", Name: "STREAMFLOW", Description: "STREAMFLOW, DAILY VOLUME (AC-FT)"},
		SensorDescription{Code: "72189", Name: "SNOWDEPTH", Description: "Snow depth, meters"},
		SensorDescription{Code: "72341", Name: "SWE", Description: "Water content of snow, millimeters"},
		SensorDescription{Code: "72179", Name: "SOLAR RADIATION", Description: "Shortwave solar radiation, watts per square meter"},
		SensorDescription{Code: "72405", Name: "SURFACE TEMPERATURE", Description: "Surface temperature, non-contact, degrees Celsius"},
	)

	MesowestVariables = MustRegistry(NetworkMesowest,
		SensorDescription{Code: "air_temp", Name: "AIR TEMP"},
		SensorDescription{Code: "dew_point_temperature", Name: "DEW POINT TEMPERATURE"},
		SensorDescription{Code: "relative_humidity", Name: "RELATIVE HUMIDITY"},
		SensorDescription{Code: "wind_speed", Name: "WIND SPEED"},
		SensorDescription{Code: "wind_direction", Name: "WIND DIRECTION"},
		SensorDescription{Code: "pressure", Name: "PRESSURE"},
		SensorDescription{Code: "snow_depth", Name: "SNOWDEPTH"},
		SensorDescription{Code: "snow_water_equiv", Name: "SWE"},
		SensorDescription{Code: "solar_radiation", Name: "SOLAR RADIATION"},
		SensorDescription{Code: "stream_flow", Name: "STREAMFLOW"},
	)

	NWSForecastVariables = MustRegistry(NetworkNWSForecast,
		SensorDescription{Code: "temperature", Name: "AIR TEMP"},
		SensorDescription{Code: "relativeHumidity", Name: "RELATIVE HUMIDITY"},
		SensorDescription{Code: "snowfallAmount", Name: "SNOWFALL", Accumulated: true},
		SensorDescription{Code: "quantitativePrecipitation", Name: "PRECIPITATION", Accumulated: true},
		SensorDescription{Code: "windSpeed", Name: "WIND SPEED"},
	)

	CSASVariables = MustRegistry(NetworkCSAS,
		SensorDescription{Code: "Sno_Height_M", Name: "SNOWDEPTH", Description: "Snow surface height, meters"},
		SensorDescription{Code: "UpTherm_C", Name: "AIR TEMP", Description: "Uplooking thermistor air temperature"},
		SensorDescription{Code: "Up_RH", Name: "RELATIVE HUMIDITY"},
		SensorDescription{Code: "Sol_Rad_W", Name: "SOLAR RADIATION", Description: "Broadband solar radiation"},
		SensorDescription{Code: "Discharge_CFS", Name: "DISCHARGE", Description: "Stream discharge, CFS"},
	)
)
