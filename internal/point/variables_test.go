package point

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	sd, err := CDECVariables.Lookup("3")
	require.NoError(t, err)
	assert.Equal(t, "SWE", sd.Name)

	_, err = CDECVariables.Lookup("nope")
	var unknown *UnknownVariableError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, NetworkCDEC, unknown.Network)
	assert.Equal(t, "nope", unknown.Code)
}

func TestRegistryRejectsDuplicateCodes(t *testing.T) {
	_, err := NewRegistry(NetworkCDEC,
		SensorDescription{Code: "3", Name: "SWE"},
		SensorDescription{Code: "3", Name: "SNOWDEPTH"},
	)
	require.Error(t, err)
}

func TestRegistryRejectsIncompleteSensor(t *testing.T) {
	_, err := NewRegistry(NetworkCDEC, SensorDescription{Code: "3"})
	require.Error(t, err)
}

// Semantically equal variables must share the byte-identical canonical
// name across every default registry.
func TestCanonicalNamesShared(t *testing.T) {
	cdec, err := CDECVariables.Lookup("3")
	require.NoError(t, err)
	snotel, err := SnotelVariables.Lookup("WTEQ")
	require.NoError(t, err)
	mesowest, err := MesowestVariables.Lookup("snow_water_equiv")
	require.NoError(t, err)

	assert.Equal(t, cdec.Name, snotel.Name)
	assert.Equal(t, cdec.Name, mesowest.Name)

	require.NoError(t, CheckCanonicalNames(
		CDECVariables, SnotelVariables, USGSVariables,
		MesowestVariables, NWSForecastVariables, CSASVariables,
	))
}

func TestCheckCanonicalNamesConflict(t *testing.T) {
	a := MustRegistry(NetworkCDEC, SensorDescription{Code: "45", Name: "PRECIPITATION", Accumulated: true})
	b := MustRegistry(NetworkUSGS, SensorDescription{Code: "00045", Name: "PRECIPITATION"})
	require.Error(t, CheckCanonicalNames(a, b))
}

func TestRegistryValidate(t *testing.T) {
	err := SnotelVariables.Validate([]SensorDescription{
		{Code: "WTEQ", Name: "SWE"},
		{Code: "SNWD", Name: "SNOWDEPTH"},
	})
	require.NoError(t, err)

	// Right code, wrong canonical name.
	err = SnotelVariables.Validate([]SensorDescription{{Code: "WTEQ", Name: "SNOWDEPTH"}})
	require.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.yaml")
	content := `
- code: "3"
  name: SWE
  description: snow water content
- code: "18"
  name: SNOWDEPTH
  accumulated: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadRegistry(NetworkCDEC, path)
	require.NoError(t, err)
	assert.Len(t, reg.Sensors(), 2)

	sd, err := reg.Lookup("18")
	require.NoError(t, err)
	assert.Equal(t, "SNOWDEPTH", sd.Name)

	// Replacement registry really is a replacement.
	_, err = reg.Lookup("45")
	require.Error(t, err)
}
