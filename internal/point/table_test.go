package point

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2023, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestTableSetFirstWins(t *testing.T) {
	table := NewTable(NetworkCDEC)
	table.AddColumn("SWE", "INCHES")

	table.Set(day(1), "TNY", "SWE", SomeValue(10))
	table.Set(day(1), "TNY", "SWE", SomeValue(99))

	rows := table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, SomeValue(10), rows[0].Value("SWE"))
}

func TestTableCompositeKey(t *testing.T) {
	table := NewTable(NetworkCDEC)
	table.AddColumn("SWE", "INCHES")

	// Same timestamp at two stations and two timestamps at one station
	// are four distinct rows... except the duplicate pair.
	table.Set(day(1), "TNY", "SWE", SomeValue(1))
	table.Set(day(1), "GIN", "SWE", SomeValue(2))
	table.Set(day(2), "TNY", "SWE", SomeValue(3))
	table.Set(day(1), "TNY", "SWE", SomeValue(4))

	assert.Equal(t, 3, table.Len())
}

func TestTableRowsSorted(t *testing.T) {
	table := NewTable(NetworkCDEC)
	table.AddColumn("SWE", "INCHES")
	table.Set(day(3), "TNY", "SWE", SomeValue(3))
	table.Set(day(1), "ZZZ", "SWE", SomeValue(1))
	table.Set(day(1), "AAA", "SWE", SomeValue(2))

	rows := table.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "AAA", rows[0].StationID)
	assert.Equal(t, "ZZZ", rows[1].StationID)
	assert.Equal(t, day(3), rows[2].Time)
}

func TestTableUnitsFirstTagWins(t *testing.T) {
	table := NewTable(NetworkCDEC)
	table.AddColumn("SWE", "INCHES")
	table.AddColumn("SWE", "MM")
	assert.Equal(t, "INCHES", table.Units("SWE"))
	assert.Equal(t, []string{"SWE"}, table.Columns())
}

// Joining {t1,t2} with {t2,t3} yields exactly {t1,t2,t3} with absent
// markers where a variable has no reading.
func TestMergeOuterJoin(t *testing.T) {
	swe := NewTable(NetworkCDEC)
	swe.AddColumn("SWE", "INCHES")
	swe.Set(day(1), "TNY", "SWE", SomeValue(10))
	swe.Set(day(2), "TNY", "SWE", SomeValue(11))

	depth := NewTable(NetworkCDEC)
	depth.AddColumn("SNOWDEPTH", "INCHES")
	depth.Set(day(2), "TNY", "SNOWDEPTH", SomeValue(40))
	depth.Set(day(3), "TNY", "SNOWDEPTH", SomeValue(42))

	swe.Merge(depth)
	rows := swe.Rows()
	require.Len(t, rows, 3)

	assert.Equal(t, SomeValue(10), rows[0].Value("SWE"))
	assert.Equal(t, Absent, rows[0].Value("SNOWDEPTH"))
	assert.Equal(t, SomeValue(11), rows[1].Value("SWE"))
	assert.Equal(t, SomeValue(40), rows[1].Value("SNOWDEPTH"))
	assert.Equal(t, Absent, rows[2].Value("SWE"))
	assert.Equal(t, SomeValue(42), rows[2].Value("SNOWDEPTH"))
}

func TestMergeKeepsAllAbsentRows(t *testing.T) {
	left := NewTable(NetworkCDEC)
	left.AddColumn("SWE", "INCHES")
	left.Set(day(1), "TNY", "SWE", SomeValue(10))

	right := NewTable(NetworkCDEC)
	right.AddColumn("SNOWDEPTH", "INCHES")
	right.Touch(day(2), "TNY")

	left.Merge(right)
	assert.Equal(t, 2, left.Len())
}

func TestValueJSONAbsentIsNull(t *testing.T) {
	data, err := json.Marshal(map[string]Value{
		"SWE":       SomeValue(10.5),
		"SNOWDEPTH": Absent,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"SWE":10.5,"SNOWDEPTH":null}`, string(data))

	var back map[string]Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Absent, back["SNOWDEPTH"])
	assert.Equal(t, SomeValue(10.5), back["SWE"])
}

func TestRecordsFillEveryColumn(t *testing.T) {
	table := NewTable(NetworkCDEC)
	table.AddColumn("SWE", "INCHES")
	table.AddColumn("SNOWDEPTH", "INCHES")
	table.Set(day(1), "TNY", "SWE", SomeValue(10))

	recs := table.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "TNY", recs[0].StationID)
	assert.Equal(t, SomeValue(10), recs[0].Values["SWE"])
	v, ok := recs[0].Values["SNOWDEPTH"]
	assert.True(t, ok)
	assert.Equal(t, Absent, v)
	assert.Equal(t, "INCHES", recs[0].Units["SWE"])
}
