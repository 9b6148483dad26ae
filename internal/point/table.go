package point

import (
	"encoding/json"
	"sort"
	"time"
)

// Value is one observed measurement. Valid=false is the explicit
// absent-value marker; absent values are carried, never dropped.
type Value struct {
	Float float64
	Valid bool
}

// SomeValue wraps a present measurement.
func SomeValue(f float64) Value { return Value{Float: f, Valid: true} }

// Absent is the explicit missing-value marker.
var Absent = Value{}

// MarshalJSON renders absent values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON accepts null as the absent marker.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = SomeValue(f)
	return nil
}

type rowKey struct {
	unix    int64
	station string
}

// Row is one (UTC timestamp, station) entry of an observation table.
type Row struct {
	Time      time.Time
	StationID string
	values    map[string]Value
}

// Value returns the row's entry for a canonical column, absent when the
// column never received a value at this row.
func (r *Row) Value(column string) Value {
	return r.values[column]
}

// Table is the canonical retrieval result: rows keyed by the composite
// (UTC timestamp, station id), columns named by canonical variable
// names, with source units tagged per column. The composite key is a
// flat index, not a hierarchy; duplicates cannot exist by construction.
type Table struct {
	network Network
	columns []string
	units   map[string]string
	rows    []*Row
	index   map[rowKey]*Row
}

// NewTable creates an empty table for one network.
func NewTable(network Network) *Table {
	return &Table{
		network: network,
		units:   map[string]string{},
		index:   map[rowKey]*Row{},
	}
}

func (t *Table) Network() Network { return t.network }

// Columns returns canonical variable names in first-seen order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Units reports the tagged source units of a column.
func (t *Table) Units(column string) string { return t.units[column] }

// Len is the number of (timestamp, station) rows.
func (t *Table) Len() int { return len(t.rows) }

// AddColumn registers a canonical column with its source units. Adding
// an existing column keeps the first units tag.
func (t *Table) AddColumn(name, units string) {
	if _, ok := t.units[name]; ok {
		return
	}
	t.columns = append(t.columns, name)
	t.units[name] = units
}

// Set records one value. The first value written for a given
// (timestamp, station, column) wins; later duplicates, as produced by
// manual snow-course readings sharing a measurement date, are dropped
// silently.
func (t *Table) Set(ts time.Time, stationID, column string, v Value) {
	ts = ts.UTC()
	key := rowKey{unix: ts.UnixNano(), station: stationID}
	row, ok := t.index[key]
	if !ok {
		row = &Row{Time: ts, StationID: stationID, values: map[string]Value{}}
		t.index[key] = row
		t.rows = append(t.rows, row)
	}
	if _, exists := row.values[column]; exists {
		return
	}
	row.values[column] = v
}

// Merge outer-joins another table into this one on the composite key.
// Every row present in either side survives; values missing on one side
// stay absent. Column units keep their first tag.
func (t *Table) Merge(other *Table) {
	if other == nil {
		return
	}
	for _, col := range other.columns {
		t.AddColumn(col, other.units[col])
	}
	for _, row := range other.sorted() {
		// keep rows that carry only absent values
		t.Touch(row.Time, row.StationID)
		for col, v := range row.values {
			t.Set(row.Time, row.StationID, col, v)
		}
	}
}

// Touch ensures a (timestamp, station) row exists even with no values,
// so all-absent provider rows survive as explicit zero-filled entries.
func (t *Table) Touch(ts time.Time, stationID string) {
	ts = ts.UTC()
	key := rowKey{unix: ts.UnixNano(), station: stationID}
	if _, ok := t.index[key]; ok {
		return
	}
	row := &Row{Time: ts, StationID: stationID, values: map[string]Value{}}
	t.index[key] = row
	t.rows = append(t.rows, row)
}

func (t *Table) sorted() []*Row {
	rows := append([]*Row(nil), t.rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Time.Equal(rows[j].Time) {
			return rows[i].Time.Before(rows[j].Time)
		}
		return rows[i].StationID < rows[j].StationID
	})
	return rows
}

// Rows returns the table rows ordered by (timestamp, station id).
func (t *Table) Rows() []*Row { return t.sorted() }

// Record is the flat external form of one row. Every table column
// appears; absent values render as null.
type Record struct {
	Time      time.Time         `json:"datetime"`
	StationID string            `json:"site"`
	Network   Network           `json:"network"`
	Values    map[string]Value  `json:"values"`
	Units     map[string]string `json:"units"`
}

// Records converts the table to a flat record sequence.
func (t *Table) Records() []Record {
	units := make(map[string]string, len(t.units))
	for k, v := range t.units {
		units[k] = v
	}
	out := make([]Record, 0, len(t.rows))
	for _, row := range t.sorted() {
		values := make(map[string]Value, len(t.columns))
		for _, col := range t.columns {
			values[col] = row.values[col]
		}
		out = append(out, Record{
			Time:      row.Time,
			StationID: row.StationID,
			Network:   t.network,
			Values:    values,
			Units:     units,
		})
	}
	return out
}

// GeoRecord is a table record carrying the station point geometry.
type GeoRecord struct {
	Record
	Geometry Geometry `json:"geometry"`
}

// GeoRecords converts the table to geo-tagged records using the station
// locations provided, keyed by station id.
func (t *Table) GeoRecords(stations map[string]Station) []GeoRecord {
	recs := t.Records()
	out := make([]GeoRecord, 0, len(recs))
	for _, r := range recs {
		st := stations[r.StationID]
		out = append(out, GeoRecord{
			Record: r,
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{st.Lon, st.Lat},
			},
		})
	}
	return out
}
