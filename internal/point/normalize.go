package point

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// noDataSentinel is the value several providers emit for a missing
// record instead of omitting it.
const noDataSentinel = -9999.0

// outOfOrderTolerance allows the minor timestamp jitter some providers
// produce. Anything further out of order is a malformed payload.
const outOfOrderTolerance = time.Hour

// StandardZone returns the fixed standard-time (non-DST) offset of loc.
// Civil timestamps are resolved against this zone so that readings in a
// repeated fall-back interval map to one deterministic UTC instant and
// readings in a spring-forward gap never produce impossible datetimes.
func StandardZone(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	year := time.Now().Year()
	_, jan := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, jul := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()
	offset := jan
	if jul < jan {
		offset = jul
	}
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("%s-std", loc.String()), offset)
}

// Normalize converts one raw response into the canonical table shape:
// rows keyed (UTC timestamp, station id) with a single canonical-name
// column tagged with the source units. Sentinel values become explicit
// absent markers; no unit conversion happens here.
func Normalize(raw *RawResponse) (*Table, error) {
	if raw == nil || len(raw.Points) == 0 {
		return nil, ErrNoData
	}
	if raw.Sensor.Name == "" {
		return nil, &MalformedResponseError{
			Network:   raw.Network,
			StationID: raw.StationID,
			Reason:    "response carries no sensor description",
		}
	}

	layout := raw.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}
	zone := StandardZone(raw.Local)

	type entry struct {
		ts    time.Time
		value Value
	}
	entries := make([]entry, 0, len(raw.Points))
	var prev time.Time
	for i, p := range raw.Points {
		ts, err := time.ParseInLocation(layout, p.Timestamp, zone)
		if err != nil {
			return nil, &MalformedResponseError{
				Network:   raw.Network,
				StationID: raw.StationID,
				Sensor:    raw.Sensor.Name,
				Reason:    fmt.Sprintf("unparsable timestamp %q at row %d", p.Timestamp, i),
			}
		}
		ts = ts.UTC()
		if !prev.IsZero() && ts.Before(prev.Add(-outOfOrderTolerance)) {
			return nil, &MalformedResponseError{
				Network:   raw.Network,
				StationID: raw.StationID,
				Sensor:    raw.Sensor.Name,
				Reason: fmt.Sprintf("timestamps out of order beyond tolerance at row %d (%s after %s)",
					i, ts.Format(time.RFC3339), prev.Format(time.RFC3339)),
			}
		}
		if ts.After(prev) {
			prev = ts
		}
		entries = append(entries, entry{ts: ts, value: normalizeValue(p.Value)})
	}

	// Stable sort keeps source order for equal timestamps, which is
	// what makes the joiner's first-occurrence-wins rule deterministic.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

	table := NewTable(raw.Network)
	table.AddColumn(raw.Sensor.Name, raw.Units)
	for _, e := range entries {
		table.Set(e.ts, raw.StationID, raw.Sensor.Name, e.value)
	}
	return table, nil
}

func normalizeValue(v *float64) Value {
	if v == nil {
		return Absent
	}
	if *v == noDataSentinel || math.IsNaN(*v) {
		return Absent
	}
	return SomeValue(*v)
}
