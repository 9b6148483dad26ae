package point

import "fmt"

// Join outer-joins per-variable tables for one station into a single
// wide table on the (timestamp, station id) key. A timestamp present in
// any input appears in the result; variables without a value at that
// timestamp stay absent. Nil inputs are skipped so callers can pass
// results straight through from fetches that produced no table.
func Join(tables ...*Table) (*Table, error) {
	var out *Table
	for _, t := range tables {
		if t == nil {
			continue
		}
		if out == nil {
			out = NewTable(t.Network())
		}
		if t.Network() != out.Network() {
			return nil, fmt.Errorf("cannot join tables from %s and %s; use Append for cross-network concatenation",
				out.Network(), t.Network())
		}
		out.Merge(t)
	}
	if out == nil {
		return nil, ErrNoData
	}
	return out, nil
}

// Append concatenates tables from different networks. Canonical column
// names make semantically equal variables share a column; rows keep
// their own (timestamp, station) identity. The result carries no single
// network tag.
func Append(tables ...*Table) (*Table, error) {
	var out *Table
	for _, t := range tables {
		if t == nil {
			continue
		}
		if out == nil {
			out = NewTable("")
		}
		out.Merge(t)
	}
	if out == nil {
		return nil, ErrNoData
	}
	return out, nil
}
