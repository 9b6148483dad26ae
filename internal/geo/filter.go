package geo

// Locatable is anything with a 2D geographic position.
type Locatable interface {
	Coordinates() (lon, lat float64)
}

// FilterOptions controls discovery filtering. Buffer expands the region
// by an angular margin in degrees (the region CRS) before testing.
// Setting Within to false skips the precise polygon test and keeps
// everything inside the region's bounding box, which is cheaper when
// the region already is a tight box.
type FilterOptions struct {
	Buffer float64
	Within bool
}

// DefaultFilterOptions is exact containment with no buffer.
var DefaultFilterOptions = FilterOptions{Within: true}

// Filter returns the subset of items intersecting the (optionally
// buffered) region, preserving input order. Increasing the buffer can
// only grow the result set.
func Filter[T Locatable](region *Region, items []T, opts FilterOptions) []T {
	if region == nil {
		return nil
	}
	var out []T
	if !opts.Within {
		bounds := region.Bounds().Expand(opts.Buffer)
		for _, it := range items {
			lon, lat := it.Coordinates()
			if bounds.Contains(lon, lat) {
				out = append(out, it)
			}
		}
		return out
	}
	for _, it := range items {
		lon, lat := it.Coordinates()
		if region.ContainsBuffered(lon, lat, opts.Buffer) {
			out = append(out, it)
		}
	}
	return out
}
