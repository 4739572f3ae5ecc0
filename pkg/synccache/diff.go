package synccache

// Observation is one chart as reported by the current folder-tree listing.
type Observation struct {
	ChartID        string
	Title          string
	LastModifiedAt string
}

// Result classifies the drift between the remote listing and the cache
// snapshot. The four sets are disjoint; Unchanged charts must not trigger
// any downstream fetch.
type Result struct {
	New       []Observation
	Updated   []Observation
	Deleted   []string
	Unchanged []Observation
}

// Diff compares the currently observed chart set against the cached
// fingerprints. A chart counts as updated only when its freshly observed
// lastModifiedAt string is strictly greater than the cached one; both are
// ISO-8601, so plain string comparison orders them correctly.
func Diff(observed []Observation, cached map[string]*Entry) Result {
	result := Result{}
	seen := make(map[string]struct{}, len(observed))

	for _, obs := range observed {
		seen[obs.ChartID] = struct{}{}

		entry, ok := cached[obs.ChartID]
		switch {
		case !ok:
			result.New = append(result.New, obs)
		case obs.LastModifiedAt > entry.LastModifiedAt:
			result.Updated = append(result.Updated, obs)
		default:
			result.Unchanged = append(result.Unchanged, obs)
		}
	}

	for chartID := range cached {
		if _, ok := seen[chartID]; !ok {
			result.Deleted = append(result.Deleted, chartID)
		}
	}

	return result
}
