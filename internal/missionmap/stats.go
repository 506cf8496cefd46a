package missionmap

// Stats summarises coverage of the base map's traversable area.
//
// Coverage counts every visited in-bounds cell against the traversable
// cells, so an agent that drives over non-traversable cells can push
// Coverage above 100 and Miss below 0. Coverage+Miss is always 100.
type Stats struct {
	Coverage         float64 `json:"coverage"`
	Miss             float64 `json:"miss"`
	CoveredCells     int     `json:"covered_cells"`
	TraversableCells int     `json:"traversable_cells"`
	PathLength       int     `json:"path_length"`
	OutOfBoundsPoses int     `json:"out_of_bounds_poses"`
}

// coveragePercent returns covered/traversable*100, or 0 with no traversable area.
func coveragePercent(covered, traversable int) float64 {
	if traversable == 0 {
		return 0
	}
	return float64(covered) / float64(traversable) * 100
}

func newStats(covered, traversable int) Stats {
	coverage := coveragePercent(covered, traversable)
	return Stats{
		Coverage:         coverage,
		Miss:             100 - coverage,
		CoveredCells:     covered,
		TraversableCells: traversable,
	}
}

// ComputeStats derives coverage statistics directly from a base map and a
// mask of the same shape. Session keeps running counters instead; this is
// the reference computation.
func ComputeStats(base BaseMap, mask []uint8) Stats {
	covered := 0
	for _, v := range mask {
		if v != 0 {
			covered++
		}
	}
	return newStats(covered, base.TraversableCells())
}
