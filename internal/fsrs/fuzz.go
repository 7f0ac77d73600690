package fsrs

import (
	"math"
	"math/rand"
)

// fuzzDelta is the half-width of the fuzz window for an interval in days.
func fuzzDelta(interval float64, ranges []FuzzRange) float64 {
	delta := 1.0
	for _, r := range ranges {
		delta += r.Factor * math.Max(math.Min(interval, r.End)-r.Start, 0)
	}
	return delta
}

// applyFuzz picks a day uniformly inside the fuzz window around interval.
// Intervals shorter than 2.5 days are returned unchanged.
func applyFuzz(interval, maxInterval int, ranges []FuzzRange, rng *rand.Rand) int {
	if float64(interval) < 2.5 {
		return interval
	}
	ivl := float64(interval)
	delta := fuzzDelta(ivl, ranges)

	hi := min(int(math.Round(ivl+delta)), maxInterval)
	lo := min(max(2, int(math.Round(ivl-delta))), hi)
	return lo + rng.Intn(hi-lo+1)
}
