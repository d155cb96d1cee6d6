package ingest

// Gate decides whether a processed payload earned its processed flag.
// A payload counts as done only when the insert ratio clears the
// threshold; anything below leaves it unprocessed for a later sweep.
type Gate struct {
	Threshold float64
}

// DefaultThreshold is the minimum insert ratio to mark a payload processed.
const DefaultThreshold = 0.95

func NewGate(threshold float64) Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// Ratio returns inserted over total, guarding the zero-record case.
func (g Gate) Ratio(inserted int64, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(inserted) / float64(total)
}

// Allow reports whether the payload may be marked processed. An empty
// payload has nothing left to do and always passes.
func (g Gate) Allow(inserted int64, total int) bool {
	if total == 0 {
		return true
	}
	return g.Ratio(inserted, total) >= g.Threshold
}
