package place

import (
	"slices"
	"time"
)

// minCredible is the earliest instant accepted from any source. Earlier values
// are almost always zeroed or defaulted clocks.
var minCredible = time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC)

// credible reports whether t can be taken as a real creation instant.
func credible(t time.Time) bool {
	return !t.Before(minCredible)
}

// PickEarliest selects the best-estimate creation instant from candidates.
//
// Candidates are sorted ascending and deduplicated by instant. Walking from the
// earliest, a midnight value is passed over in favour of a non-midnight value
// on the same calendar day, since devices stamp 00:00:00 when the time of day
// is unknown. A midnight value stands when nothing else shares its day.
func PickEarliest(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return a.Value.Compare(b.Value)
	})
	sorted = slices.CompactFunc(sorted, func(a, b Candidate) bool {
		return a.Value.Equal(b.Value)
	})

	for i, c := range sorted {
		if i == len(sorted)-1 || !isMidnight(c.Value) {
			return c, true
		}
		next := sorted[i+1]
		if !sameDay(c.Value, next.Value) {
			return c, true
		}
		if !isMidnight(next.Value) {
			return next, true
		}
	}
	return sorted[len(sorted)-1], true
}

func isMidnight(t time.Time) bool {
	t = t.UTC()
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
