package timecalc

import (
	"fmt"
	"math"
	"time"
)

// Hours returns the wall-clock span between start and end in fractional hours.
func Hours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// FormatHours formats fractional hours as "1h 40m", "45m" or "30s".
func FormatHours(hours float64) string {
	seconds := int64(math.Round(hours * 3600))
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// SameDay reports whether two times fall on the same calendar day in the
// location of a.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
