package session

import (
	"math"
	"time"

	"github.com/devlens/devlens/pkg/types"
)

// Bin is one session-duration histogram bucket, in minutes, [Min, Max).
type Bin struct {
	Label string
	Min   float64
	Max   float64
}

// Bins are the fixed histogram buckets. The last one is unbounded.
var Bins = []Bin{
	{"0-5m", 0, 5},
	{"5-10m", 5, 10},
	{"10-15m", 10, 15},
	{"15-30m", 15, 30},
	{"30-60m", 30, 60},
	{"60m+", 60, math.Inf(1)},
}

// Metrics summarizes a set of sessions.
type Metrics struct {
	TotalSessions       int
	AvgSessionDuration  float64 // minutes
	AvgEventsPerSession float64
	Histogram           []types.HistogramBin
}

// Summarize computes session metrics. Averages are rounded to 2 decimals.
// The histogram always carries every bin, even with no sessions.
func Summarize(sessions []*Session) Metrics {
	hist := make([]types.HistogramBin, len(Bins))
	for i, b := range Bins {
		hist[i] = types.HistogramBin{Range: b.Label}
	}
	m := Metrics{TotalSessions: len(sessions), Histogram: hist}
	if len(sessions) == 0 {
		return m
	}

	var totalMinutes float64
	var totalEvents int
	for _, s := range sessions {
		minutes := float64(s.Duration()) / float64(time.Minute)
		totalMinutes += minutes
		totalEvents += len(s.Events)
		hist[BinFor(minutes)].Count++
	}

	n := float64(len(sessions))
	m.AvgSessionDuration = Round(totalMinutes/n, 2)
	m.AvgEventsPerSession = Round(float64(totalEvents)/n, 2)
	return m
}

// BinFor returns the index of the bin holding a duration in minutes.
func BinFor(minutes float64) int {
	for i, b := range Bins {
		if minutes >= b.Min && minutes < b.Max {
			return i
		}
	}
	return 0
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
