package stats

import (
	"math"

	"haplotrack/internal/model"
)

// TrajectoryPoint is one generation of a series averaged across runs.
type TrajectoryPoint struct {
	Generation int     `json:"generation"`
	Runs       int     `json:"runs"`
	Avg        float64 `json:"avg"`
	Std        float64 `json:"std"`
	Max        float64 `json:"max"`
}

// MeanIntervalsSeries extracts the mean interval count per generation.
func MeanIntervalsSeries(summaries []model.GenerationSummary) []float64 {
	out := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.MeanIntervals)
	}
	return out
}

// BuildTrajectory averages series position by position starting at
// startGeneration. Shorter series stop contributing once exhausted, so a
// point's Runs may be lower than len(lists).
func BuildTrajectory(lists [][]float64, startGeneration int) []TrajectoryPoint {
	if startGeneration < 0 {
		startGeneration = 0
	}
	longest := 0
	for _, list := range lists {
		longest = max(longest, len(list))
	}
	points := make([]TrajectoryPoint, 0, longest)
	for i := 0; i < longest; i++ {
		values := make([]float64, 0, len(lists))
		for _, list := range lists {
			if i < len(list) {
				values = append(values, list[i])
			}
		}
		avg, std := avgStd(values)
		points = append(points, TrajectoryPoint{
			Generation: startGeneration + i,
			Runs:       len(values),
			Avg:        avg,
			Std:        std,
			Max:        maxFloat(values),
		})
	}
	return points
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / n
	var variance float64
	for _, v := range values {
		d := v - avg
		variance += d * d / n
	}
	return avg, math.Sqrt(variance)
}

func maxFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		out = max(out, v)
	}
	return out
}
