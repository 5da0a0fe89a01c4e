package stats

import (
	"testing"

	"haplotrack/internal/model"
)

func TestBuildTrajectory(t *testing.T) {
	lists := [][]float64{
		{1, 2, 3},
		{3, 4},
		{2},
	}
	points := BuildTrajectory(lists, 0)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d (%+v)", len(points), points)
	}
	if points[0].Generation != 0 || points[2].Generation != 2 {
		t.Fatalf("unexpected generations: %+v", points)
	}
	if points[0].Runs != 3 || points[0].Avg != 2 || points[0].Max != 3 {
		t.Fatalf("unexpected first point: %+v", points[0])
	}
	if points[1].Runs != 2 || points[1].Avg != 3 || points[1].Std != 1 {
		t.Fatalf("unexpected second point: %+v", points[1])
	}
	if points[2].Runs != 1 || points[2].Avg != 3 || points[2].Std != 0 {
		t.Fatalf("unexpected last point: %+v", points[2])
	}
}

func TestBuildTrajectoryOffsetsAndEmpty(t *testing.T) {
	if points := BuildTrajectory(nil, 0); len(points) != 0 {
		t.Fatalf("expected no points, got %+v", points)
	}
	points := BuildTrajectory([][]float64{{}, {5}}, 4)
	if len(points) != 1 || points[0].Generation != 4 || points[0].Runs != 1 || points[0].Avg != 5 {
		t.Fatalf("unexpected points: %+v", points)
	}
	if points := BuildTrajectory([][]float64{{1}}, -3); points[0].Generation != 0 {
		t.Fatalf("negative start should clamp to 0: %+v", points)
	}
}

func TestMeanIntervalsSeries(t *testing.T) {
	series := MeanIntervalsSeries([]model.GenerationSummary{
		{Generation: 0, MeanIntervals: 1},
		{Generation: 1, MeanIntervals: 1.5},
	})
	if len(series) != 2 || series[0] != 1 || series[1] != 1.5 {
		t.Fatalf("unexpected series: %v", series)
	}
}
