package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"haplotrack/internal/model"
)

const replicatesDir = "replicates"

// ReplicateSet groups runs of one configuration under different seeds.
type ReplicateSet struct {
	ID             string           `json:"id"`
	Notes          string           `json:"notes,omitempty"`
	StartedAtUTC   string           `json:"started_at_utc,omitempty"`
	CompletedAtUTC string           `json:"completed_at_utc,omitempty"`
	Seeds          []int64          `json:"seeds"`
	RunIDs         []string         `json:"run_ids,omitempty"`
	Aggregate      ReplicateSummary `json:"aggregate"`
	// MeanIntervals follows the mean interval count across runs per generation.
	MeanIntervals []TrajectoryPoint `json:"mean_intervals,omitempty"`
}

// ReplicateSummary describes the spread of final-generation summaries.
type ReplicateSummary struct {
	Runs                   int       `json:"runs"`
	MeanIntervalsAvg       float64   `json:"mean_intervals_avg"`
	MeanIntervalsStd       float64   `json:"mean_intervals_std"`
	MaxIntervals           int       `json:"max_intervals"`
	DistinctSourcesAvg     float64   `json:"distinct_sources_avg"`
	AncestryProportionsAvg []float64 `json:"ancestry_proportions_avg"`
}

// AggregateReplicates summarizes the final summary of every run.
func AggregateReplicates(finals []model.GenerationSummary) ReplicateSummary {
	out := ReplicateSummary{Runs: len(finals)}
	if len(finals) == 0 {
		return out
	}
	n := float64(len(finals))
	for _, s := range finals {
		out.MeanIntervalsAvg += s.MeanIntervals / n
		out.DistinctSourcesAvg += float64(s.DistinctSources) / n
		out.MaxIntervals = max(out.MaxIntervals, s.MaxIntervals)
		if len(s.AncestryProportions) > len(out.AncestryProportionsAvg) {
			grown := make([]float64, len(s.AncestryProportions))
			copy(grown, out.AncestryProportionsAvg)
			out.AncestryProportionsAvg = grown
		}
		for i, p := range s.AncestryProportions {
			out.AncestryProportionsAvg[i] += p / n
		}
	}
	var variance float64
	for _, s := range finals {
		d := s.MeanIntervals - out.MeanIntervalsAvg
		variance += d * d / n
	}
	out.MeanIntervalsStd = math.Sqrt(variance)
	return out
}

func WriteReplicateSet(baseDir string, set ReplicateSet) error {
	if set.ID == "" {
		return fmt.Errorf("replicate set id is required")
	}
	path := replicateSetPath(baseDir, set.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, set)
}

func ReadReplicateSet(baseDir, id string) (ReplicateSet, bool, error) {
	if id == "" {
		return ReplicateSet{}, false, fmt.Errorf("replicate set id is required")
	}
	data, err := os.ReadFile(replicateSetPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return ReplicateSet{}, false, nil
		}
		return ReplicateSet{}, false, err
	}
	var set ReplicateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return ReplicateSet{}, false, err
	}
	return set, true, nil
}

// ListReplicateSets returns sets newest first; sets without a start time
// sort last.
func ListReplicateSets(baseDir string) ([]ReplicateSet, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, replicatesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []ReplicateSet{}, nil
		}
		return nil, err
	}

	sets := make([]ReplicateSet, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		set, ok, err := ReadReplicateSet(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool {
		switch {
		case sets[i].StartedAtUTC == sets[j].StartedAtUTC:
			return sets[i].ID < sets[j].ID
		case sets[i].StartedAtUTC == "":
			return false
		case sets[j].StartedAtUTC == "":
			return true
		default:
			return sets[i].StartedAtUTC > sets[j].StartedAtUTC
		}
	})
	return sets, nil
}

func replicateSetPath(baseDir, id string) string {
	return filepath.Join(baseDir, replicatesDir, id, "replicates.json")
}
