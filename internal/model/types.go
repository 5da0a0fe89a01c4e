package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one simulation run.
type RunRecord struct {
	VersionedRecord
	ID                   string    `json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	Seed                 int64     `json:"seed"`
	Layout               string    `json:"layout"`
	ChromosomePairCount  int       `json:"chromosome_pair_count"`
	ChromosomeLengths    []uint32  `json:"chromosome_lengths"`
	Subpopulations       []int     `json:"subpopulations"`
	PopulationSize       int       `json:"population_size"`
	Generations          int       `json:"generations"`
	CompletedGenerations int       `json:"completed_generations"`
	Recombination        string    `json:"recombination"`
	// Config is the YAML run configuration, kept so the run can be resumed.
	Config string `json:"config,omitempty"`
}

// PopulationSnapshot holds one generation in the binary population format.
type PopulationSnapshot struct {
	VersionedRecord
	ID                  string `json:"id"`
	RunID               string `json:"run_id"`
	Generation          int    `json:"generation"`
	Layout              string `json:"layout"`
	Size                int    `json:"size"`
	ChromosomePairCount int    `json:"chromosome_pair_count"`
	Payload             []byte `json:"payload"`
}

// GenerationSummary is the ancestry bookkeeping of one generation.
type GenerationSummary struct {
	Generation      int     `json:"generation"`
	Size            int     `json:"size"`
	TotalIntervals  int     `json:"total_intervals"`
	MeanIntervals   float64 `json:"mean_intervals"`
	MaxIntervals    int     `json:"max_intervals"`
	DistinctSources int     `json:"distinct_sources"`
	// AncestryProportions[s] is the share of genome length, over every
	// chromosome of the generation, inherited from founder subpopulation s.
	AncestryProportions []float64 `json:"ancestry_proportions"`
}
