package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"haplotrack/internal/model"
)

const (
	runIndexFile      = "run_index.json"
	configFile        = "config.json"
	summariesFile     = "generation_summaries.json"
	summariesCSVFile  = "generation_summaries.csv"
	finalPopulationTx = "final_population.txt"
)

type RunConfig struct {
	RunID               string   `json:"run_id"`
	Seed                int64    `json:"seed"`
	Layout              string   `json:"layout"`
	ChromosomePairCount int      `json:"chromosome_pair_count"`
	ChromosomeLengths   []uint32 `json:"chromosome_lengths"`
	Subpopulations      []int    `json:"subpopulations"`
	PopulationSize      int      `json:"population_size"`
	Generations         int      `json:"generations"`
	Workers             int      `json:"workers"`
	Recombination       string   `json:"recombination"`
	Rate                float64  `json:"rate,omitempty"`
	GeneticMaps         []string `json:"genetic_maps,omitempty"`
}

type RunArtifacts struct {
	Config    RunConfig                 `json:"config"`
	Summaries []model.GenerationSummary `json:"summaries"`
	// FinalPopulation is the last generation in organism text form; empty
	// skips the file.
	FinalPopulation []byte `json:"-"`
}

type RunIndexEntry struct {
	RunID                string  `json:"run_id"`
	PopulationSize       int     `json:"population_size"`
	Generations          int     `json:"generations"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	Recombination        string  `json:"recombination"`
	FinalMeanIntervals   float64 `json:"final_mean_intervals"`
	FinalDistinctSources int     `json:"final_distinct_sources"`
	CreatedAtUTC         string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summariesFile), artifacts.Summaries); err != nil {
		return "", err
	}
	if err := WriteSummariesCSV(filepath.Join(runDir, summariesCSVFile), artifacts.Summaries); err != nil {
		return "", err
	}
	if len(artifacts.FinalPopulation) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, finalPopulationTx), artifacts.FinalPopulation, 0o644); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's artifacts to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, summariesFile, summariesCSVFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	popPath := filepath.Join(src, finalPopulationTx)
	if _, err := os.Stat(popPath); err == nil {
		if err := copyFile(popPath, filepath.Join(dst, finalPopulationTx)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

// ReadGenerationSummaries reads the JSON summaries of a run, or its CSV
// summaries when only those are present.
func ReadGenerationSummaries(baseDir, runID string) ([]model.GenerationSummary, bool, error) {
	runDir := filepath.Join(baseDir, runID)
	data, err := os.ReadFile(filepath.Join(runDir, summariesFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, false, err
		}
		summaries, err := ReadSummariesCSV(filepath.Join(runDir, summariesCSVFile))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return summaries, true, nil
	}

	var summaries []model.GenerationSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

var summaryCSVHeader = []string{"generation", "size", "total_intervals", "mean_intervals", "max_intervals", "distinct_sources", "ancestry_proportions"}

// WriteSummariesCSV writes one row per generation; ancestry proportions are
// joined with ';'.
func WriteSummariesCSV(path string, summaries []model.GenerationSummary) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(summaryCSVHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		props := make([]string, len(s.AncestryProportions))
		for i, p := range s.AncestryProportions {
			props[i] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		if err := writer.Write([]string{
			strconv.Itoa(s.Generation),
			strconv.Itoa(s.Size),
			strconv.Itoa(s.TotalIntervals),
			strconv.FormatFloat(s.MeanIntervals, 'f', -1, 64),
			strconv.Itoa(s.MaxIntervals),
			strconv.Itoa(s.DistinctSources),
			strings.Join(props, ";"),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadSummariesCSV(path string) ([]model.GenerationSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationSummary{}, nil
		}
		return nil, err
	}
	if len(header) != len(summaryCSVHeader) {
		return nil, fmt.Errorf("generation summary header must have %d columns", len(summaryCSVHeader))
	}

	var summaries []model.GenerationSummary
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s, err := parseSummaryRow(record)
		if err != nil {
			return nil, fmt.Errorf("generation summary row %d: %w", len(summaries)+1, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func parseSummaryRow(record []string) (model.GenerationSummary, error) {
	var (
		s   model.GenerationSummary
		err error
	)
	ints := []*int{&s.Generation, &s.Size, &s.TotalIntervals}
	for i, dst := range ints {
		if *dst, err = strconv.Atoi(record[i]); err != nil {
			return s, err
		}
	}
	if s.MeanIntervals, err = strconv.ParseFloat(record[3], 64); err != nil {
		return s, err
	}
	if s.MaxIntervals, err = strconv.Atoi(record[4]); err != nil {
		return s, err
	}
	if s.DistinctSources, err = strconv.Atoi(record[5]); err != nil {
		return s, err
	}
	s.AncestryProportions = []float64{}
	if record[6] != "" {
		for _, field := range strings.Split(record[6], ";") {
			p, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return s, err
			}
			s.AncestryProportions = append(s.AncestryProportions, p)
		}
	}
	return s, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
