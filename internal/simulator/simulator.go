// Package simulator drives recombination runs end to end: founders, bred
// generations, summaries, snapshots and run artifacts.
package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haplotrack/internal/config"
	"haplotrack/internal/metrics"
	"haplotrack/internal/model"
	"haplotrack/internal/population"
	"haplotrack/internal/stats"
	"haplotrack/internal/storage"
)

var (
	ErrNotStarted  = errors.New("simulator is not initialized")
	ErrRunNotFound = errors.New("run not found")
)

type Config struct {
	Store storage.Store
	// Logger defaults to a no-op logger.
	Logger *zap.SugaredLogger
	// Metrics may be nil.
	Metrics *metrics.Recorder
	Now     func() time.Time
}

type Simulator struct {
	store   storage.Store
	log     *zap.SugaredLogger
	metrics *metrics.Recorder
	now     func() time.Time

	mu      sync.RWMutex
	started bool
	runs    map[string]context.CancelFunc
}

type RunRequest struct {
	// RunID defaults to a random UUID.
	RunID  string
	Config *config.Config
}

type RunResult struct {
	Run       model.RunRecord
	Summaries []model.GenerationSummary
	Final     population.Population
	// ArtifactsDir is the run directory written under the configured
	// artifacts root, empty when artifacts are disabled.
	ArtifactsDir string
}

type ReplicateRequest struct {
	ID     string
	Notes  string
	Seeds  []int64
	Config *config.Config
}

func New(cfg Config) *Simulator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		store:   cfg.Store,
		log:     log,
		metrics: cfg.Metrics,
		now:     now,
		runs:    make(map[string]context.CancelFunc),
	}
}

func (s *Simulator) Init(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("store is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *Simulator) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Stop cancels every active run. Init starts the simulator again.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.runs {
		cancel()
	}
	s.runs = make(map[string]context.CancelFunc)
	s.started = false
}

// StopRun cancels one active run. The run keeps its last snapshot and can be
// resumed.
func (s *Simulator) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.RLock()
	cancel, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel()
	return nil
}

func (s *Simulator) ActiveRuns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run breeds a new run from its founders.
func (s *Simulator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if req.Config == nil {
		return RunResult{}, fmt.Errorf("run config is required: %w", config.ErrInvalid)
	}
	cfg := req.Config.Clone()
	if err := cfg.Validate(); err != nil {
		return RunResult{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, done, err := s.register(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	defer done()

	if _, exists, err := s.store.GetRun(ctx, runID); err != nil {
		return RunResult{}, err
	} else if exists {
		return RunResult{}, fmt.Errorf("run already exists: %s", runID)
	}

	raw, err := cfg.Marshal()
	if err != nil {
		return RunResult{}, err
	}
	founders, err := population.Founders(cfg.Founders())
	if err != nil {
		return RunResult{}, err
	}
	size := cfg.Population.Size
	if size == 0 {
		size = founders.Size()
	}
	run := model.RunRecord{
		VersionedRecord:     storage.CurrentVersion(),
		ID:                  runID,
		CreatedAt:           s.now().UTC(),
		Seed:                cfg.Run.Seed,
		Layout:              string(founders.Layout()),
		ChromosomePairCount: founders.ChromosomePairCount(),
		ChromosomeLengths:   append([]uint32(nil), cfg.Population.ChromosomeLengths...),
		Subpopulations:      append([]int(nil), cfg.Population.Subpopulations...),
		PopulationSize:      size,
		Generations:         cfg.Run.Generations,
		Recombination:       cfg.Recombination.Kind,
		Config:              string(raw),
	}

	summary, err := stats.Summarize(founders, 0, cfg.Population.ChromosomeLengths, len(cfg.Population.Subpopulations))
	if err != nil {
		return RunResult{}, err
	}
	s.metrics.ObserveSummary(summary)
	summaries := []model.GenerationSummary{summary}
	if err := s.saveSnapshot(ctx, runID, 0, founders); err != nil {
		return RunResult{}, err
	}
	if err := s.checkpoint(ctx, run, summaries); err != nil {
		return RunResult{}, err
	}

	s.log.Infow("run started",
		"run_id", runID,
		"founders", founders.Size(),
		"chromosome_pairs", founders.ChromosomePairCount(),
		"generations", run.Generations,
		"recombination", run.Recombination,
	)
	return s.advance(ctx, cfg, run, founders, summaries)
}

// Resume continues a stored run from its latest snapshot. A positive
// generations replaces the run's target; zero keeps it.
func (s *Simulator) Resume(ctx context.Context, runID string, generations int) (RunResult, error) {
	if generations < 0 {
		return RunResult{}, fmt.Errorf("generations %d is negative: %w", generations, config.ErrInvalid)
	}
	ctx, done, err := s.register(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	defer done()

	run, ok, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cfg, err := config.Parse([]byte(run.Config))
	if err != nil {
		return RunResult{}, fmt.Errorf("run %s config: %w", runID, err)
	}
	if generations > 0 {
		cfg.Run.Generations = generations
		run.Generations = generations
	}

	snap, ok, err := s.store.LatestSnapshot(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	if !ok {
		return RunResult{}, fmt.Errorf("run %s has no snapshot: %w", runID, ErrRunNotFound)
	}
	if snap.Generation > run.Generations {
		return RunResult{}, fmt.Errorf("run %s is already at generation %d, past %d: %w", runID, snap.Generation, run.Generations, config.ErrInvalid)
	}
	current, err := population.ReadBinary(bytes.NewReader(snap.Payload), population.Layout(snap.Layout))
	if err != nil {
		return RunResult{}, fmt.Errorf("run %s snapshot %d: %w", runID, snap.Generation, err)
	}
	stored, _, err := s.store.GetGenerationSummaries(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	summaries := make([]model.GenerationSummary, 0, len(stored))
	for _, summary := range stored {
		if summary.Generation <= snap.Generation {
			summaries = append(summaries, summary)
		}
	}

	raw, err := cfg.Marshal()
	if err != nil {
		return RunResult{}, err
	}
	run.Config = string(raw)
	run.CompletedGenerations = snap.Generation

	s.log.Infow("run resumed", "run_id", runID, "from_generation", snap.Generation, "generations", run.Generations)
	return s.advance(ctx, cfg, run, current, summaries)
}

// Replicate runs one configuration once per seed and aggregates the final
// generations.
func (s *Simulator) Replicate(ctx context.Context, req ReplicateRequest) (stats.ReplicateSet, error) {
	if req.Config == nil {
		return stats.ReplicateSet{}, fmt.Errorf("run config is required: %w", config.ErrInvalid)
	}
	if len(req.Seeds) == 0 {
		return stats.ReplicateSet{}, fmt.Errorf("at least one seed is required: %w", config.ErrInvalid)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	set := stats.ReplicateSet{
		ID:           id,
		Notes:        req.Notes,
		StartedAtUTC: s.now().UTC().Format(time.RFC3339),
		Seeds:        append([]int64(nil), req.Seeds...),
	}

	finals := make([]model.GenerationSummary, 0, len(req.Seeds))
	series := make([][]float64, 0, len(req.Seeds))
	for _, seed := range req.Seeds {
		cfg := req.Config.Clone()
		cfg.Run.Seed = seed
		result, err := s.Run(ctx, RunRequest{Config: cfg})
		if err != nil {
			return stats.ReplicateSet{}, fmt.Errorf("replicate seed %d: %w", seed, err)
		}
		set.RunIDs = append(set.RunIDs, result.Run.ID)
		finals = append(finals, result.Summaries[len(result.Summaries)-1])
		series = append(series, stats.MeanIntervalsSeries(result.Summaries))
	}
	set.Aggregate = stats.AggregateReplicates(finals)
	set.MeanIntervals = stats.BuildTrajectory(series, 0)
	set.CompletedAtUTC = s.now().UTC().Format(time.RFC3339)

	if dir := req.Config.Run.ArtifactsDir; dir != "" {
		if err := stats.WriteReplicateSet(dir, set); err != nil {
			s.metrics.Failure("artifacts")
			return stats.ReplicateSet{}, err
		}
	}
	s.log.Infow("replicates completed",
		"replicate_id", id,
		"runs", set.Aggregate.Runs,
		"mean_intervals_avg", set.Aggregate.MeanIntervalsAvg,
		"mean_intervals_std", set.Aggregate.MeanIntervalsStd,
	)
	return set, nil
}

// Snapshot decodes a stored generation of a run; a negative generation picks
// the latest snapshot.
func (s *Simulator) Snapshot(ctx context.Context, runID string, generation int) (population.Population, model.PopulationSnapshot, error) {
	var (
		snap model.PopulationSnapshot
		ok   bool
		err  error
	)
	if generation < 0 {
		snap, ok, err = s.store.LatestSnapshot(ctx, runID)
	} else {
		snap, ok, err = s.store.GetSnapshot(ctx, runID, generation)
	}
	if err != nil {
		return nil, model.PopulationSnapshot{}, err
	}
	if !ok {
		return nil, model.PopulationSnapshot{}, fmt.Errorf("%w: no snapshot for run %s generation %d", ErrRunNotFound, runID, generation)
	}
	p, err := population.ReadBinary(bytes.NewReader(snap.Payload), population.Layout(snap.Layout))
	if err != nil {
		return nil, model.PopulationSnapshot{}, err
	}
	return p, snap, nil
}

func (s *Simulator) advance(ctx context.Context, cfg *config.Config, run model.RunRecord, current population.Population, summaries []model.GenerationSummary) (RunResult, error) {
	maps, err := geneticMaps(cfg.Recombination)
	if err != nil {
		return RunResult{}, err
	}
	lengths := cfg.Population.ChromosomeLengths
	subpopulations := len(cfg.Population.Subpopulations)

	for g := run.CompletedGenerations + 1; g <= run.Generations; g++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, fmt.Errorf("run %s stopped after generation %d: %w", run.ID, g-1, err)
		}
		rng := generationRand(run.Seed, g)
		source, err := newSource(cfg.Recombination, lengths, maps, rng)
		if err != nil {
			return RunResult{}, err
		}

		start := time.Now()
		next, _, err := population.NextGeneration(ctx, current, population.MatingConfig{
			Size:    cfg.Population.Size,
			Workers: cfg.Run.Workers,
			Source:  source,
			Rand:    rng,
		})
		if err != nil {
			if ctx.Err() == nil {
				s.metrics.Failure("breed")
			}
			return RunResult{}, fmt.Errorf("run %s generation %d: %w", run.ID, g, err)
		}
		summary, err := stats.Summarize(next, g, lengths, subpopulations)
		if err != nil {
			s.metrics.Failure("summarize")
			return RunResult{}, fmt.Errorf("run %s generation %d: %w", run.ID, g, err)
		}
		elapsed := time.Since(start)
		s.metrics.ObserveGeneration(elapsed, summary)

		current = next
		summaries = append(summaries, summary)
		run.CompletedGenerations = g
		s.log.Debugw("generation bred",
			"run_id", run.ID,
			"generation", g,
			"mean_intervals", summary.MeanIntervals,
			"max_intervals", summary.MaxIntervals,
			"distinct_sources", summary.DistinctSources,
			"elapsed", elapsed,
		)

		if snapshotDue(cfg.Run.SnapshotEvery, g, run.Generations) {
			if err := s.saveSnapshot(ctx, run.ID, g, current); err != nil {
				return RunResult{}, err
			}
			if err := s.checkpoint(ctx, run, summaries); err != nil {
				return RunResult{}, err
			}
		}
	}
	if err := s.checkpoint(ctx, run, summaries); err != nil {
		return RunResult{}, err
	}

	result := RunResult{Run: run, Summaries: summaries, Final: current}
	if cfg.Run.ArtifactsDir != "" {
		dir, err := s.writeArtifacts(cfg, run, summaries, current)
		if err != nil {
			s.metrics.Failure("artifacts")
			return RunResult{}, err
		}
		result.ArtifactsDir = dir
	}

	final := summaries[len(summaries)-1]
	s.log.Infow("run completed",
		"run_id", run.ID,
		"generations", run.CompletedGenerations,
		"mean_intervals", final.MeanIntervals,
		"distinct_sources", final.DistinctSources,
	)
	return result, nil
}

func snapshotDue(every, generation, target int) bool {
	if generation == target {
		return true
	}
	return every > 0 && generation%every == 0
}

func (s *Simulator) saveSnapshot(ctx context.Context, runID string, generation int, p population.Population) error {
	var buf bytes.Buffer
	n, err := population.WriteBinary(&buf, p)
	if err != nil {
		s.metrics.Failure("snapshot")
		return fmt.Errorf("encode generation %d: %w", generation, err)
	}
	snap := model.PopulationSnapshot{
		VersionedRecord:     storage.CurrentVersion(),
		ID:                  uuid.NewString(),
		RunID:               runID,
		Generation:          generation,
		Layout:              string(p.Layout()),
		Size:                p.Size(),
		ChromosomePairCount: p.ChromosomePairCount(),
		Payload:             buf.Bytes(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		s.metrics.Failure("persist")
		return err
	}
	s.metrics.ObserveSnapshot(n)
	s.log.Debugw("snapshot saved", "run_id", runID, "generation", generation, "size", humanize.Bytes(uint64(n)))
	return nil
}

func (s *Simulator) checkpoint(ctx context.Context, run model.RunRecord, summaries []model.GenerationSummary) error {
	if err := s.store.SaveGenerationSummaries(ctx, run.ID, summaries); err != nil {
		s.metrics.Failure("persist")
		return err
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.metrics.Failure("persist")
		return err
	}
	return nil
}

func (s *Simulator) writeArtifacts(cfg *config.Config, run model.RunRecord, summaries []model.GenerationSummary, final population.Population) (string, error) {
	artifacts := stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:               run.ID,
			Seed:                run.Seed,
			Layout:              run.Layout,
			ChromosomePairCount: run.ChromosomePairCount,
			ChromosomeLengths:   append([]uint32(nil), run.ChromosomeLengths...),
			Subpopulations:      append([]int(nil), run.Subpopulations...),
			PopulationSize:      run.PopulationSize,
			Generations:         run.CompletedGenerations,
			Workers:             cfg.Run.Workers,
			Recombination:       run.Recombination,
			Rate:                cfg.Recombination.Rate,
			GeneticMaps:         append([]string(nil), cfg.Recombination.GeneticMaps...),
		},
		Summaries: summaries,
	}
	if cfg.Run.WriteFinalPopulation {
		var buf bytes.Buffer
		if err := population.WriteText(&buf, final); err != nil {
			return "", err
		}
		artifacts.FinalPopulation = buf.Bytes()
	}
	dir, err := stats.WriteRunArtifacts(cfg.Run.ArtifactsDir, artifacts)
	if err != nil {
		return "", err
	}
	last := summaries[len(summaries)-1]
	err = stats.AppendRunIndex(cfg.Run.ArtifactsDir, stats.RunIndexEntry{
		RunID:                run.ID,
		PopulationSize:       run.PopulationSize,
		Generations:          run.CompletedGenerations,
		Seed:                 run.Seed,
		Workers:              cfg.Run.Workers,
		Recombination:        run.Recombination,
		FinalMeanIntervals:   last.MeanIntervals,
		FinalDistinctSources: last.DistinctSources,
		CreatedAtUTC:         run.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Simulator) register(ctx context.Context, runID string) (context.Context, func(), error) {
	if runID == "" {
		return nil, nil, fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	if _, exists := s.runs[runID]; exists {
		return nil, nil, fmt.Errorf("run already active: %s", runID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runs[runID] = cancel
	return runCtx, func() {
		cancel()
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	}, nil
}
