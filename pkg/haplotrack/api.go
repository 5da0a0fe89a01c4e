package haplotrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"haplotrack/internal/config"
	"haplotrack/internal/metrics"
	"haplotrack/internal/model"
	"haplotrack/internal/population"
	"haplotrack/internal/simulator"
	"haplotrack/internal/stats"
	"haplotrack/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.SugaredLogger
}

type Client struct {
	store   storage.Store
	sim     *simulator.Simulator
	metrics *metrics.Recorder
	log     *zap.SugaredLogger

	artifactsDir string
	exportsDir   string
}

// RunRequest starts a run from ConfigPath, or the defaults when empty. Zero
// valued fields keep the configured value.
type RunRequest struct {
	ConfigPath           string
	RunID                string
	Seed                 int64
	Generations          int
	Workers              int
	Layout               string
	PopulationSize       int
	Recombination        string
	Rate                 float64
	SnapshotEvery        int
	WriteFinalPopulation bool
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Generations  int
	Final        model.GenerationSummary
	Summaries    []model.GenerationSummary
}

type ResumeRequest struct {
	RunID       string
	Generations int
}

type ReplicateRequest struct {
	RunRequest
	ID    string
	Notes string
	Seeds []int64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                string
	CreatedAtUTC         string
	Seed                 int64
	Population           int
	Generations          int
	Recombination        string
	FinalMeanIntervals   float64
	FinalDistinctSources int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type SummariesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type PopulationRequest struct {
	RunID  string
	Latest bool
	// Generation selects a stored snapshot; negative picks the latest.
	Generation int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	store, err := storage.NewStore(storeKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	recorder := metrics.NewRecorder()

	return &Client{
		store:        store,
		sim:          simulator.New(simulator.Config{Store: store, Logger: log, Metrics: recorder}),
		metrics:      recorder,
		log:          log,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.sim.Stop()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.sim.Init(ctx)
}

// MetricsHandler serves the client's prometheus metrics.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := c.runConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	result, err := c.sim.Run(ctx, simulator.RunRequest{RunID: req.RunID, Config: cfg})
	if err != nil {
		return RunSummary{}, err
	}
	return toRunSummary(result), nil
}

func (c *Client) Resume(ctx context.Context, req ResumeRequest) (RunSummary, error) {
	if req.RunID == "" {
		return RunSummary{}, errors.New("resume requires run id")
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	result, err := c.sim.Resume(ctx, req.RunID, req.Generations)
	if err != nil {
		return RunSummary{}, err
	}
	return toRunSummary(result), nil
}

func (c *Client) Replicate(ctx context.Context, req ReplicateRequest) (stats.ReplicateSet, error) {
	cfg, err := c.runConfig(req.RunRequest)
	if err != nil {
		return stats.ReplicateSet{}, err
	}
	if err := c.Init(ctx); err != nil {
		return stats.ReplicateSet{}, err
	}
	return c.sim.Replicate(ctx, simulator.ReplicateRequest{ID: req.ID, Notes: req.Notes, Seeds: req.Seeds, Config: cfg})
}

// Runs lists runs from the artifacts run index, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                e.RunID,
			CreatedAtUTC:         e.CreatedAtUTC,
			Seed:                 e.Seed,
			Population:           e.PopulationSize,
			Generations:          e.Generations,
			Recombination:        e.Recombination,
			FinalMeanIntervals:   e.FinalMeanIntervals,
			FinalDistinctSources: e.FinalDistinctSources,
		})
	}
	return out, nil
}

// ReplicateSets lists the replicate sets written under the artifacts
// directory, newest first.
func (c *Client) ReplicateSets(_ context.Context) ([]stats.ReplicateSet, error) {
	return stats.ListReplicateSets(c.artifactsDir)
}

// StoredRuns lists the runs held by the store, including interrupted ones.
func (c *Client) StoredRuns(ctx context.Context) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

// Summaries returns the generation summaries of a run from the store, or from
// its artifacts when the store does not know the run.
func (c *Client) Summaries(ctx context.Context, req SummariesRequest) ([]model.GenerationSummary, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	summaries, ok, err := c.store.GetGenerationSummaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		summaries, ok, err = stats.ReadGenerationSummaries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("generation summaries not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 && len(summaries) > req.Limit {
		summaries = summaries[len(summaries)-req.Limit:]
	}
	return summaries, nil
}

// RunConfig returns the configuration recorded in a run's artifacts.
func (c *Client) RunConfig(_ context.Context, runID string, latest bool) (stats.RunConfig, error) {
	runID, err := c.resolveRunID(runID, latest)
	if err != nil {
		return stats.RunConfig{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil {
		return stats.RunConfig{}, err
	}
	if !ok {
		return stats.RunConfig{}, fmt.Errorf("run config not found for run id: %s", runID)
	}
	return cfg, nil
}

// WritePopulation writes a stored generation of a run in organism text form
// and returns the generation written.
func (c *Client) WritePopulation(ctx context.Context, w io.Writer, req PopulationRequest) (int, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return 0, err
	}
	if err := c.Init(ctx); err != nil {
		return 0, err
	}
	p, snap, err := c.sim.Snapshot(ctx, runID, req.Generation)
	if err != nil {
		return 0, err
	}
	if err := population.WriteText(w, p); err != nil {
		return 0, err
	}
	return snap.Generation, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) runConfig(req RunRequest) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(req.ConfigPath)
	if err != nil {
		return nil, err
	}
	if req.Seed != 0 {
		cfg.Run.Seed = req.Seed
	}
	if req.Generations > 0 {
		cfg.Run.Generations = req.Generations
	}
	if req.Workers > 0 {
		cfg.Run.Workers = req.Workers
	}
	if req.Layout != "" {
		cfg.Population.Layout = req.Layout
	}
	if req.PopulationSize > 0 {
		cfg.Population.Size = req.PopulationSize
	}
	if req.Recombination != "" {
		cfg.Recombination.Kind = req.Recombination
	}
	if req.Rate > 0 {
		cfg.Recombination.Rate = req.Rate
	}
	if req.SnapshotEvery > 0 {
		cfg.Run.SnapshotEvery = req.SnapshotEvery
	}
	if req.WriteFinalPopulation {
		cfg.Run.WriteFinalPopulation = true
	}
	cfg.Run.ArtifactsDir = c.artifactsDir
	return cfg, cfg.Validate()
}

func toRunSummary(result simulator.RunResult) RunSummary {
	return RunSummary{
		RunID:        result.Run.ID,
		ArtifactsDir: result.ArtifactsDir,
		Generations:  result.Run.CompletedGenerations,
		Final:        result.Summaries[len(result.Summaries)-1],
		Summaries:    result.Summaries,
	}
}
