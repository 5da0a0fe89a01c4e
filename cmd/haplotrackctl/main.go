package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/config"
	"haplotrack/internal/stats"
	"haplotrack/internal/storage"
	"haplotrack/pkg/haplotrack"
)

const (
	defaultConfigPath = "haplotrack.yaml"
	artifactsDir      = "artifacts"
	exportsDir        = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "resume":
		return runResume(ctx, args[1:])
	case "replicate":
		return runReplicate(ctx, args[1:])
	case "replicates":
		return runReplicates(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	case "population":
		return runPopulation(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "decode-id":
		return runDecodeID(ctx, args[1:])
	case "encode-id":
		return runEncodeID(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind *string
	dbPath    *string
	artifacts *string
	verbose   *bool
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", "", "store backend: memory|sqlite (config storage.kind, else "+storage.DefaultStoreKind()+")"),
		dbPath:    fs.String("db-path", "", "sqlite database path (config storage.db_path when empty)"),
		artifacts: fs.String("artifacts", artifactsDir, "run artifacts directory"),
		verbose:   fs.Bool("verbose", false, "log every generation"),
	}
}

// open builds a client. Store settings left empty on the command line come
// from the storage section of configPath, or of haplotrack.yaml when
// configPath is empty.
func (f clientFlags) open(configPath string) (*haplotrack.Client, func(), error) {
	kind, dbPath, err := f.store(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(*f.verbose)
	if err != nil {
		return nil, nil, err
	}
	client, err := haplotrack.New(haplotrack.Options{
		StoreKind:    kind,
		DBPath:       dbPath,
		ArtifactsDir: *f.artifacts,
		ExportsDir:   exportsDir,
		Logger:       logger.Sugar(),
	})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		_ = logger.Sync()
	}, nil
}

func (f clientFlags) store(configPath string) (string, string, error) {
	kind, dbPath := *f.storeKind, *f.dbPath
	if kind != "" && dbPath != "" {
		return kind, dbPath, nil
	}
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return "", "", err
	}
	if kind == "" {
		kind = cfg.Storage.Kind
	}
	if kind == "" {
		kind = storage.DefaultStoreKind()
	}
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}
	return kind, dbPath, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

type runFlags struct {
	configPath      *string
	runID           *string
	seed            *int64
	gens            *int
	workers         *int
	layout          *string
	size            *int
	recombination   *string
	rate            *float64
	snapshotEvery   *int
	writePopulation *bool
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		configPath:      fs.String("config", "", "YAML run config (defaults when empty)"),
		runID:           fs.String("run-id", "", "run id (random when empty)"),
		seed:            fs.Int64("seed", 0, "random seed override"),
		gens:            fs.Int("gens", 0, "generations override"),
		workers:         fs.Int("workers", 0, "breeding workers override"),
		layout:          fs.String("layout", "", "population layout override: organisms|pool"),
		size:            fs.Int("size", 0, "bred generation size override"),
		recombination:   fs.String("recombination", "", "recombination override: trivial|single-crossover|uniform|genetic-map|composite"),
		rate:            fs.Float64("rate", 0, "uniform crossover rate override"),
		snapshotEvery:   fs.Int("snapshot-every", 0, "store a snapshot every n generations"),
		writePopulation: fs.Bool("write-population", false, "write the final population into the run artifacts"),
	}
}

func (f runFlags) request() haplotrack.RunRequest {
	return haplotrack.RunRequest{
		ConfigPath:           *f.configPath,
		RunID:                *f.runID,
		Seed:                 *f.seed,
		Generations:          *f.gens,
		Workers:              *f.workers,
		Layout:               *f.layout,
		PopulationSize:       *f.size,
		Recombination:        *f.recombination,
		Rate:                 *f.rate,
		SnapshotEvery:        *f.snapshotEvery,
		WriteFinalPopulation: *f.writePopulation,
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	configPath := fs.String("config", defaultConfigPath, "config file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := config.InitConfig(*configPath)
	if err != nil {
		return err
	}
	kind, _, err := cf.store(*configPath)
	if err != nil {
		return err
	}
	client, done, err := cf.open(*configPath)
	if err != nil {
		return err
	}
	defer done()
	if err := client.Init(ctx); err != nil {
		return err
	}

	state := "exists"
	if created {
		state = "created"
	}
	fmt.Printf("initialized store=%s config=%s (%s)\n", kind, *configPath, state)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := addClientFlags(fs)
	rf := addRunFlags(fs)
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := cf.open(*rf.configPath)
	if err != nil {
		return err
	}
	defer done()

	if *metricsAddr != "" {
		stop, err := serveMetrics(*metricsAddr, client.MetricsHandler())
		if err != nil {
			return err
		}
		defer stop()
	}

	summary, err := client.Run(ctx, rf.request())
	if err != nil {
		return err
	}
	return printRunSummary(summary, *jsonOut)
}

func runResume(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id to resume")
	gens := fs.Int("gens", 0, "new generation target (keeps the stored target when 0)")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("resume requires --run-id")
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	summary, err := client.Resume(ctx, haplotrack.ResumeRequest{RunID: *runID, Generations: *gens})
	if err != nil {
		return err
	}
	return printRunSummary(summary, *jsonOut)
}

func runReplicate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replicate", flag.ContinueOnError)
	cf := addClientFlags(fs)
	rf := addRunFlags(fs)
	seedList := fs.String("seeds", "", "comma separated seeds, one run each")
	id := fs.String("id", "", "replicate set id (random when empty)")
	notes := fs.String("notes", "", "free text stored with the set")
	jsonOut := fs.Bool("json", false, "emit the replicate set as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rf.runID != "" {
		return errors.New("replicate assigns run ids; drop --run-id")
	}
	seeds, err := parseSeeds(*seedList)
	if err != nil {
		return err
	}

	client, done, err := cf.open(*rf.configPath)
	if err != nil {
		return err
	}
	defer done()

	set, err := client.Replicate(ctx, haplotrack.ReplicateRequest{RunRequest: rf.request(), ID: *id, Notes: *notes, Seeds: seeds})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(set)
	}
	agg := set.Aggregate
	fmt.Printf("replicate_id=%s runs=%d mean_intervals=%.3f±%.3f max_intervals=%d distinct_sources_avg=%.1f\n",
		set.ID,
		agg.Runs,
		agg.MeanIntervalsAvg,
		agg.MeanIntervalsStd,
		agg.MaxIntervals,
		agg.DistinctSourcesAvg,
	)
	for i, runID := range set.RunIDs {
		fmt.Printf("seed=%d run_id=%s\n", set.Seeds[i], runID)
	}
	return nil
}

func runReplicates(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replicates", flag.ContinueOnError)
	cf := addClientFlags(fs)
	trajectory := fs.Bool("trajectory", false, "print the mean interval trajectory of each set")
	jsonOut := fs.Bool("json", false, "emit replicate sets as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	sets, err := client.ReplicateSets(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(sets)
	}
	if len(sets) == 0 {
		fmt.Println("no replicate sets found")
		return nil
	}
	for _, set := range sets {
		fmt.Printf("replicate_id=%s started_at=%s runs=%d seeds=%v mean_intervals=%.3f±%.3f\n",
			set.ID,
			set.StartedAtUTC,
			set.Aggregate.Runs,
			set.Seeds,
			set.Aggregate.MeanIntervalsAvg,
			set.Aggregate.MeanIntervalsStd,
		)
		if !*trajectory {
			continue
		}
		for _, p := range set.MeanIntervals {
			fmt.Printf("  generation=%d runs=%d avg=%.3f std=%.3f max=%.3f\n", p.Generation, p.Runs, p.Avg, p.Std, p.Max)
		}
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	stored := fs.Bool("stored", false, "list runs from the store, including unfinished ones")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	if *stored {
		records, err := client.StoredRuns(ctx)
		if err != nil {
			return err
		}
		if len(records) > *limit {
			records = records[len(records)-*limit:]
		}
		if *jsonOut {
			return writeJSON(records)
		}
		if len(records) == 0 {
			fmt.Println("no runs found")
			return nil
		}
		for _, r := range records {
			fmt.Printf("run_id=%s created_at=%s seed=%d pop=%s gens=%d/%d recombination=%s\n",
				r.ID,
				r.CreatedAt.UTC().Format(time.RFC3339),
				r.Seed,
				humanize.Comma(int64(r.PopulationSize)),
				r.CompletedGenerations,
				r.Generations,
				r.Recombination,
			)
		}
		return nil
	}

	items, err := client.Runs(ctx, haplotrack.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s seed=%d pop=%s gens=%d recombination=%s final_mean_intervals=%.3f distinct_sources=%s\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Seed,
			humanize.Comma(int64(item.Population)),
			item.Generations,
			item.Recombination,
			item.FinalMeanIntervals,
			humanize.Comma(int64(item.FinalDistinctSources)),
		)
	}
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	limit := fs.Int("limit", 0, "show only the last n generations")
	jsonOut := fs.Bool("json", false, "emit summaries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	summaries, err := client.Summaries(ctx, haplotrack.SummariesRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summaries)
	}
	if cfg, err := client.RunConfig(ctx, *runID, *latest); err == nil {
		fmt.Printf("run_id=%s seed=%d layout=%s recombination=%s lengths=%v\n",
			cfg.RunID, cfg.Seed, cfg.Layout, cfg.Recombination, cfg.ChromosomeLengths)
	}
	return stats.WriteSummaryTable(os.Stdout, summaries)
}

func runPopulation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("population", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	generation := fs.Int("generation", -1, "stored generation (latest snapshot when negative)")
	out := fs.String("out", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	gen, err := client.WritePopulation(ctx, w, haplotrack.PopulationRequest{RunID: *runID, Latest: *latest, Generation: *generation})
	if err != nil {
		return err
	}
	if *out != "" {
		fmt.Printf("wrote generation=%d to=%s\n", gen, *out)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, done, err := cf.open("")
	if err != nil {
		return err
	}
	defer done()

	exported, err := client.Export(ctx, haplotrack.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDecodeID(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("decode-id", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("decode-id requires at least one encoded source id")
	}
	for _, arg := range fs.Args() {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return fmt.Errorf("source id %q: %w", arg, err)
		}
		fmt.Printf("%d %s\n", v, chromosome.DecodeSourceID(uint32(v)))
	}
	return nil
}

func runEncodeID(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("encode-id", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("encode-id requires at least one <population,individual,pair,side>")
	}
	for _, arg := range fs.Args() {
		id, err := chromosome.ParseSourceID(arg)
		if err != nil {
			return err
		}
		v, err := id.Encode()
		if err != nil {
			return err
		}
		fmt.Printf("%s %d\n", id, v)
	}
	return nil
}

func printRunSummary(summary haplotrack.RunSummary, jsonOut bool) error {
	if jsonOut {
		return writeJSON(summary)
	}
	final := summary.Final
	fmt.Printf("run_id=%s gens=%d pop=%s intervals=%s mean_intervals=%.3f max_intervals=%d distinct_sources=%s\n",
		summary.RunID,
		summary.Generations,
		humanize.Comma(int64(final.Size)),
		humanize.Comma(int64(final.TotalIntervals)),
		final.MeanIntervals,
		final.MaxIntervals,
		humanize.Comma(int64(final.DistinctSources)),
	)
	if summary.ArtifactsDir != "" {
		fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	}
	return nil
}

func serveMetrics(addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func parseSeeds(list string) ([]int64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, errors.New("replicate requires --seeds")
	}
	parts := strings.Split(list, ",")
	seeds := make([]int64, 0, len(parts))
	for _, part := range parts {
		seed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: haplotrackctl <init|run|resume|replicate|replicates|runs|summary|population|export|decode-id|encode-id> [flags]", msg)
}
