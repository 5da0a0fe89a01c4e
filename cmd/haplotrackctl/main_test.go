package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"haplotrack/internal/config"
	"haplotrack/internal/stats"
	"haplotrack/internal/storage"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func writeSmallConfig(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Generations = 2
	cfg.Population.ChromosomeLengths = []uint32{5000}
	cfg.Population.Subpopulations = []int{3, 3}
	if err := cfg.Save("small.yaml"); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return "small.yaml"
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}

func TestRunRequiresKnownCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage: haplotrackctl") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"breed"}); err == nil || !strings.Contains(err.Error(), "unknown command: breed") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestInitCreatesConfigOnce(t *testing.T) {
	chdirTemp(t)
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"init", "--store", "memory"})
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "config=haplotrack.yaml (created)") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := config.Load("haplotrack.yaml"); err != nil {
		t.Fatalf("load created config: %v", err)
	}
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"init", "--store", "memory"})
	})
	if err != nil || !strings.Contains(out, "(exists)") {
		t.Fatalf("second init: out=%q err=%v", out, err)
	}
}

func TestRunRunsSummaryAndExport(t *testing.T) {
	chdirTemp(t)
	cfgPath := writeSmallConfig(t)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run",
			"--store", "memory",
			"--config", cfgPath,
			"--run-id", "cli-run",
			"--seed", "9",
			"--workers", "2",
			"--write-population",
		})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out, "run_id=cli-run gens=2 pop=6") || !strings.Contains(out, "artifacts=") {
		t.Fatalf("unexpected run output: %q", out)
	}

	entries, err := stats.ListRunIndex("artifacts")
	if err != nil || len(entries) != 1 || entries[0].RunID != "cli-run" || entries[0].Seed != 9 {
		t.Fatalf("unexpected run index: %+v err=%v", entries, err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "memory"})
	})
	if err != nil || !strings.Contains(out, "run_id=cli-run") || !strings.Contains(out, "recombination=uniform") {
		t.Fatalf("runs: out=%q err=%v", out, err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"summary", "--store", "memory", "--latest", "--json"})
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var summaries []struct {
		Generation int `json:"generation"`
		Size       int `json:"size"`
	}
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("decode summary json: %v\n%s", err, out)
	}
	if len(summaries) != 3 || summaries[2].Generation != 2 || summaries[2].Size != 6 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"summary", "--store", "memory", "--run-id", "cli-run"})
	})
	if err != nil || !strings.Contains(out, "run_id=cli-run seed=9 layout=organisms") || !strings.Contains(out, "ancestry") {
		t.Fatalf("summary table: out=%q err=%v", out, err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"export", "--store", "memory", "--latest", "--out", "out"})
	})
	if err != nil || !strings.Contains(out, "exported run_id=cli-run") {
		t.Fatalf("export: out=%q err=%v", out, err)
	}
	if _, err := os.Stat(filepath.Join("out", "cli-run", "final_population.txt")); err != nil {
		t.Fatalf("expected exported population: %v", err)
	}
}

func TestReplicateCommand(t *testing.T) {
	chdirTemp(t)
	cfgPath := writeSmallConfig(t)
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"replicate", "--store", "memory", "--config", cfgPath, "--seeds", "1, 2,3", "--id", "rep-1"})
	})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if !strings.Contains(out, "replicate_id=rep-1 runs=3") || strings.Count(out, "seed=") != 3 {
		t.Fatalf("unexpected replicate output: %q", out)
	}
	set, ok, err := stats.ReadReplicateSet("artifacts", "rep-1")
	if err != nil || !ok || !reflect.DeepEqual(set.Seeds, []int64{1, 2, 3}) {
		t.Fatalf("unexpected replicate set: ok=%t err=%v %+v", ok, err, set)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"replicates", "--store", "memory", "--trajectory"})
	})
	if err != nil || !strings.Contains(out, "replicate_id=rep-1 ") || strings.Count(out, "generation=") != 3 {
		t.Fatalf("replicates: out=%q err=%v", out, err)
	}

	if err := run(context.Background(), []string{"replicate", "--store", "memory", "--seeds", "1,x"}); err == nil {
		t.Fatal("expected bad seed error")
	}
	if err := run(context.Background(), []string{"replicate", "--store", "memory"}); err == nil {
		t.Fatal("expected missing seeds error")
	}
	if err := run(context.Background(), []string{"replicate", "--store", "memory", "--seeds", "1", "--run-id", "x"}); err == nil {
		t.Fatal("expected run id rejection")
	}
}

func TestSourceIDCommands(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"encode-id", "<1,2,3,1>"})
	})
	if err != nil || strings.TrimSpace(out) != "<1,2,3,1> 268435591" {
		t.Fatalf("encode-id: out=%q err=%v", out, err)
	}
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"decode-id", "268435591", "0x0"})
	})
	if err != nil {
		t.Fatalf("decode-id: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 || lines[0] != "268435591 <1,2,3,1>" || lines[1] != "0 <0,0,0,0>" {
		t.Fatalf("unexpected decode-id output: %q", out)
	}

	if err := run(context.Background(), []string{"decode-id"}); err == nil {
		t.Fatal("expected missing id error")
	}
	if err := run(context.Background(), []string{"decode-id", "-5"}); err == nil {
		t.Fatal("expected parse error")
	}
	if err := run(context.Background(), []string{"encode-id", "<16,0,0,0>"}); err == nil {
		t.Fatal("expected out of range population error")
	}
}

func TestCommandFlagValidation(t *testing.T) {
	chdirTemp(t)
	cases := [][]string{
		{"export", "--store", "memory"},
		{"export", "--store", "memory", "--run-id", "a", "--latest"},
		{"resume", "--store", "memory"},
		{"runs", "--store", "memory", "--limit", "0"},
		{"summary", "--store", "memory"},
		{"run", "--store", "memory", "--recombination", "mystery"},
		{"run", "--store", "postgres"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestParseSeeds(t *testing.T) {
	seeds, err := parseSeeds(" 4,5 , 6")
	if err != nil || !reflect.DeepEqual(seeds, []int64{4, 5, 6}) {
		t.Fatalf("unexpected seeds: %v err=%v", seeds, err)
	}
}

func TestStoreSettingsFallBackToConfig(t *testing.T) {
	chdirTemp(t)
	parse := func(args ...string) clientFlags {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		cf := addClientFlags(fs)
		if err := fs.Parse(args); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		return cf
	}

	kind, dbPath, err := parse().store("")
	if err != nil || kind != storage.DefaultStoreKind() || dbPath != storage.DefaultSQLitePath {
		t.Fatalf("unexpected defaults: kind=%q db=%q err=%v", kind, dbPath, err)
	}

	cfg := config.Default()
	cfg.Storage.Kind = "memory"
	cfg.Storage.DBPath = "from-config.db"
	if err := cfg.Save(defaultConfigPath); err != nil {
		t.Fatalf("save config: %v", err)
	}
	kind, dbPath, err = parse().store("")
	if err != nil || kind != "memory" || dbPath != "from-config.db" {
		t.Fatalf("expected config store settings: kind=%q db=%q err=%v", kind, dbPath, err)
	}
	kind, dbPath, err = parse("--store", "sqlite", "--db-path", "flag.db").store("")
	if err != nil || kind != "sqlite" || dbPath != "flag.db" {
		t.Fatalf("expected flag store settings: kind=%q db=%q err=%v", kind, dbPath, err)
	}

	if err := os.WriteFile("broken.yaml", []byte("storage: ["), 0o644); err != nil {
		t.Fatalf("write broken config: %v", err)
	}
	if _, _, err := parse().store("broken.yaml"); err == nil {
		t.Fatal("expected config parse error")
	}
}
