package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"haplotrack/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-minimal-1" || run.Seed != 42 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.ChromosomeLengths) != 2 || run.ChromosomeLengths[1] != 500000 {
		t.Fatalf("unexpected chromosome lengths: %+v", run.ChromosomeLengths)
	}
	if !run.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %s", run.CreatedAt)
	}
}

func TestDecodeGenerationSummariesFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("generation_summaries_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	summaries, err := DecodeGenerationSummaries(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[1].MaxIntervals != 3 || summaries[1].AncestryProportions[0] != 0.625 {
		t.Fatalf("unexpected summary: %+v", summaries[1])
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	input := model.RunRecord{
		VersionedRecord:     CurrentVersion(),
		ID:                  "r1",
		CreatedAt:           time.Unix(1700000000, 0).UTC(),
		Seed:                7,
		Layout:              "organisms",
		ChromosomePairCount: 1,
		ChromosomeLengths:   []uint32{100},
		Subpopulations:      []int{3},
		PopulationSize:      3,
		Generations:         2,
		Recombination:       "single-crossover",
	}

	data, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !output.CreatedAt.Equal(input.CreatedAt) {
		t.Fatalf("created_at mismatch: %s != %s", output.CreatedAt, input.CreatedAt)
	}
	output.CreatedAt = input.CreatedAt
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", input, output)
	}
}

func TestSnapshotCodecKeepsPayload(t *testing.T) {
	input := model.PopulationSnapshot{
		VersionedRecord: CurrentVersion(),
		ID:              "s1",
		RunID:           "r1",
		Generation:      4,
		Payload:         []byte{0, 1, 2, 0xff},
	}
	data, err := EncodeSnapshot(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v", output)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	data, err := EncodeRun(model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		ID:              "future",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	data, err = EncodeSnapshot(model.PopulationSnapshot{ID: "legacy"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeRun([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeGenerationSummaries([]byte("[{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
