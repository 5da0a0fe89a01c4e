package storage

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"haplotrack/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

type snapshotKey struct {
	runID      string
	generation int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	snapshots   map[snapshotKey]model.PopulationSnapshot
	summaries   map[string][]model.GenerationSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.snapshots = make(map[snapshotKey]model.PopulationSnapshot)
	s.summaries = make(map[string][]model.GenerationSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	snapshot.Payload = slices.Clone(snapshot.Payload)
	s.snapshots[snapshotKey{snapshot.RunID, snapshot.Generation}] = snapshot
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string, generation int) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[snapshotKey{runID, generation}]
	if !ok {
		return model.PopulationSnapshot{}, false, nil
	}
	snapshot.Payload = slices.Clone(snapshot.Payload)
	return snapshot, true, nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, runID string) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.PopulationSnapshot
	found := false
	for key, snapshot := range s.snapshots {
		if key.runID != runID {
			continue
		}
		if !found || key.generation > latest.Generation {
			latest = snapshot
			found = true
		}
	}
	if !found {
		return model.PopulationSnapshot{}, false, nil
	}
	latest.Payload = slices.Clone(latest.Payload)
	return latest, true, nil
}

func (s *MemoryStore) SaveGenerationSummaries(_ context.Context, runID string, summaries []model.GenerationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.summaries[runID] = copySummaries(summaries)
	return nil
}

func (s *MemoryStore) GetGenerationSummaries(_ context.Context, runID string) ([]model.GenerationSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[runID]
	if !ok {
		return nil, false, nil
	}
	return copySummaries(summaries), true, nil
}

func copyRun(run model.RunRecord) model.RunRecord {
	run.ChromosomeLengths = slices.Clone(run.ChromosomeLengths)
	run.Subpopulations = slices.Clone(run.Subpopulations)
	return run
}

func copySummaries(summaries []model.GenerationSummary) []model.GenerationSummary {
	copied := make([]model.GenerationSummary, len(summaries))
	for i, summary := range summaries {
		summary.AncestryProportions = slices.Clone(summary.AncestryProportions)
		copied[i] = summary
	}
	return copied
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
