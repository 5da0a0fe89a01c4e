package population

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"haplotrack/internal/genome"
	"haplotrack/internal/recombination"
)

// MatingConfig controls how one generation is bred from the previous one.
type MatingConfig struct {
	// Size is the number of children; zero keeps the parents' size.
	Size int
	// Layout of the children; empty keeps the parents' layout.
	Layout Layout
	// Workers building children concurrently; zero uses GOMAXPROCS.
	Workers int
	Source  genome.PositionSource
	Rand    *rand.Rand
}

// Mating records the parents drawn for one child.
type Mating struct {
	Mom int
	Dad int
}

type childPlan struct {
	Mating
	momDraws [][]uint32
	dadDraws [][]uint32
}

// NextGeneration breeds children by random mating: both parents of every
// child are drawn uniformly from parents, and each child pair recombines the
// matching mom pair into First and the dad pair into Second.
//
// All random draws happen up front on the calling goroutine, in child order,
// so the result depends only on the seed and not on Workers.
func NextGeneration(ctx context.Context, parents Population, cfg MatingConfig) (Population, []Mating, error) {
	if cfg.Source == nil || cfg.Rand == nil {
		return nil, nil, fmt.Errorf("mating needs a position source and a random source: %w", ErrInvalidConfig)
	}
	size := cfg.Size
	if size == 0 {
		size = parents.Size()
	}
	layout := cfg.Layout
	if layout == "" {
		layout = parents.Layout()
	}
	pairCount := parents.ChromosomePairCount()

	plans := make([]childPlan, size)
	for i := range plans {
		plans[i].Mom = cfg.Rand.Intn(parents.Size())
		plans[i].Dad = cfg.Rand.Intn(parents.Size())
		plans[i].momDraws = make([][]uint32, pairCount)
		plans[i].dadDraws = make([][]uint32, pairCount)
		for k := 0; k < pairCount; k++ {
			var err error
			if plans[i].momDraws[k], err = cfg.Source.Positions(k); err != nil {
				return nil, nil, fmt.Errorf("child %d pair %d: %w", i, k, err)
			}
			if plans[i].dadDraws[k], err = cfg.Source.Positions(k); err != nil {
				return nil, nil, fmt.Errorf("child %d pair %d: %w", i, k, err)
			}
		}
	}

	children, err := allocate(layout, size, pairCount)
	if err != nil {
		return nil, nil, err
	}
	if err := breed(ctx, parents, children, plans, cfg.Workers); err != nil {
		return nil, nil, err
	}

	matings := make([]Mating, size)
	for i := range plans {
		matings[i] = plans[i].Mating
	}
	return children, matings, nil
}

func breed(ctx context.Context, parents, children Population, plans []childPlan, workers int) error {
	type result struct {
		idx int
		err error
	}

	jobs := make(chan int)
	results := make(chan result, len(plans))

	workerCount := workers
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	if workerCount > len(plans) {
		workerCount = len(plans)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: i, err: err}
					continue
				}
				results <- result{idx: i, err: buildChild(parents, children, i, &plans[i])}
			}
		}()
	}

	for i := range plans {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			return fmt.Errorf("child %d: %w", res.idx, res.err)
		}
	}
	return nil
}

func buildChild(parents, children Population, i int, plan *childPlan) error {
	mom, err := parents.Range(plan.Mom)
	if err != nil {
		return err
	}
	dad, err := parents.Range(plan.Dad)
	if err != nil {
		return err
	}
	child, err := children.Range(i)
	if err != nil {
		return err
	}
	sources := []genome.PositionSource{
		recombination.NewFixed(plan.momDraws...),
		recombination.NewFixed(plan.dadDraws...),
	}
	return child.FillByRecombination(mom, dad, sources)
}
