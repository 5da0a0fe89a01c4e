package simulator

import (
	"fmt"
	"math/rand"

	"haplotrack/internal/config"
	"haplotrack/internal/genome"
	"haplotrack/internal/recombination"
)

// generationRand is the random stream of one generation. It depends only on
// the run seed and the generation number, so a resumed run draws exactly what
// an uninterrupted one would.
func generationRand(seed int64, generation int) *rand.Rand {
	return recombination.DeriveRand(recombination.NewRand(seed), uint64(generation))
}

// geneticMaps loads every map file the configuration names, once per path.
func geneticMaps(rc config.RecombinationConfig) (map[string]*recombination.GeneticMap, error) {
	paths := append([]string(nil), rc.GeneticMaps...)
	for _, c := range rc.Chromosomes {
		if c.Kind == config.KindGeneticMap {
			paths = append(paths, c.GeneticMap)
		}
	}
	out := make(map[string]*recombination.GeneticMap, len(paths))
	for _, path := range paths {
		if _, ok := out[path]; ok {
			continue
		}
		m, err := recombination.LoadGeneticMap(path)
		if err != nil {
			return nil, err
		}
		out[path] = m
	}
	return out, nil
}

func newSource(rc config.RecombinationConfig, lengths []uint32, maps map[string]*recombination.GeneticMap, rng *rand.Rand) (genome.PositionSource, error) {
	switch rc.Kind {
	case config.KindTrivial:
		return recombination.NewTrivial(rng), nil
	case config.KindSingleCrossover:
		return recombination.NewSingleCrossover(rng, lengths), nil
	case config.KindUniform:
		return recombination.NewUniform(rng, recombination.UniformInfos(lengths, rc.Rate))
	case config.KindGeneticMap:
		ordered := make([]*recombination.GeneticMap, len(rc.GeneticMaps))
		for i, path := range rc.GeneticMaps {
			ordered[i] = maps[path]
		}
		return recombination.NewMapSource(rng, ordered), nil
	case config.KindComposite:
		composite := recombination.NewComposite(recombination.NewTrivial(rng))
		for _, c := range rc.Chromosomes {
			idx := c.Chromosome - 1
			if idx < 0 || idx >= len(lengths) {
				return nil, fmt.Errorf("composite chromosome %d outside [1,%d]: %w", c.Chromosome, len(lengths), config.ErrInvalid)
			}
			src, err := chromosomeSource(c, idx, lengths, maps, rng)
			if err != nil {
				return nil, err
			}
			if err := composite.Set(idx, src); err != nil {
				return nil, err
			}
		}
		return composite, nil
	default:
		return nil, fmt.Errorf("unknown recombination kind %q: %w", rc.Kind, config.ErrInvalid)
	}
}

// chromosomeSource builds a source sized for all pairs that is only ever asked
// about idx.
func chromosomeSource(c config.ChromosomeRecombination, idx int, lengths []uint32, maps map[string]*recombination.GeneticMap, rng *rand.Rand) (genome.PositionSource, error) {
	switch c.Kind {
	case config.KindTrivial:
		return recombination.NewTrivial(rng), nil
	case config.KindSingleCrossover:
		return recombination.NewSingleCrossover(rng, lengths), nil
	case config.KindUniform:
		return recombination.NewUniform(rng, recombination.UniformInfos(lengths, c.Rate))
	case config.KindGeneticMap:
		m, ok := maps[c.GeneticMap]
		if !ok {
			return nil, fmt.Errorf("genetic map %s not loaded: %w", c.GeneticMap, config.ErrInvalid)
		}
		ordered := make([]*recombination.GeneticMap, len(lengths))
		ordered[idx] = m
		return recombination.NewMapSource(rng, ordered), nil
	default:
		return nil, fmt.Errorf("composite chromosome %d has kind %q: %w", c.Chromosome, c.Kind, config.ErrInvalid)
	}
}
