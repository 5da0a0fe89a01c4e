package population

import (
	"fmt"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/genome"
)

// FounderConfig describes generation zero. Subpopulation s contributes
// Subpopulations[s] organisms; organism j of subpopulation s carries source
// ids <s, j, pair, side> on every chromosome.
type FounderConfig struct {
	Layout              Layout
	ChromosomePairCount int
	Subpopulations      []int
}

func (c FounderConfig) Size() int {
	total := 0
	for _, n := range c.Subpopulations {
		total += n
	}
	return total
}

func (c FounderConfig) Validate() error {
	if c.ChromosomePairCount <= 0 || c.ChromosomePairCount > chromosome.MaxPair {
		return fmt.Errorf("chromosome pair count %d outside [1,%d]: %w", c.ChromosomePairCount, chromosome.MaxPair, ErrInvalidConfig)
	}
	if len(c.Subpopulations) == 0 || len(c.Subpopulations) > chromosome.MaxPopulation {
		return fmt.Errorf("%d founder subpopulations outside [1,%d]: %w", len(c.Subpopulations), chromosome.MaxPopulation, ErrInvalidConfig)
	}
	for s, n := range c.Subpopulations {
		if n <= 0 || n > chromosome.MaxIndividual {
			return fmt.Errorf("subpopulation %d size %d outside [1,%d]: %w", s, n, chromosome.MaxIndividual, ErrInvalidConfig)
		}
	}
	return nil
}

// Founders builds generation zero.
func Founders(cfg FounderConfig) (Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out, err := allocate(cfg.Layout, cfg.Size(), cfg.ChromosomePairCount)
	if err != nil {
		return nil, err
	}
	i := 0
	for s, n := range cfg.Subpopulations {
		for j := 0; j < n; j++ {
			org, err := genome.NewEncodedOrganism(chromosome.SourceID{Population: uint32(s), Individual: uint32(j)}, cfg.ChromosomePairCount)
			if err != nil {
				return nil, fmt.Errorf("founder %d of subpopulation %d: %w", j, s, err)
			}
			dst, err := out.Range(i)
			if err != nil {
				return nil, err
			}
			copy(dst.Pairs(), org.Pairs())
			i++
		}
	}
	return out, nil
}

// SubpopulationOf returns the founder subpopulation of organism i.
func (c FounderConfig) SubpopulationOf(i int) (int, error) {
	for s, n := range c.Subpopulations {
		if i < n {
			return s, nil
		}
		i -= n
	}
	return 0, fmt.Errorf("organism index beyond %d founders: %w", c.Size(), chromosome.ErrBounds)
}
