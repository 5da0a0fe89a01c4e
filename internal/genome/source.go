// Package genome holds chromosome pairs and the views used to walk them,
// whether the pairs are owned per organism or laid out in one flat pool.
package genome

import "haplotrack/internal/chromosome"

// PositionSource supplies the crossover breakpoints of one meiosis on one
// chromosome pair. Breakpoints are expected in ascending order; a leading 0
// means the recombinant starts from the second chromosome of the pair.
type PositionSource interface {
	Positions(chromosomePairIndex int) ([]uint32, error)
}

// PositionSourceFunc adapts a function to PositionSource.
type PositionSourceFunc func(chromosomePairIndex int) ([]uint32, error)

func (f PositionSourceFunc) Positions(chromosomePairIndex int) ([]uint32, error) {
	return f(chromosomePairIndex)
}

// Pair is the two homologous copies of one chromosome.
type Pair struct {
	First  chromosome.Chromosome
	Second chromosome.Chromosome
}

// NewFounderPair returns a pair of founder chromosomes.
func NewFounderPair(id0, id1 uint32) Pair {
	return Pair{First: chromosome.NewFounder(id0), Second: chromosome.NewFounder(id1)}
}

func (p Pair) Equal(o Pair) bool {
	return p.First.Equal(o.First) && p.Second.Equal(o.Second)
}

// Recombine draws one recombinant chromosome from the pair.
func (p Pair) Recombine(source PositionSource, chromosomePairIndex int) (chromosome.Chromosome, error) {
	positions, err := source.Positions(chromosomePairIndex)
	if err != nil {
		return chromosome.Chromosome{}, err
	}
	return chromosome.NewByRecombination(p.First, p.Second, positions)
}
