// Package population stores generations of organisms and breeds the next one.
//
// A population is laid out either as a slice of organisms, each owning its
// pairs, or as one flat pool of size*chromosomePairCount pairs. Both layouts
// expose the same Range and Iterator views.
package population

import (
	"errors"
	"fmt"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/genome"
)

var ErrInvalidConfig = errors.New("invalid population config")

type Layout string

const (
	LayoutOrganisms Layout = "organisms"
	LayoutPool      Layout = "pool"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutOrganisms, LayoutPool:
		return Layout(s), nil
	case "":
		return LayoutOrganisms, nil
	default:
		return "", fmt.Errorf("unknown layout %q: %w", s, ErrInvalidConfig)
	}
}

// Population is one generation of diploid organisms.
type Population interface {
	Layout() Layout
	Size() int
	ChromosomePairCount() int
	// Range views the pairs of organism i. Writes through it modify the
	// population.
	Range(i int) (genome.Range, error)
	Begin() genome.Iterator
	End() genome.Iterator
}

// Organisms keeps one genome.Organism per individual.
type Organisms struct {
	organisms []genome.Organism
	pairCount int
}

// NewOrganisms takes ownership of organisms, which must all carry the same
// non-zero number of pairs.
func NewOrganisms(organisms []genome.Organism) (*Organisms, error) {
	if len(organisms) == 0 {
		return nil, fmt.Errorf("no organisms: %w", ErrInvalidConfig)
	}
	pairCount := len(organisms[0].Pairs())
	if pairCount == 0 {
		return nil, fmt.Errorf("organism 0 has no chromosome pairs: %w", chromosome.ErrBounds)
	}
	for i := range organisms {
		if n := len(organisms[i].Pairs()); n != pairCount {
			return nil, fmt.Errorf("organism %d has %d chromosome pairs, want %d: %w", i, n, pairCount, chromosome.ErrSizeMismatch)
		}
	}
	return &Organisms{organisms: organisms, pairCount: pairCount}, nil
}

func (p *Organisms) Layout() Layout               { return LayoutOrganisms }
func (p *Organisms) Size() int                    { return len(p.organisms) }
func (p *Organisms) ChromosomePairCount() int     { return p.pairCount }
func (p *Organisms) Organisms() []genome.Organism { return p.organisms }

func (p *Organisms) Range(i int) (genome.Range, error) {
	if i < 0 || i >= len(p.organisms) {
		return genome.Range{}, fmt.Errorf("organism %d of %d: %w", i, len(p.organisms), chromosome.ErrBounds)
	}
	return p.organisms[i].Range(), nil
}

func (p *Organisms) Begin() genome.Iterator {
	return genome.NewOrganismIterator(p.organisms, 0)
}

func (p *Organisms) End() genome.Iterator {
	return genome.NewOrganismIterator(p.organisms, len(p.organisms))
}

// Pool keeps every pair of the population in one slice; organism i owns
// pairs [i*pairCount, (i+1)*pairCount).
type Pool struct {
	pairs     []genome.Pair
	size      int
	pairCount int
}

// NewPool takes ownership of pairs, whose length must be size*pairCount.
func NewPool(pairs []genome.Pair, size, pairCount int) (*Pool, error) {
	if size <= 0 || pairCount <= 0 {
		return nil, fmt.Errorf("pool of %d organisms with %d chromosome pairs: %w", size, pairCount, ErrInvalidConfig)
	}
	if len(pairs) != size*pairCount {
		return nil, fmt.Errorf("pool holds %d pairs, want %d: %w", len(pairs), size*pairCount, chromosome.ErrSizeMismatch)
	}
	return &Pool{pairs: pairs, size: size, pairCount: pairCount}, nil
}

func (p *Pool) Layout() Layout           { return LayoutPool }
func (p *Pool) Size() int                { return p.size }
func (p *Pool) ChromosomePairCount() int { return p.pairCount }
func (p *Pool) Pairs() []genome.Pair     { return p.pairs }

func (p *Pool) Range(i int) (genome.Range, error) {
	if i < 0 || i >= p.size {
		return genome.Range{}, fmt.Errorf("organism %d of %d: %w", i, p.size, chromosome.ErrBounds)
	}
	return genome.NewWindow(p.pairs, i*p.pairCount, (i+1)*p.pairCount)
}

func (p *Pool) Begin() genome.Iterator {
	return genome.NewPoolIterator(p.pairs, 0, p.pairCount)
}

func (p *Pool) End() genome.Iterator {
	return genome.NewPoolIterator(p.pairs, len(p.pairs), 0)
}

// allocate returns a population whose pairs are all zero values, to be filled
// before it is handed out.
func allocate(layout Layout, size, pairCount int) (Population, error) {
	if size <= 0 || pairCount <= 0 {
		return nil, fmt.Errorf("population of %d organisms with %d chromosome pairs: %w", size, pairCount, ErrInvalidConfig)
	}
	switch layout {
	case LayoutPool:
		return NewPool(make([]genome.Pair, size*pairCount), size, pairCount)
	case LayoutOrganisms, "":
		orgs := make([]genome.Organism, size)
		for i := range orgs {
			orgs[i] = genome.NewOrganismFromPairs(make([]genome.Pair, pairCount))
		}
		return &Organisms{organisms: orgs, pairCount: pairCount}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q: %w", layout, ErrInvalidConfig)
	}
}

// Walk calls fn with the range of every organism in iteration order.
func Walk(p Population, fn func(i int, r genome.Range) error) error {
	it, end := p.Begin(), p.End()
	for i := 0; ; i++ {
		done, err := it.Equal(&end)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		r, err := it.Range()
		if err != nil {
			return err
		}
		if err := fn(i, r); err != nil {
			return err
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
}

// Convert deep copies p into the requested layout.
func Convert(p Population, layout Layout) (Population, error) {
	out, err := allocate(layout, p.Size(), p.ChromosomePairCount())
	if err != nil {
		return nil, err
	}
	err = Walk(p, func(i int, src genome.Range) error {
		dst, err := out.Range(i)
		if err != nil {
			return err
		}
		for k := 0; k < src.Len(); k++ {
			pair := src.At(k)
			*dst.At(k) = genome.Pair{First: pair.First.Clone(), Second: pair.Second.Clone()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports whether a and b hold the same chromosomes organism by
// organism, regardless of layout.
func Equal(a, b Population) bool {
	if a.Size() != b.Size() || a.ChromosomePairCount() != b.ChromosomePairCount() {
		return false
	}
	for i := 0; i < a.Size(); i++ {
		ra, err := a.Range(i)
		if err != nil {
			return false
		}
		rb, err := b.Range(i)
		if err != nil {
			return false
		}
		if !ra.DeepEqual(rb) {
			return false
		}
	}
	return true
}
