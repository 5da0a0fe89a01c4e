package genome

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"haplotrack/internal/chromosome"
)

// Gamete is one haploid set of chromosomes, one per chromosome pair.
type Gamete []chromosome.Chromosome

// Organism owns one Pair per chromosome index.
type Organism struct {
	pairs []Pair
}

// NewOrganism returns an organism whose every pair is founder chromosomes
// id0/id1.
func NewOrganism(id0, id1 uint32, chromosomePairCount int) Organism {
	o := Organism{pairs: make([]Pair, chromosomePairCount)}
	NewRange(o.pairs).ResetToFounders(id0, id1)
	return o
}

// NewEncodedOrganism builds a founder organism whose chromosomes carry
// encoded source ids: id with Pair set to the chromosome pair index and Side
// set to 0 for the first chromosome and 1 for the second.
func NewEncodedOrganism(id chromosome.SourceID, chromosomePairCount int) (Organism, error) {
	o := Organism{pairs: make([]Pair, chromosomePairCount)}
	for i := range o.pairs {
		id.Pair = uint32(i)
		id.Side = 0
		id0, err := id.Encode()
		if err != nil {
			return Organism{}, err
		}
		id.Side = 1
		id1, err := id.Encode()
		if err != nil {
			return Organism{}, err
		}
		o.pairs[i] = NewFounderPair(id0, id1)
	}
	return o, nil
}

// NewOrganismFromGametes pairs chromosome i of g1 with chromosome i of g2.
func NewOrganismFromGametes(g1, g2 Gamete) (Organism, error) {
	if len(g1) != len(g2) {
		return Organism{}, fmt.Errorf("gametes have %d and %d chromosomes: %w", len(g1), len(g2), chromosome.ErrSizeMismatch)
	}
	o := Organism{pairs: make([]Pair, len(g1))}
	for i := range g1 {
		o.pairs[i] = Pair{First: g1[i], Second: g2[i]}
	}
	return o, nil
}

// NewOrganismFromPairs wraps pairs without copying; the organism takes
// ownership.
func NewOrganismFromPairs(pairs []Pair) Organism {
	return Organism{pairs: pairs}
}

// NewOrganismFromParents recombines each parental pair, drawing breakpoints
// for both parents from source.
func NewOrganismFromParents(mom, dad *Organism, source PositionSource) (Organism, error) {
	child := Organism{pairs: make([]Pair, len(mom.pairs))}
	if err := child.Range().FillByRecombination(mom.Range(), dad.Range(), []PositionSource{source, source}); err != nil {
		return Organism{}, err
	}
	return child, nil
}

// Pairs returns the organism's pairs; writes through it modify the organism.
func (o *Organism) Pairs() []Pair {
	return o.pairs
}

// Range views all pairs of the organism.
func (o *Organism) Range() Range {
	return NewRange(o.pairs)
}

// Gamete draws one recombinant chromosome from every pair.
func (o *Organism) Gamete(source PositionSource) (Gamete, error) {
	g := make(Gamete, len(o.pairs))
	for i := range o.pairs {
		c, err := o.pairs[i].Recombine(source, i)
		if err != nil {
			return nil, fmt.Errorf("gamete chromosome %d: %w", i, err)
		}
		g[i] = c
	}
	return g, nil
}

func (o *Organism) Equal(other *Organism) bool {
	return o.Range().DeepEqual(other.Range())
}

// WriteText writes one "+ {...}" line for the first chromosome and one
// "- {...}" line for the second chromosome of every pair.
func (o *Organism) WriteText(w io.Writer) error {
	return WriteRangeText(w, o.Range())
}

// WriteRangeText writes the pairs of r in the organism text form.
func WriteRangeText(w io.Writer, r Range) error {
	if r.Len() == 0 {
		return fmt.Errorf("write organism: no chromosome pairs: %w", chromosome.ErrBounds)
	}
	for _, p := range r.Pairs() {
		if _, err := fmt.Fprintf(w, "+ %s\n- %s\n", p.First, p.Second); err != nil {
			return err
		}
	}
	return nil
}

// ReadOrganismText reads lines in the WriteText form up to a blank line or
// EOF. ok is false when no organism lines remained.
func ReadOrganismText(sc *bufio.Scanner) (o Organism, ok bool, err error) {
	var plus, minus Gamete
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if len(plus) == 0 && len(minus) == 0 {
				continue
			}
			break
		}
		sign, rest := line[0], line[1:]
		c, err := chromosome.Parse(rest)
		if err != nil {
			return Organism{}, false, err
		}
		switch sign {
		case '+':
			plus = append(plus, c)
		case '-':
			minus = append(minus, c)
		default:
			return Organism{}, false, fmt.Errorf("organism line %q: %w", line, chromosome.ErrFormat)
		}
	}
	if err := sc.Err(); err != nil {
		return Organism{}, false, err
	}
	if len(plus) == 0 && len(minus) == 0 {
		return Organism{}, false, nil
	}
	o, err = NewOrganismFromGametes(plus, minus)
	if err != nil {
		return Organism{}, false, err
	}
	return o, true, nil
}
