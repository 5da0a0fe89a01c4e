package genome

import (
	"fmt"

	"haplotrack/internal/chromosome"
)

// Range is a non-owning window [Begin, End) over a slice of pairs: either an
// organism's own pairs or one row of a population-wide pool. Mutations through
// a Range are visible in the backing slice.
type Range struct {
	buf   []Pair
	start int
	end   int
}

// NewRange views all of pairs.
func NewRange(pairs []Pair) Range {
	return Range{buf: pairs, start: 0, end: len(pairs)}
}

// NewWindow views pairs[start:end].
func NewWindow(pairs []Pair, start, end int) (Range, error) {
	if start < 0 || end < start || end > len(pairs) {
		return Range{}, fmt.Errorf("window [%d,%d) of %d pairs: %w", start, end, len(pairs), chromosome.ErrBounds)
	}
	return Range{buf: pairs, start: start, end: end}, nil
}

func (r Range) Len() int {
	return r.end - r.start
}

// Begin is the index of the first pair of the window in the backing slice.
func (r Range) Begin() int {
	return r.start
}

// End is one past the index of the last pair of the window in the backing slice.
func (r Range) End() int {
	return r.end
}

// At returns the i-th pair of the window. It panics when i is outside the
// window, even if the backing slice holds more pairs.
func (r Range) At(i int) *Pair {
	return &r.Pairs()[i]
}

// Pairs returns the window as a slice sharing the backing storage. Its
// capacity is clipped so appends cannot spill into the next row.
func (r Range) Pairs() []Pair {
	return r.buf[r.start:r.end:r.end]
}

// Step shifts the window by n pairs.
func (r *Range) Step(n int) error {
	start, end := r.start+n, r.end+n
	if start < 0 || end > len(r.buf) {
		return fmt.Errorf("step %d from [%d,%d) of %d pairs: %w", n, r.start, r.end, len(r.buf), chromosome.ErrBounds)
	}
	r.start, r.end = start, end
	return nil
}

// ResetToFounders overwrites every pair with founder chromosomes id0/id1.
func (r Range) ResetToFounders(id0, id1 uint32) {
	for i := r.start; i < r.end; i++ {
		r.buf[i] = NewFounderPair(id0, id1)
	}
}

// FillByRecombination builds each pair of r from the matching pairs of mom and
// dad: the first chromosome recombines mom's pair with sources[0], the second
// recombines dad's pair with sources[1]. Nothing is written unless every pair
// succeeds.
func (r Range) FillByRecombination(mom, dad Range, sources []PositionSource) error {
	if mom.Len() != dad.Len() {
		return fmt.Errorf("parents have %d and %d chromosome pairs: %w", mom.Len(), dad.Len(), chromosome.ErrSizeMismatch)
	}
	if mom.Len() != r.Len() {
		return fmt.Errorf("parents have %d chromosome pairs, child has %d: %w", mom.Len(), r.Len(), chromosome.ErrSizeMismatch)
	}
	if len(sources) != 2 {
		return fmt.Errorf("need 2 position sources, got %d: %w", len(sources), chromosome.ErrSizeMismatch)
	}

	built := make([]Pair, r.Len())
	for i := range built {
		first, err := mom.At(i).Recombine(sources[0], i)
		if err != nil {
			return fmt.Errorf("chromosome pair %d from mom: %w", i, err)
		}
		second, err := dad.At(i).Recombine(sources[1], i)
		if err != nil {
			return fmt.Errorf("chromosome pair %d from dad: %w", i, err)
		}
		built[i] = Pair{First: first, Second: second}
	}
	copy(r.buf[r.start:r.end], built)
	return nil
}

// DeepEqual compares the pairs of two windows, regardless of what backs them.
func (r Range) DeepEqual(o Range) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i := 0; i < r.Len(); i++ {
		if !r.At(i).Equal(*o.At(i)) {
			return false
		}
	}
	return true
}

// IntervalCount totals the intervals held by both chromosomes of every pair.
func (r Range) IntervalCount() int {
	total := 0
	for i := r.start; i < r.end; i++ {
		total += r.buf[i].First.Len() + r.buf[i].Second.Len()
	}
	return total
}
