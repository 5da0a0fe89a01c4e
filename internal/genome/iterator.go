package genome

import (
	"errors"
	"fmt"

	"haplotrack/internal/chromosome"
)

var (
	// ErrIteratorMismatch is returned when comparing an organism iterator with
	// a pool iterator.
	ErrIteratorMismatch = errors.New("iterators walk different storage layouts")
	// ErrIteratorExhausted is returned when dereferencing or advancing an
	// iterator at its end.
	ErrIteratorExhausted = errors.New("iterator exhausted")
)

type iteratorKind uint8

const (
	organismCursor iteratorKind = iota + 1
	poolCursor
)

// Iterator walks the chromosome pair ranges of a population. An organism
// iterator steps through a slice of organisms and views each organism's pairs
// on demand; a pool iterator steps a fixed-size window through one flat slice
// of pairs. Both yield Range values so callers are layout agnostic.
type Iterator struct {
	kind iteratorKind

	organisms []Organism
	index     int
	cache     Range
	cached    bool

	pool   []Pair
	offset int
	stride int
}

// NewOrganismIterator starts at organisms[index]. Use index == len(organisms)
// for the end iterator.
func NewOrganismIterator(organisms []Organism, index int) Iterator {
	return Iterator{kind: organismCursor, organisms: organisms, index: index}
}

// NewPoolIterator starts at pool[offset] and advances stride pairs per step.
// An end iterator may be built with stride 0.
func NewPoolIterator(pool []Pair, offset, stride int) Iterator {
	return Iterator{kind: poolCursor, pool: pool, offset: offset, stride: stride}
}

// Done reports whether the iterator is at or past its end.
func (it *Iterator) Done() bool {
	if it.kind == organismCursor {
		return it.index >= len(it.organisms)
	}
	return it.offset >= len(it.pool)
}

// Range returns the current window. The organism view is built on first use
// and cached until Next.
func (it *Iterator) Range() (Range, error) {
	if it.Done() {
		return Range{}, ErrIteratorExhausted
	}
	if it.kind == poolCursor {
		return NewWindow(it.pool, it.offset, it.offset+it.stride)
	}
	if !it.cached {
		pairs := it.organisms[it.index].Pairs()
		if len(pairs) == 0 {
			return Range{}, fmt.Errorf("organism %d has no chromosome pairs: %w", it.index, chromosome.ErrBounds)
		}
		it.cache = NewRange(pairs)
		it.cached = true
	}
	return it.cache, nil
}

// Next advances to the following organism or pool row.
func (it *Iterator) Next() error {
	if it.Done() {
		return ErrIteratorExhausted
	}
	if it.kind == organismCursor {
		it.cache, it.cached = Range{}, false
		it.index++
		return nil
	}
	if it.stride <= 0 {
		return fmt.Errorf("pool iterator stride %d: %w", it.stride, chromosome.ErrBounds)
	}
	it.offset += it.stride
	return nil
}

// Equal reports whether both iterators point at the same organism, or at the
// same window start for pool iterators. Stride is ignored so that an end
// iterator built with stride 0 compares equal to an exhausted one.
func (it *Iterator) Equal(o *Iterator) (bool, error) {
	if it.kind != o.kind {
		return false, ErrIteratorMismatch
	}
	if it.kind == organismCursor {
		return sameBacking(it.organisms, o.organisms) && it.index == o.index, nil
	}
	return sameBacking(it.pool, o.pool) && it.offset == o.offset, nil
}

func sameBacking[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
