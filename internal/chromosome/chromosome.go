// Package chromosome stores a haploid chromosome as an ordered run-length list
// of ancestry intervals and builds recombinant chromosomes from two parents.
package chromosome

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// ErrUnsortedBreakpoints is returned by NewByRecombination for breakpoints
// that are not in non-decreasing order.
var ErrUnsortedBreakpoints = fmt.Errorf("unsorted breakpoints: %w", ErrBounds)

// Chromosome is the ancestry painting of one haploid chromosome. Positions of
// its intervals are strictly increasing. Adjacent intervals may share a source
// id; they are never coalesced.
//
// The zero value holds no intervals and is only useful as a slot to be filled
// by ReadFrom, UnmarshalText or a genome range reset.
type Chromosome struct {
	intervals []Interval
}

// NewFounder returns an unrecombined chromosome whose whole length descends
// from id.
func NewFounder(id uint32) Chromosome {
	return Chromosome{intervals: []Interval{{Position: 0, SourceID: id}}}
}

// NewFromIntervals copies an already sorted interval list.
func NewFromIntervals(intervals []Interval) (Chromosome, error) {
	if len(intervals) == 0 {
		return Chromosome{}, fmt.Errorf("new chromosome: no intervals: %w", ErrFormat)
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Position <= intervals[i-1].Position {
			return Chromosome{}, fmt.Errorf("new chromosome: position %d at index %d does not follow %d: %w",
				intervals[i].Position, i, intervals[i-1].Position, ErrFormat)
		}
	}
	return Chromosome{intervals: slices.Clone(intervals)}, nil
}

// NewByRecombination builds the offspring of x and y by copying intervals
// alternately from x and y between consecutive breakpoints, starting with x.
// A leading breakpoint of 0 therefore starts the offspring with y.
func NewByRecombination(x, y Chromosome, breakpoints []uint32) (Chromosome, error) {
	for i := 1; i < len(breakpoints); i++ {
		if breakpoints[i] < breakpoints[i-1] {
			return Chromosome{}, fmt.Errorf("recombine: breakpoint %d at index %d after %d: %w",
				breakpoints[i], i, breakpoints[i-1], ErrUnsortedBreakpoints)
		}
	}

	out := make([]Interval, 0, max(x.Len(), y.Len())+len(breakpoints))
	fromX := true
	var previous uint32
	var err error
	for _, position := range breakpoints {
		// A repeated breakpoint is an empty segment; it only switches parents.
		if position != previous {
			out, err = pick(x, y, fromX).ExtractRange(previous, position, out)
			if err != nil {
				return Chromosome{}, fmt.Errorf("recombine [%d,%d): %w", previous, position, err)
			}
		}
		fromX = !fromX
		previous = position
	}
	out, err = pick(x, y, fromX).ExtractRange(previous, math.MaxUint32, out)
	if err != nil {
		return Chromosome{}, fmt.Errorf("recombine [%d,end): %w", previous, err)
	}
	if len(out) == 0 {
		return Chromosome{}, fmt.Errorf("recombine: empty offspring: %w", ErrBounds)
	}
	return Chromosome{intervals: out}, nil
}

func pick(x, y Chromosome, fromX bool) Chromosome {
	if fromX {
		return x
	}
	return y
}

// Len returns the number of intervals.
func (c Chromosome) Len() int {
	return len(c.intervals)
}

// Intervals exposes the interval list. Callers must not modify it; use
// SetSourceID for in-place rewrites.
func (c Chromosome) Intervals() []Interval {
	return c.intervals
}

// At returns the interval at index i.
func (c Chromosome) At(i int) Interval {
	return c.intervals[i]
}

// Clone returns a deep copy.
func (c Chromosome) Clone() Chromosome {
	return Chromosome{intervals: slices.Clone(c.intervals)}
}

// SetSourceID rewrites the source id of the interval at index.
func (c *Chromosome) SetSourceID(index int, id uint32) error {
	if index < 0 || index >= len(c.intervals) {
		return fmt.Errorf("set source id: index %d of %d: %w", index, len(c.intervals), ErrBounds)
	}
	c.intervals[index].SourceID = id
	return nil
}

// ExtractRange appends the intervals covering [begin, end) to dst and returns
// the extended slice. When begin falls strictly inside an interval, a leading
// interval starting at begin with the covering source id is synthesized.
func (c Chromosome) ExtractRange(begin, end uint32, dst []Interval) ([]Interval, error) {
	if end < begin {
		return dst, fmt.Errorf("extract [%d,%d): %w", begin, end, ErrBounds)
	}
	n := len(c.intervals)
	lo := sort.Search(n, func(i int) bool { return c.intervals[i].Position >= begin })
	hi := lo + sort.Search(n-lo, func(i int) bool { return c.intervals[lo+i].Position >= end })

	if lo == n || begin < c.intervals[lo].Position {
		if lo == 0 {
			return dst, fmt.Errorf("extract [%d,%d): begin precedes first interval: %w", begin, end, ErrBounds)
		}
		dst = append(dst, Interval{Position: begin, SourceID: c.intervals[lo-1].SourceID})
	}
	return append(dst, c.intervals[lo:hi]...), nil
}

// FindIntervalAt returns the index of the interval covering position, i.e. the
// last interval at or before position, searching from searchStart onward.
func (c Chromosome) FindIntervalAt(position uint32, searchStart int) (int, error) {
	n := len(c.intervals)
	if searchStart < 0 || searchStart >= n {
		return 0, fmt.Errorf("find interval: search start %d of %d: %w", searchStart, n, ErrBounds)
	}
	i := searchStart + sort.Search(n-searchStart, func(k int) bool {
		return c.intervals[searchStart+k].Position > position
	})
	if i == searchStart {
		return 0, fmt.Errorf("find interval: position %d precedes %d: %w", position, c.intervals[searchStart].Position, ErrBounds)
	}
	return i - 1, nil
}

// IntervalAt returns the interval covering position.
func (c Chromosome) IntervalAt(position uint32) (Interval, error) {
	i, err := c.FindIntervalAt(position, 0)
	if err != nil {
		return Interval{}, err
	}
	return c.intervals[i], nil
}

// Equal reports element-wise equality.
func (c Chromosome) Equal(o Chromosome) bool {
	return slices.Equal(c.intervals, o.intervals)
}
