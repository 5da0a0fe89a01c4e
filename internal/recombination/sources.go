package recombination

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"haplotrack/internal/genome"
)

var (
	// ErrChromosomeIndex is returned when a source has no configuration for the
	// requested chromosome pair.
	ErrChromosomeIndex = errors.New("chromosome pair index out of range")
	// ErrInvalidSource is returned by constructors given unusable parameters.
	ErrInvalidSource = errors.New("invalid position source")
)

// Trivial never recombines. Half of its draws start from the second
// chromosome, so it still shuffles which homolog is passed on.
type Trivial struct {
	rng *rand.Rand
}

func NewTrivial(rng *rand.Rand) *Trivial {
	return &Trivial{rng: rng}
}

func (s *Trivial) Positions(int) ([]uint32, error) {
	if startWithSecond(s.rng) {
		return []uint32{0}, nil
	}
	return nil, nil
}

// SingleCrossover places at most one crossover per meiosis, with probability
// one half, uniformly over [0, length].
type SingleCrossover struct {
	rng     *rand.Rand
	lengths []uint32
}

func NewSingleCrossover(rng *rand.Rand, lengths []uint32) *SingleCrossover {
	return &SingleCrossover{rng: rng, lengths: slices.Clone(lengths)}
}

func (s *SingleCrossover) Positions(chromosomePairIndex int) ([]uint32, error) {
	if chromosomePairIndex < 0 || chromosomePairIndex >= len(s.lengths) {
		return nil, fmt.Errorf("single crossover: index %d of %d: %w", chromosomePairIndex, len(s.lengths), ErrChromosomeIndex)
	}
	var out []uint32
	if startWithSecond(s.rng) {
		out = append(out, 0)
	}
	if s.rng.Float64() >= 0.5 {
		return out, nil
	}
	return append(out, uniformInt(s.rng, 0, s.lengths[chromosomePairIndex])), nil
}

// ChromosomeInfo is the length and expected crossover count of one
// chromosome pair.
type ChromosomeInfo struct {
	Length uint32
	Rate   float64
}

// Uniform draws a Poisson(Rate) number of distinct crossovers uniformly over
// [1, Length).
type Uniform struct {
	rng   *rand.Rand
	infos []ChromosomeInfo
}

func NewUniform(rng *rand.Rand, infos []ChromosomeInfo) (*Uniform, error) {
	for i, info := range infos {
		if info.Length == 0 {
			return nil, fmt.Errorf("uniform: chromosome %d has zero length: %w", i, ErrInvalidSource)
		}
		if info.Rate < 0 {
			return nil, fmt.Errorf("uniform: chromosome %d has negative rate %g: %w", i, info.Rate, ErrInvalidSource)
		}
	}
	return &Uniform{rng: rng, infos: slices.Clone(infos)}, nil
}

// UniformInfos pairs lengths with one common rate.
func UniformInfos(lengths []uint32, rate float64) []ChromosomeInfo {
	infos := make([]ChromosomeInfo, len(lengths))
	for i, l := range lengths {
		infos[i] = ChromosomeInfo{Length: l, Rate: rate}
	}
	return infos
}

func (s *Uniform) Positions(chromosomePairIndex int) ([]uint32, error) {
	if chromosomePairIndex < 0 || chromosomePairIndex >= len(s.infos) {
		return nil, fmt.Errorf("uniform: index %d of %d: %w", chromosomePairIndex, len(s.infos), ErrChromosomeIndex)
	}
	info := s.infos[chromosomePairIndex]
	count := poisson(s.rng, info.Rate)

	out := make([]uint32, 0, count+1)
	if startWithSecond(s.rng) {
		out = append(out, 0)
	}
	for _, p := range sampleWithoutReplacement(s.rng, info.Length, count) {
		if p != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// Composite routes each chromosome pair index to its own source and sends the
// rest to a fallback, Trivial unless replaced.
type Composite struct {
	fallback genome.PositionSource
	byIndex  map[int]genome.PositionSource
}

func NewComposite(fallback genome.PositionSource) *Composite {
	return &Composite{fallback: fallback, byIndex: make(map[int]genome.PositionSource)}
}

// Set assigns source to a zero-based chromosome pair index. Each index can be
// assigned once.
func (c *Composite) Set(chromosomePairIndex int, source genome.PositionSource) error {
	if chromosomePairIndex < 0 {
		return fmt.Errorf("composite: index %d: %w", chromosomePairIndex, ErrChromosomeIndex)
	}
	if _, ok := c.byIndex[chromosomePairIndex]; ok {
		return fmt.Errorf("composite: duplicate source for chromosome pair %d: %w", chromosomePairIndex, ErrInvalidSource)
	}
	c.byIndex[chromosomePairIndex] = source
	return nil
}

func (c *Composite) Positions(chromosomePairIndex int) ([]uint32, error) {
	if s, ok := c.byIndex[chromosomePairIndex]; ok {
		return s.Positions(chromosomePairIndex)
	}
	if c.fallback == nil {
		return nil, fmt.Errorf("composite: no source for chromosome pair %d: %w", chromosomePairIndex, ErrChromosomeIndex)
	}
	return c.fallback.Positions(chromosomePairIndex)
}

// Fixed replays recorded draws in order, ignoring the requested index. It
// lets breakpoints drawn on one goroutine be consumed on another.
type Fixed struct {
	draws [][]uint32
	next  int
}

// ErrFixedExhausted is returned when a Fixed source runs out of draws.
var ErrFixedExhausted = errors.New("fixed position source exhausted")

func NewFixed(draws ...[]uint32) *Fixed {
	return &Fixed{draws: draws}
}

func (f *Fixed) Positions(int) ([]uint32, error) {
	if f.next >= len(f.draws) {
		return nil, ErrFixedExhausted
	}
	d := f.draws[f.next]
	f.next++
	return d, nil
}

// Remaining is the number of draws not yet replayed.
func (f *Fixed) Remaining() int {
	return len(f.draws) - f.next
}

// Recorder wraps a source and keeps every draw for later replay.
type Recorder struct {
	Source genome.PositionSource
	Draws  [][]uint32
}

func (r *Recorder) Positions(chromosomePairIndex int) ([]uint32, error) {
	p, err := r.Source.Positions(chromosomePairIndex)
	if err != nil {
		return nil, err
	}
	r.Draws = append(r.Draws, p)
	return p, nil
}
