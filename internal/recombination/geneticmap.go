package recombination

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"haplotrack/internal/genome"
)

// maxMapEvents bounds the number of crossovers one meiosis can draw from a
// genetic map.
const maxMapEvents = 10

// MapRecord is one row of a HapMap-style genetic map: physical position,
// combined rate (cM/Mb) and cumulative genetic position (cM).
type MapRecord struct {
	Position     uint32
	CombinedRate float64
	GeneticMap   float64
}

// GeneticMap draws crossovers for one chromosome from a cumulative genetic map.
type GeneticMap struct {
	records []MapRecord
	// eventCDF[i] is P(count <= i) for a Poisson with the map's total length
	// in Morgans as its mean.
	eventCDF []float64
}

// NewGeneticMap validates records: at least two rows, ascending positions and
// non-decreasing genetic positions.
func NewGeneticMap(records []MapRecord) (*GeneticMap, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("genetic map needs at least 2 records, got %d: %w", len(records), ErrInvalidSource)
	}
	for i := 1; i < len(records); i++ {
		if records[i].Position <= records[i-1].Position {
			return nil, fmt.Errorf("genetic map record %d: position %d not above %d: %w", i, records[i].Position, records[i-1].Position, ErrInvalidSource)
		}
		if records[i].GeneticMap < records[i-1].GeneticMap {
			return nil, fmt.Errorf("genetic map record %d: cumulative map decreases: %w", i, ErrInvalidSource)
		}
	}

	rate := records[len(records)-1].GeneticMap * 0.01
	cdf := make([]float64, maxMapEvents)
	term, total := math.Exp(-rate), 0.0
	for i := range cdf {
		if i > 0 {
			term *= rate / float64(i)
		}
		total += term
		cdf[i] = total
	}
	return &GeneticMap{records: slices.Clone(records), eventCDF: cdf}, nil
}

// ReadGeneticMap parses a whitespace separated map with one header line.
func ReadGeneticMap(r io.Reader) (*GeneticMap, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("genetic map: missing header: %w", ErrInvalidSource)
	}
	var records []MapRecord
	line := 1
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("genetic map line %d: want 3 columns, got %d: %w", line, len(fields), ErrInvalidSource)
		}
		pos, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("genetic map line %d: position: %w", line, err)
		}
		rate, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("genetic map line %d: rate: %w", line, err)
		}
		cm, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("genetic map line %d: genetic map: %w", line, err)
		}
		records = append(records, MapRecord{Position: uint32(pos), CombinedRate: rate, GeneticMap: cm})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewGeneticMap(records)
}

// LoadGeneticMap reads a map file from disk.
func LoadGeneticMap(path string) (*GeneticMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadGeneticMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *GeneticMap) Records() []MapRecord {
	return slices.Clone(m.records)
}

// TotalCentiMorgans is the cumulative genetic length of the map.
func (m *GeneticMap) TotalCentiMorgans() float64 {
	return m.records[len(m.records)-1].GeneticMap
}

// EventCount draws the number of crossovers of one meiosis.
func (m *GeneticMap) EventCount(rng *rand.Rand) int {
	roll := rng.Float64()
	return sort.SearchFloat64s(m.eventCDF, roll)
}

// Position draws one crossover position: a genetic position is rolled
// uniformly along the map, then a physical position uniformly inside the
// bracketing records.
func (m *GeneticMap) Position(rng *rand.Rand) uint32 {
	roll := rng.Float64() * m.TotalCentiMorgans()
	i := sort.Search(len(m.records), func(i int) bool { return m.records[i].GeneticMap >= roll })
	if i == 0 {
		i = 1
	}
	if i >= len(m.records) {
		i = len(m.records) - 1
	}
	return uniformInt(rng, m.records[i-1].Position, m.records[i].Position-1)
}

// MapSource draws breakpoints from one genetic map per chromosome pair.
type MapSource struct {
	rng  *rand.Rand
	maps []*GeneticMap
}

var _ genome.PositionSource = (*MapSource)(nil)

func NewMapSource(rng *rand.Rand, maps []*GeneticMap) *MapSource {
	return &MapSource{rng: rng, maps: slices.Clone(maps)}
}

func (s *MapSource) Positions(chromosomePairIndex int) ([]uint32, error) {
	if chromosomePairIndex < 0 || chromosomePairIndex >= len(s.maps) {
		return nil, fmt.Errorf("genetic map: index %d of %d: %w", chromosomePairIndex, len(s.maps), ErrChromosomeIndex)
	}
	m := s.maps[chromosomePairIndex]
	count := m.EventCount(s.rng)
	out := make([]uint32, 0, count+1)
	for rep := 0; rep < count; rep++ {
		out = append(out, m.Position(s.rng))
	}
	if startWithSecond(s.rng) {
		out = append(out, 0)
	}
	slices.Sort(out)
	return out, nil
}
