package chromosome

import (
	"fmt"
	"strconv"
	"strings"
)

// Field widths of an encoded source id, packed high to low in this order.
const (
	PopulationBits = 4
	IndividualBits = 22
	PairBits       = 5
	SideBits       = 1

	MaxPopulation = 1 << PopulationBits
	MaxIndividual = 1 << IndividualBits
	MaxPair       = 1 << PairBits
	MaxSide       = 1 << SideBits
)

const (
	sideShift       = 0
	pairShift       = sideShift + SideBits
	individualShift = pairShift + PairBits
	populationShift = individualShift + IndividualBits
)

// SourceID is the decoded provenance of a founder chromosome: which founder
// population and individual it came from, the chromosome pair index and which
// side of the pair.
type SourceID struct {
	Population uint32
	Individual uint32
	Pair       uint32
	Side       uint32
}

// DecodeSourceID splits id into its fields. Every uint32 decodes; ids that
// were never encoded yield meaningless fields.
func DecodeSourceID(id uint32) SourceID {
	return SourceID{
		Population: id >> populationShift & (MaxPopulation - 1),
		Individual: id >> individualShift & (MaxIndividual - 1),
		Pair:       id >> pairShift & (MaxPair - 1),
		Side:       id >> sideShift & (MaxSide - 1),
	}
}

// Encode packs s into a uint32.
func (s SourceID) Encode() (uint32, error) {
	switch {
	case s.Population >= MaxPopulation:
		return 0, fmt.Errorf("encode source id: population %d >= %d: %w", s.Population, MaxPopulation, ErrBounds)
	case s.Individual >= MaxIndividual:
		return 0, fmt.Errorf("encode source id: individual %d >= %d: %w", s.Individual, MaxIndividual, ErrBounds)
	case s.Pair >= MaxPair:
		return 0, fmt.Errorf("encode source id: pair %d >= %d: %w", s.Pair, MaxPair, ErrBounds)
	case s.Side >= MaxSide:
		return 0, fmt.Errorf("encode source id: side %d >= %d: %w", s.Side, MaxSide, ErrBounds)
	}
	return s.Population<<populationShift |
		s.Individual<<individualShift |
		s.Pair<<pairShift |
		s.Side<<sideShift, nil
}

// String renders "<population,individual,pair,side>".
func (s SourceID) String() string {
	return fmt.Sprintf("<%d,%d,%d,%d>", s.Population, s.Individual, s.Pair, s.Side)
}

// ParseSourceID reads the form produced by String.
func ParseSourceID(s string) (SourceID, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '<' || s[len(s)-1] != '>' {
		return SourceID{}, fmt.Errorf("parse source id %q: %w", s, ErrFormat)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 4 {
		return SourceID{}, fmt.Errorf("parse source id %q: want 4 fields, got %d: %w", s, len(parts), ErrFormat)
	}
	var fields [4]uint32
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return SourceID{}, fmt.Errorf("parse source id %q: field %d: %w", s, i, ErrFormat)
		}
		fields[i] = uint32(v)
	}
	return SourceID{Population: fields[0], Individual: fields[1], Pair: fields[2], Side: fields[3]}, nil
}
