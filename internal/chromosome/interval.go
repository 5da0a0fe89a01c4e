package chromosome

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Interval marks the position from which a chromosome's ancestry is SourceID,
// up to the next interval's position or the end of the chromosome.
type Interval struct {
	Position uint32
	SourceID uint32
}

// Compare orders intervals by position, then by source id.
func (a Interval) Compare(b Interval) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.SourceID, b.SourceID)
}

func (a Interval) Less(b Interval) bool {
	return a.Compare(b) < 0
}

func (a Interval) String() string {
	return "(" + strconv.FormatUint(uint64(a.Position), 10) + "," + strconv.FormatUint(uint64(a.SourceID), 10) + ")"
}

// ParseInterval reads the "(position,id)" form produced by String.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return Interval{}, fmt.Errorf("parse interval %q: %w", s, ErrFormat)
	}
	position, id, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return Interval{}, fmt.Errorf("parse interval %q: missing comma: %w", s, ErrFormat)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(position), 10, 32)
	if err != nil {
		return Interval{}, fmt.Errorf("parse interval %q: position: %w", s, ErrFormat)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return Interval{}, fmt.Errorf("parse interval %q: id: %w", s, ErrFormat)
	}
	return Interval{Position: uint32(p), SourceID: uint32(v)}, nil
}
