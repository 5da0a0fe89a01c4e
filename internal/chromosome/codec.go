package chromosome

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"strings"
)

// MaxIntervalCount bounds the interval count accepted by ReadFrom.
const MaxIntervalCount = 10000

const (
	countWidth    = bits.UintSize / 8
	intervalWidth = 8
)

// WriteTo writes the binary form: the interval count as a native-width
// unsigned integer followed by the raw (position, id) pairs, all in native
// byte order.
func (c Chromosome) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, countWidth+intervalWidth*len(c.intervals))
	putCount(buf, uint64(len(c.intervals)))
	off := countWidth
	for _, iv := range c.intervals {
		binary.NativeEndian.PutUint32(buf[off:], iv.Position)
		binary.NativeEndian.PutUint32(buf[off+4:], iv.SourceID)
		off += intervalWidth
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom replaces c with a chromosome read in the WriteTo form.
func (c *Chromosome) ReadFrom(r io.Reader) (int64, error) {
	var header [countWidth]byte
	n, err := io.ReadFull(r, header[:])
	read := int64(n)
	if err != nil {
		return read, fmt.Errorf("read interval count: %w", err)
	}
	count := getCount(header[:])
	if count > MaxIntervalCount {
		return read, fmt.Errorf("read interval count %d: %w", count, ErrCorruptData)
	}

	body := make([]byte, intervalWidth*int(count))
	n, err = io.ReadFull(r, body)
	read += int64(n)
	if err != nil {
		return read, fmt.Errorf("read %d intervals: %w", count, err)
	}
	intervals := make([]Interval, count)
	for i := range intervals {
		off := i * intervalWidth
		intervals[i] = Interval{
			Position: binary.NativeEndian.Uint32(body[off:]),
			SourceID: binary.NativeEndian.Uint32(body[off+4:]),
		}
	}
	c.intervals = intervals
	return read, nil
}

func (c Chromosome) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes exactly one chromosome. Unlike ReadFrom it rejects
// an empty interval list. c is left unchanged on error.
func (c *Chromosome) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var decoded Chromosome
	if _, err := decoded.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes: %w", r.Len(), ErrCorruptData)
	}
	if decoded.Len() == 0 {
		return fmt.Errorf("empty chromosome: %w", ErrCorruptData)
	}
	*c = decoded
	return nil
}

func putCount(buf []byte, v uint64) {
	if countWidth == 8 {
		binary.NativeEndian.PutUint64(buf, v)
		return
	}
	binary.NativeEndian.PutUint32(buf, uint32(v))
}

func getCount(buf []byte) uint64 {
	if countWidth == 8 {
		return binary.NativeEndian.Uint64(buf)
	}
	return uint64(binary.NativeEndian.Uint32(buf))
}

// String renders "{ (p,id) (p,id) }".
func (c Chromosome) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	for _, iv := range c.intervals {
		b.WriteString(iv.String())
		b.WriteByte(' ')
	}
	b.WriteByte('}')
	return b.String()
}

// Parse reads the form produced by String.
func Parse(s string) (Chromosome, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return Chromosome{}, fmt.Errorf("parse chromosome: missing '{': %w", ErrFormat)
	}
	inner, _, ok := strings.Cut(s[1:], "}")
	if !ok {
		return Chromosome{}, fmt.Errorf("parse chromosome: missing '}': %w", ErrFormat)
	}
	var intervals []Interval
	for rest := strings.TrimSpace(inner); rest != ""; rest = strings.TrimSpace(rest) {
		field, tail, ok := strings.Cut(rest, ")")
		if !ok {
			return Chromosome{}, fmt.Errorf("parse chromosome: missing ')' in %q: %w", rest, ErrFormat)
		}
		iv, err := ParseInterval(field + ")")
		if err != nil {
			return Chromosome{}, fmt.Errorf("parse chromosome: %w", err)
		}
		intervals = append(intervals, iv)
		rest = tail
	}
	return NewFromIntervals(intervals)
}

func (c Chromosome) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Chromosome) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
