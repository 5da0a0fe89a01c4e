package population

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/genome"
)

// WriteText writes every organism in the organism text form, each followed by
// a blank line.
func WriteText(w io.Writer, p Population) error {
	bw := bufio.NewWriter(w)
	err := Walk(p, func(_ int, r genome.Range) error {
		if err := genome.WriteRangeText(bw, r); err != nil {
			return err
		}
		_, err := bw.WriteString("\n")
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// ReadText reads organisms written by WriteText into the given layout.
func ReadText(r io.Reader, layout Layout) (Population, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var organisms []genome.Organism
	for {
		o, ok, err := genome.ReadOrganismText(sc)
		if err != nil {
			return nil, fmt.Errorf("organism %d: %w", len(organisms), err)
		}
		if !ok {
			break
		}
		organisms = append(organisms, o)
	}
	if len(organisms) == 0 {
		return nil, fmt.Errorf("no organisms in input: %w", chromosome.ErrFormat)
	}
	p, err := NewOrganisms(organisms)
	if err != nil {
		return nil, err
	}
	if layout == LayoutOrganisms || layout == "" {
		return p, nil
	}
	return Convert(p, layout)
}

var binaryMagic = [4]byte{'H', 'T', 'P', 'B'}

const binaryVersion uint32 = 1

type binaryHeader struct {
	Magic     [4]byte
	Version   uint32
	Size      uint32
	PairCount uint32
}

// WriteBinary writes a header followed by the binary form of every chromosome,
// first then second, pair by pair, organism by organism.
func WriteBinary(w io.Writer, p Population) (int64, error) {
	bw := bufio.NewWriter(w)
	hdr := binaryHeader{Magic: binaryMagic, Version: binaryVersion, Size: uint32(p.Size()), PairCount: uint32(p.ChromosomePairCount())}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return 0, err
	}
	total := int64(binary.Size(hdr))
	err := Walk(p, func(_ int, r genome.Range) error {
		for _, pair := range r.Pairs() {
			n, err := pair.First.WriteTo(bw)
			total += n
			if err != nil {
				return err
			}
			n, err = pair.Second.WriteTo(bw)
			total += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, bw.Flush()
}

// ReadBinary reads a population written by WriteBinary.
func ReadBinary(r io.Reader, layout Layout) (Population, error) {
	br := bufio.NewReader(r)
	var hdr binaryHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("population header: %w", err)
	}
	if hdr.Magic != binaryMagic {
		return nil, fmt.Errorf("population header magic %q: %w", hdr.Magic[:], chromosome.ErrCorruptData)
	}
	if hdr.Version != binaryVersion {
		return nil, fmt.Errorf("population format version %d: %w", hdr.Version, chromosome.ErrCorruptData)
	}
	if hdr.Size == 0 || hdr.PairCount == 0 || hdr.PairCount > chromosome.MaxPair {
		return nil, fmt.Errorf("population of %d organisms with %d pairs: %w", hdr.Size, hdr.PairCount, chromosome.ErrCorruptData)
	}
	out, err := allocate(layout, int(hdr.Size), int(hdr.PairCount))
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(hdr.Size); i++ {
		dst, err := out.Range(i)
		if err != nil {
			return nil, err
		}
		for k := 0; k < dst.Len(); k++ {
			pair := dst.At(k)
			if _, err := pair.First.ReadFrom(br); err != nil {
				return nil, fmt.Errorf("organism %d pair %d: %w", i, k, err)
			}
			if _, err := pair.Second.ReadFrom(br); err != nil {
				return nil, fmt.Errorf("organism %d pair %d: %w", i, k, err)
			}
			if pair.First.Len() == 0 || pair.Second.Len() == 0 {
				return nil, fmt.Errorf("organism %d pair %d: empty chromosome: %w", i, k, chromosome.ErrCorruptData)
			}
		}
	}
	return out, nil
}
