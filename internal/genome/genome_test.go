package genome

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haplotrack/internal/chromosome"
)

const (
	testPopulationSize      = 10
	testChromosomePairCount = 3
)

func testOrganisms() []Organism {
	organisms := make([]Organism, 0, testPopulationSize)
	for i := 0; i < testPopulationSize; i++ {
		organisms = append(organisms, NewOrganism(uint32(i), uint32(i), testChromosomePairCount))
	}
	return organisms
}

func poolFrom(organisms []Organism) []Pair {
	var pool []Pair
	for i := range organisms {
		for _, p := range organisms[i].Pairs() {
			pool = append(pool, Pair{First: p.First.Clone(), Second: p.Second.Clone()})
		}
	}
	return pool
}

// countingSource mirrors a deterministic generator: odd calls start from the
// second chromosome, and call n crosses over at n*10000.
type countingSource struct {
	count uint32
}

func (s *countingSource) Positions(int) ([]uint32, error) {
	s.count++
	var out []uint32
	if s.count%2 == 1 {
		out = append(out, 0)
	}
	return append(out, s.count*10000), nil
}

func TestOrganismIterator(t *testing.T) {
	organisms := testOrganisms()
	end := NewOrganismIterator(organisms, len(organisms))

	index := 0
	for it := NewOrganismIterator(organisms, 0); ; index++ {
		done, err := it.Equal(&end)
		require.NoError(t, err)
		if done {
			break
		}
		r, err := it.Range()
		require.NoError(t, err)
		require.Equal(t, testChromosomePairCount, r.Len())
		for _, p := range r.Pairs() {
			require.Equal(t, 1, p.First.Len())
			assert.Equal(t, uint32(index), p.First.At(0).SourceID)
			require.Equal(t, 1, p.Second.Len())
			assert.Equal(t, uint32(index), p.Second.At(0).SourceID)
		}
		require.NoError(t, it.Next())
	}
	assert.Equal(t, testPopulationSize, index)
}

func TestPoolIterator(t *testing.T) {
	pool := poolFrom(testOrganisms())
	require.Len(t, pool, testPopulationSize*testChromosomePairCount)

	end := NewPoolIterator(pool, len(pool), 0)
	index := 0
	for it := NewPoolIterator(pool, 0, testChromosomePairCount); ; index++ {
		done, err := it.Equal(&end)
		require.NoError(t, err)
		if done {
			break
		}
		r, err := it.Range()
		require.NoError(t, err)
		require.Equal(t, testChromosomePairCount, r.End()-r.Begin())
		for _, p := range r.Pairs() {
			assert.Equal(t, uint32(index), p.First.At(0).SourceID)
			assert.Equal(t, uint32(index), p.Second.At(0).SourceID)
		}
		require.NoError(t, it.Next())
	}
	assert.Equal(t, testPopulationSize, index)
}

func TestIteratorWritesThrough(t *testing.T) {
	organisms := testOrganisms()
	const idOffset = 100
	for it := NewOrganismIterator(organisms, 0); !it.Done(); require.NoError(t, it.Next()) {
		r, err := it.Range()
		require.NoError(t, err)
		for i := 0; i < r.Len(); i++ {
			p := r.At(i)
			require.NoError(t, p.First.SetSourceID(0, p.First.At(0).SourceID+idOffset))
			require.NoError(t, p.Second.SetSourceID(0, 0))
		}
	}
	for i := range organisms {
		for _, p := range organisms[i].Pairs() {
			assert.Equal(t, uint32(i+idOffset), p.First.At(0).SourceID)
			assert.Equal(t, uint32(0), p.Second.At(0).SourceID)
		}
	}

	pool := poolFrom(testOrganisms())
	for it := NewPoolIterator(pool, 0, testChromosomePairCount); !it.Done(); require.NoError(t, it.Next()) {
		r, err := it.Range()
		require.NoError(t, err)
		for i := 0; i < r.Len(); i++ {
			require.NoError(t, r.At(i).Second.SetSourceID(0, r.At(i).Second.At(0).SourceID+1000))
		}
	}
	for row := 0; row < testPopulationSize; row++ {
		for col := 0; col < testChromosomePairCount; col++ {
			assert.Equal(t, uint32(row+1000), pool[row*testChromosomePairCount+col].Second.At(0).SourceID)
		}
	}
}

func TestIteratorLayoutsAgree(t *testing.T) {
	organisms := testOrganisms()
	pool := poolFrom(organisms)

	byOrganism := NewOrganismIterator(organisms, 0)
	byPool := NewPoolIterator(pool, 0, testChromosomePairCount)
	for !byOrganism.Done() {
		require.False(t, byPool.Done())
		a, err := byOrganism.Range()
		require.NoError(t, err)
		b, err := byPool.Range()
		require.NoError(t, err)
		assert.True(t, a.DeepEqual(b))
		require.NoError(t, byOrganism.Next())
		require.NoError(t, byPool.Next())
	}
	assert.True(t, byPool.Done())
}

func TestIteratorErrors(t *testing.T) {
	organisms := testOrganisms()
	pool := poolFrom(organisms)

	a := NewOrganismIterator(organisms, 0)
	b := NewPoolIterator(pool, 0, testChromosomePairCount)
	_, err := a.Equal(&b)
	require.ErrorIs(t, err, ErrIteratorMismatch)

	end := NewOrganismIterator(organisms, len(organisms))
	_, err = end.Range()
	require.ErrorIs(t, err, ErrIteratorExhausted)
	require.ErrorIs(t, end.Next(), ErrIteratorExhausted)
	other := NewOrganismIterator(organisms, len(organisms))
	same, err := end.Equal(&other)
	require.NoError(t, err)
	assert.True(t, same)

	unstrided := NewPoolIterator(pool, 0, 0)
	require.ErrorIs(t, unstrided.Next(), chromosome.ErrBounds)

	empty := []Organism{{}}
	it := NewOrganismIterator(empty, 0)
	_, err = it.Range()
	require.ErrorIs(t, err, chromosome.ErrBounds)
}

func TestIteratorIdentityNeedsSameBacking(t *testing.T) {
	a := testOrganisms()
	b := testOrganisms()
	x := NewOrganismIterator(a, 2)
	y := NewOrganismIterator(b, 2)
	same, err := x.Equal(&y)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestRangeStepAndWindow(t *testing.T) {
	pool := poolFrom(testOrganisms())
	r, err := NewWindow(pool, 0, testChromosomePairCount)
	require.NoError(t, err)

	require.NoError(t, r.Step(testChromosomePairCount))
	assert.Equal(t, testChromosomePairCount, r.Begin())
	assert.Equal(t, uint32(1), r.At(0).First.At(0).SourceID)

	require.ErrorIs(t, r.Step(len(pool)), chromosome.ErrBounds)
	require.ErrorIs(t, r.Step(-2*testChromosomePairCount), chromosome.ErrBounds)

	_, err = NewWindow(pool, 5, 4)
	require.ErrorIs(t, err, chromosome.ErrBounds)

	pairs := r.Pairs()
	assert.Equal(t, len(pairs), cap(pairs))

	require.NoError(t, r.Step(-testChromosomePairCount))
	assert.Panics(t, func() { r.At(r.Len()) })
	assert.Panics(t, func() { r.At(-1) })
}

func TestResetToFounders(t *testing.T) {
	const id0, id1 = 1234, 5678
	pairs := make([]Pair, 5)
	r := NewRange(pairs)
	require.Equal(t, 5, r.Len())

	o := NewOrganism(id0, id1, 5)
	assert.False(t, r.DeepEqual(o.Range()))
	r.ResetToFounders(id0, id1)
	assert.True(t, r.DeepEqual(o.Range()))

	for _, p := range pairs {
		assert.Equal(t, []chromosome.Interval{{Position: 0, SourceID: id0}}, p.First.Intervals())
		assert.Equal(t, []chromosome.Interval{{Position: 0, SourceID: id1}}, p.Second.Intervals())
	}
}

func TestFillByRecombinationMatchesOrganismConstructor(t *testing.T) {
	const count = 7
	mom := NewOrganism(1000, 1001, count)
	dad := NewOrganism(2000, 2001, count)

	baby, err := NewOrganismFromParents(&mom, &dad, &countingSource{})
	require.NoError(t, err)

	baby2 := NewRange(make([]Pair, count))
	assert.False(t, baby2.DeepEqual(baby.Range()))

	shared := &countingSource{}
	require.NoError(t, baby2.FillByRecombination(mom.Range(), dad.Range(), []PositionSource{shared, shared}))
	assert.True(t, baby2.DeepEqual(baby.Range()))

	first := baby.Pairs()[0]
	assert.Equal(t, []chromosome.Interval{{Position: 0, SourceID: 1001}, {Position: 10000, SourceID: 1000}}, first.First.Intervals())
	assert.Equal(t, []chromosome.Interval{{Position: 0, SourceID: 2000}, {Position: 20000, SourceID: 2001}}, first.Second.Intervals())
}

func TestFillByRecombinationSizeChecks(t *testing.T) {
	mom := NewOrganism(1, 2, 3)
	dad := NewOrganism(3, 4, 3)
	short := NewOrganism(5, 6, 2)
	child := NewRange(make([]Pair, 3))
	src := &countingSource{}

	require.ErrorIs(t, child.FillByRecombination(mom.Range(), short.Range(), []PositionSource{src, src}), chromosome.ErrSizeMismatch)
	require.ErrorIs(t, NewRange(make([]Pair, 2)).FillByRecombination(mom.Range(), dad.Range(), []PositionSource{src, src}), chromosome.ErrSizeMismatch)
	require.ErrorIs(t, child.FillByRecombination(mom.Range(), dad.Range(), []PositionSource{src}), chromosome.ErrSizeMismatch)
}

func TestFillByRecombinationIsAtomic(t *testing.T) {
	mom := NewOrganism(1, 2, 3)
	dad := NewOrganism(3, 4, 3)
	child := NewOrganism(9, 9, 3)
	before := NewOrganism(9, 9, 3)

	boom := errors.New("boom")
	failing := PositionSourceFunc(func(i int) ([]uint32, error) {
		if i == 2 {
			return nil, boom
		}
		return []uint32{100}, nil
	})
	err := child.Range().FillByRecombination(mom.Range(), dad.Range(), []PositionSource{failing, failing})
	require.ErrorIs(t, err, boom)
	assert.True(t, child.Equal(&before))

	unsorted := PositionSourceFunc(func(int) ([]uint32, error) { return []uint32{200, 100}, nil })
	err = child.Range().FillByRecombination(mom.Range(), dad.Range(), []PositionSource{unsorted, unsorted})
	require.ErrorIs(t, err, chromosome.ErrUnsortedBreakpoints)
	assert.True(t, child.Equal(&before))
}

func TestEncodedOrganism(t *testing.T) {
	o, err := NewEncodedOrganism(chromosome.SourceID{Population: 3, Individual: 42}, 4)
	require.NoError(t, err)
	for i, p := range o.Pairs() {
		assert.Equal(t, chromosome.SourceID{Population: 3, Individual: 42, Pair: uint32(i), Side: 0},
			chromosome.DecodeSourceID(p.First.At(0).SourceID))
		assert.Equal(t, chromosome.SourceID{Population: 3, Individual: 42, Pair: uint32(i), Side: 1},
			chromosome.DecodeSourceID(p.Second.At(0).SourceID))
	}

	_, err = NewEncodedOrganism(chromosome.SourceID{Population: 16}, 1)
	require.ErrorIs(t, err, chromosome.ErrBounds)
	_, err = NewEncodedOrganism(chromosome.SourceID{}, chromosome.MaxPair+1)
	require.ErrorIs(t, err, chromosome.ErrBounds)
}

func TestGameteAndOrganismFromGametes(t *testing.T) {
	o := NewOrganism(1, 2, 3)
	g1, err := o.Gamete(PositionSourceFunc(func(int) ([]uint32, error) { return nil, nil }))
	require.NoError(t, err)
	g2, err := o.Gamete(PositionSourceFunc(func(int) ([]uint32, error) { return []uint32{0}, nil }))
	require.NoError(t, err)

	rebuilt, err := NewOrganismFromGametes(g1, g2)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(&o))

	_, err = NewOrganismFromGametes(g1, g2[:2])
	require.ErrorIs(t, err, chromosome.ErrSizeMismatch)
}

func TestOrganismText(t *testing.T) {
	mom := NewOrganism(1, 2, 2)
	dad := NewOrganism(3, 4, 2)
	child, err := NewOrganismFromParents(&mom, &dad, &countingSource{})
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, child.WriteText(&b))
	b.WriteString("\n")
	require.NoError(t, mom.WriteText(&b))

	sc := bufio.NewScanner(strings.NewReader(b.String()))
	got, ok, err := ReadOrganismText(sc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(&child))

	got, ok, err = ReadOrganismText(sc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(&mom))

	_, ok, err = ReadOrganismText(sc)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ReadOrganismText(bufio.NewScanner(strings.NewReader("* { (0,1) }\n")))
	require.ErrorIs(t, err, chromosome.ErrFormat)

	var empty Organism
	require.ErrorIs(t, empty.WriteText(&b), chromosome.ErrBounds)
}
