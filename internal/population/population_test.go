package population

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/genome"
	"haplotrack/internal/recombination"
)

func founders(t *testing.T, layout Layout, sizes ...int) Population {
	t.Helper()
	p, err := Founders(FounderConfig{Layout: layout, ChromosomePairCount: 3, Subpopulations: sizes})
	require.NoError(t, err)
	return p
}

func uniformMating(seed int64, workers int) MatingConfig {
	rng := recombination.NewRand(seed)
	src, err := recombination.NewUniform(rng, recombination.UniformInfos([]uint32{1_000_000, 500_000, 250_000}, 1.5))
	if err != nil {
		panic(err)
	}
	return MatingConfig{Source: src, Rand: rng, Workers: workers}
}

func TestFoundersEncodeSourceIDs(t *testing.T) {
	for _, layout := range []Layout{LayoutOrganisms, LayoutPool} {
		p := founders(t, layout, 2, 3)
		require.Equal(t, 5, p.Size())
		require.Equal(t, 3, p.ChromosomePairCount())
		require.Equal(t, layout, p.Layout())

		r, err := p.Range(3)
		require.NoError(t, err)
		for k := 0; k < r.Len(); k++ {
			first := chromosome.DecodeSourceID(r.At(k).First.At(0).SourceID)
			second := chromosome.DecodeSourceID(r.At(k).Second.At(0).SourceID)
			assert.Equal(t, chromosome.SourceID{Population: 1, Individual: 1, Pair: uint32(k), Side: 0}, first)
			assert.Equal(t, chromosome.SourceID{Population: 1, Individual: 1, Pair: uint32(k), Side: 1}, second)
		}
	}
}

func TestFounderConfigValidate(t *testing.T) {
	bad := []FounderConfig{
		{ChromosomePairCount: 0, Subpopulations: []int{1}},
		{ChromosomePairCount: 33, Subpopulations: []int{1}},
		{ChromosomePairCount: 1},
		{ChromosomePairCount: 1, Subpopulations: make([]int, 17)},
		{ChromosomePairCount: 1, Subpopulations: []int{2, 0}},
	}
	for i, cfg := range bad {
		_, err := Founders(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
	_, err := Founders(FounderConfig{Layout: "weird", ChromosomePairCount: 1, Subpopulations: []int{1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSubpopulationOf(t *testing.T) {
	cfg := FounderConfig{ChromosomePairCount: 1, Subpopulations: []int{2, 3}}
	for i, want := range []int{0, 0, 1, 1, 1} {
		got, err := cfg.SubpopulationOf(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := cfg.SubpopulationOf(5)
	assert.ErrorIs(t, err, chromosome.ErrBounds)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("pool")
	require.NoError(t, err)
	assert.Equal(t, LayoutPool, l)
	l, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutOrganisms, l)
	_, err = ParseLayout("grid")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRangeBounds(t *testing.T) {
	for _, layout := range []Layout{LayoutOrganisms, LayoutPool} {
		p := founders(t, layout, 2)
		_, err := p.Range(2)
		assert.ErrorIs(t, err, chromosome.ErrBounds)
		_, err = p.Range(-1)
		assert.ErrorIs(t, err, chromosome.ErrBounds)
	}
}

func TestNewOrganismsRejectsMixedPairCounts(t *testing.T) {
	_, err := NewOrganisms([]genome.Organism{genome.NewOrganism(0, 1, 2), genome.NewOrganism(2, 3, 3)})
	assert.ErrorIs(t, err, chromosome.ErrSizeMismatch)
	_, err = NewOrganisms(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewPool(make([]genome.Pair, 5), 2, 3)
	assert.ErrorIs(t, err, chromosome.ErrSizeMismatch)
}

func TestWalkVisitsEveryOrganism(t *testing.T) {
	for _, layout := range []Layout{LayoutOrganisms, LayoutPool} {
		p := founders(t, layout, 4)
		var seen []int
		require.NoError(t, Walk(p, func(i int, r genome.Range) error {
			assert.Equal(t, 3, r.Len())
			seen = append(seen, i)
			return nil
		}))
		assert.Equal(t, []int{0, 1, 2, 3}, seen)
	}
}

func TestLayoutsBreedIdentically(t *testing.T) {
	orgs := founders(t, LayoutOrganisms, 6, 4)
	pool := founders(t, LayoutPool, 6, 4)
	require.True(t, Equal(orgs, pool))

	orgCfg, poolCfg := uniformMating(99, 1), uniformMating(99, 4)
	for gen := 0; gen < 5; gen++ {
		var err error
		var mo, mp []Mating
		orgs, mo, err = NextGeneration(context.Background(), orgs, orgCfg)
		require.NoError(t, err)
		pool, mp, err = NextGeneration(context.Background(), pool, poolCfg)
		require.NoError(t, err)
		require.Equal(t, mo, mp)
		require.True(t, Equal(orgs, pool), "generation %d", gen)
	}
	assert.Equal(t, LayoutOrganisms, orgs.Layout())
	assert.Equal(t, LayoutPool, pool.Layout())
}

func TestNextGenerationIndependentOfWorkers(t *testing.T) {
	base := founders(t, LayoutPool, 20)
	a, _, err := NextGeneration(context.Background(), base, uniformMating(5, 1))
	require.NoError(t, err)
	b, _, err := NextGeneration(context.Background(), base, uniformMating(5, 8))
	require.NoError(t, err)
	assert.True(t, Equal(a, b))
}

func TestNextGenerationInheritsFromParents(t *testing.T) {
	parents := founders(t, LayoutOrganisms, 8)
	cfg := uniformMating(17, 2)
	cfg.Size = 12
	cfg.Layout = LayoutPool
	children, matings, err := NextGeneration(context.Background(), parents, cfg)
	require.NoError(t, err)
	require.Equal(t, 12, children.Size())
	require.Equal(t, LayoutPool, children.Layout())
	require.Len(t, matings, 12)

	for i, m := range matings {
		r, err := children.Range(i)
		require.NoError(t, err)
		for k := 0; k < r.Len(); k++ {
			for _, iv := range r.At(k).First.Intervals() {
				id := chromosome.DecodeSourceID(iv.SourceID)
				assert.Equal(t, uint32(m.Mom), id.Individual)
				assert.Equal(t, uint32(k), id.Pair)
			}
			for _, iv := range r.At(k).Second.Intervals() {
				id := chromosome.DecodeSourceID(iv.SourceID)
				assert.Equal(t, uint32(m.Dad), id.Individual)
				assert.Equal(t, uint32(k), id.Pair)
			}
		}
	}
}

func TestNextGenerationLeavesParentsUntouched(t *testing.T) {
	parents := founders(t, LayoutPool, 5)
	snapshot, err := Convert(parents, LayoutOrganisms)
	require.NoError(t, err)
	_, _, err = NextGeneration(context.Background(), parents, uniformMating(3, 3))
	require.NoError(t, err)
	assert.True(t, Equal(parents, snapshot))
}

func TestNextGenerationErrors(t *testing.T) {
	parents := founders(t, LayoutOrganisms, 3)

	_, _, err := NextGeneration(context.Background(), parents, MatingConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	boom := errors.New("boom")
	failing := MatingConfig{
		Rand:   recombination.NewRand(1),
		Source: genome.PositionSourceFunc(func(int) ([]uint32, error) { return nil, boom }),
	}
	_, _, err = NextGeneration(context.Background(), parents, failing)
	assert.ErrorIs(t, err, boom)

	unsorted := MatingConfig{
		Rand:   recombination.NewRand(1),
		Source: genome.PositionSourceFunc(func(int) ([]uint32, error) { return []uint32{9, 3}, nil }),
	}
	_, _, err = NextGeneration(context.Background(), parents, unsorted)
	assert.ErrorIs(t, err, chromosome.ErrBounds)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = NextGeneration(ctx, parents, uniformMating(1, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertIsDeep(t *testing.T) {
	src := founders(t, LayoutOrganisms, 2)
	dst, err := Convert(src, LayoutPool)
	require.NoError(t, err)
	require.True(t, Equal(src, dst))

	r, err := dst.Range(0)
	require.NoError(t, err)
	require.NoError(t, r.At(0).First.SetSourceID(0, 12345))
	assert.False(t, Equal(src, dst))
}

func TestTextRoundTrip(t *testing.T) {
	p, _, err := NextGeneration(context.Background(), founders(t, LayoutPool, 4), uniformMating(21, 2))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, p))
	assert.True(t, strings.HasPrefix(buf.String(), "+ { (0,"))

	for _, layout := range []Layout{LayoutOrganisms, LayoutPool} {
		back, err := ReadText(strings.NewReader(buf.String()), layout)
		require.NoError(t, err)
		assert.Equal(t, layout, back.Layout())
		assert.True(t, Equal(p, back))
	}
}

func TestTextRoundTripWithRepeatedBreakpoints(t *testing.T) {
	mom := genome.NewOrganism(1, 2, 1)
	dad := genome.NewOrganism(3, 4, 1)
	child, err := genome.NewOrganismFromParents(&mom, &dad, recombination.NewFixed([]uint32{500, 500}, []uint32{0, 700, 700}))
	require.NoError(t, err)
	p, err := NewOrganisms([]genome.Organism{child})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, p))
	for _, layout := range []Layout{LayoutOrganisms, LayoutPool} {
		back, err := ReadText(strings.NewReader(buf.String()), layout)
		require.NoError(t, err, buf.String())
		assert.True(t, Equal(p, back))
	}
}

func TestReadTextErrors(t *testing.T) {
	_, err := ReadText(strings.NewReader(""), LayoutOrganisms)
	assert.ErrorIs(t, err, chromosome.ErrFormat)

	_, err = ReadText(strings.NewReader("* { (0,1) }\n- { (0,2) }\n"), LayoutOrganisms)
	assert.ErrorIs(t, err, chromosome.ErrFormat)

	mixed := "+ { (0,1) }\n- { (0,2) }\n\n+ { (0,3) }\n+ { (0,3) }\n- { (0,4) }\n- { (0,4) }\n"
	_, err = ReadText(strings.NewReader(mixed), LayoutPool)
	assert.ErrorIs(t, err, chromosome.ErrSizeMismatch)
}

func TestBinaryRoundTrip(t *testing.T) {
	p, _, err := NextGeneration(context.Background(), founders(t, LayoutOrganisms, 3, 3), uniformMating(8, 2))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := WriteBinary(&buf, p)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	back, err := ReadBinary(bytes.NewReader(buf.Bytes()), LayoutPool)
	require.NoError(t, err)
	assert.True(t, Equal(p, back))
}

func TestReadBinaryErrors(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteBinary(&buf, founders(t, LayoutPool, 2))
	require.NoError(t, err)
	data := buf.Bytes()

	corrupt := append([]byte("XXXX"), data[4:]...)
	_, err = ReadBinary(bytes.NewReader(corrupt), LayoutPool)
	assert.ErrorIs(t, err, chromosome.ErrCorruptData)

	_, err = ReadBinary(bytes.NewReader(data[:len(data)-3]), LayoutPool)
	assert.Error(t, err)

	_, err = ReadBinary(bytes.NewReader(nil), LayoutPool)
	assert.Error(t, err)
}
