package pef

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarioS1(t *testing.T) {
	values := []uint64{1, 3, 4, 6, 10, 11, 12, 13}
	seq, err := New(values, 2)
	require.NoError(t, err)
	require.EqualValues(t, 4, seq.NBlocks())

	b0, err := seq.DecodeBlock(0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, b0)

	got, err := seq.Decode()
	require.NoError(t, err)
	require.Equal(t, values, got)

	require.True(t, seq.Contains(10))
	require.False(t, seq.Contains(9))
}

func TestScenarioS2(t *testing.T) {
	a, err := New([]uint64{1, 3, 4, 6, 10, 11, 12, 13}, 2)
	require.NoError(t, err)
	b, err := New([]uint64{2, 4, 5, 9, 11, 15}, 3)
	require.NoError(t, err)

	inter, err := a.Intersect(b)
	require.NoError(t, err)
	got, err := inter.Decode()
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 11}, got)

	union, err := a.UnionWith(b)
	require.NoError(t, err)
	gotUnion, err := union.Decode()
	require.NoError(t, err)
	require.Len(t, gotUnion, 12)
}

func TestScenarioS3(t *testing.T) {
	a, err := New([]uint64{1, 3, 4, 6, 7, 10, 11, 17, 21, 33, 55, 77, 99, 101, 133, 145}, 2)
	require.NoError(t, err)
	b, err := New([]uint64{2, 4, 5, 101, 107, 145}, 3)
	require.NoError(t, err)

	inter, err := a.Intersect(b)
	require.NoError(t, err)
	got, err := inter.Decode()
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 101, 145}, got)
	require.EqualValues(t, 2, inter.NBlocks())
}

func TestScenarioS4(t *testing.T) {
	seq, err := New([]uint64{5}, 256)
	require.NoError(t, err)
	got, err := seq.Decode()
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, got)
}

func TestScenarioS5(t *testing.T) {
	values := seqRange(0, 1333, 1)
	seq, err := New(values, 256)
	require.NoError(t, err)
	require.EqualValues(t, 6, seq.NBlocks())

	last, err := seq.DecodeBlock(5)
	require.NoError(t, err)
	require.Len(t, last, 53)

	got, err := seq.Decode()
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestScenarioS6(t *testing.T) {
	seq, err := New(nil, 256)
	require.NoError(t, err)
	require.EqualValues(t, 0, seq.NElem())
	require.EqualValues(t, 0, seq.NBlocks())

	got, err := seq.Decode()
	require.NoError(t, err)
	require.Empty(t, got)

	buf := seq.AppendBytes(nil)
	seq2, err := LoadBytes(buf)
	require.NoError(t, err)
	require.Equal(t, seq.NElem(), seq2.NElem())
	require.Equal(t, seq.NBlocks(), seq2.NBlocks())

	got2, err := seq2.Decode()
	require.NoError(t, err)
	require.Empty(t, got2)
}

func TestRoundTripAcrossBlockSizes(t *testing.T) {
	values := seqRange(0, 777, 3)
	for _, bs := range []uint32{1, 2, 16, 256, 1024} {
		seq, err := New(values, bs)
		require.NoError(t, err)
		got, err := seq.Decode()
		require.NoError(t, err)
		require.Equal(t, values, got, "block_size=%d", bs)
	}
}

func TestBlockLocality(t *testing.T) {
	values := seqRange(5, 500, 7)
	seq, err := New(values, 16)
	require.NoError(t, err)
	for i, want := range values {
		got, err := seq.Get(uint64(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMembership(t *testing.T) {
	values := seqRange(0, 200, 5)
	set := make(map[uint64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	seq, err := New(values, 8)
	require.NoError(t, err)
	for q := uint64(0); q < 1100; q += 3 {
		require.Equal(t, set[q], seq.Contains(q), "q=%d", q)
	}
}

func TestSerializationIdempotence(t *testing.T) {
	values := seqRange(0, 300, 2)
	seq, err := New(values, 32)
	require.NoError(t, err)

	buf := seq.AppendBytes(nil)
	seq2, err := LoadBytes(buf)
	require.NoError(t, err)

	got1, err := seq.Decode()
	require.NoError(t, err)
	got2, err := seq2.Decode()
	require.NoError(t, err)
	require.Equal(t, got1, got2)
	require.Equal(t, buf, seq2.AppendBytes(nil))
}

func TestIntersectionLaw(t *testing.T) {
	va := seqRange(0, 150, 3)
	vb := seqRange(0, 100, 5)
	a, err := New(va, 9)
	require.NoError(t, err)
	b, err := New(vb, 11)
	require.NoError(t, err)

	inter, err := a.Intersect(b)
	require.NoError(t, err)
	got, err := inter.Decode()
	require.NoError(t, err)
	require.Equal(t, sortedSetIntersect(va, vb), got)
}

func TestUnionLaw(t *testing.T) {
	va := seqRange(0, 150, 3)
	vb := seqRange(0, 100, 5)
	a, err := New(va, 9)
	require.NoError(t, err)
	b, err := New(vb, 11)
	require.NoError(t, err)

	union, err := a.UnionWith(b)
	require.NoError(t, err)
	got, err := union.Decode()
	require.NoError(t, err)
	require.Equal(t, sortedSetUnion(va, vb), got)
}

func TestCommutativity(t *testing.T) {
	va := seqRange(0, 150, 3)
	vb := seqRange(0, 100, 5)
	a, err := New(va, 9)
	require.NoError(t, err)
	b, err := New(vb, 11)
	require.NoError(t, err)

	ab, err := a.Intersect(b)
	require.NoError(t, err)
	ba, err := b.Intersect(a)
	require.NoError(t, err)
	gotAB, err := ab.Decode()
	require.NoError(t, err)
	gotBA, err := ba.Decode()
	require.NoError(t, err)
	require.Equal(t, gotAB, gotBA)

	uab, err := a.UnionWith(b)
	require.NoError(t, err)
	uba, err := b.UnionWith(a)
	require.NoError(t, err)
	gotUAB, err := uab.Decode()
	require.NoError(t, err)
	gotUBA, err := uba.Decode()
	require.NoError(t, err)
	require.Equal(t, gotUAB, gotUBA)
}

func TestIntersectDisjointBlocksIsEmpty(t *testing.T) {
	a, err := New(seqRange(0, 20, 1), 4)
	require.NoError(t, err)
	b, err := New(seqRange(1000, 20, 1), 4)
	require.NoError(t, err)

	inter, err := a.Intersect(b)
	require.NoError(t, err)
	require.EqualValues(t, 0, inter.NElem())
	require.EqualValues(t, 0, inter.NBlocks())
}

func TestIntersectEitherEmpty(t *testing.T) {
	a, err := New(seqRange(0, 20, 1), 4)
	require.NoError(t, err)
	empty, err := New(nil, 4)
	require.NoError(t, err)

	inter, err := a.Intersect(empty)
	require.NoError(t, err)
	require.EqualValues(t, 0, inter.NElem())

	inter, err = empty.Intersect(a)
	require.NoError(t, err)
	require.EqualValues(t, 0, inter.NElem())
}

func TestUnionBlockSizeTakenFromLeftOperand(t *testing.T) {
	a, err := New(seqRange(0, 20, 1), 7)
	require.NoError(t, err)
	b, err := New(seqRange(0, 20, 1), 13)
	require.NoError(t, err)

	u, err := a.UnionWith(b)
	require.NoError(t, err)
	require.EqualValues(t, 7, u.BlockSize())

	inter, err := a.Intersect(b)
	require.NoError(t, err)
	require.EqualValues(t, 7, inter.BlockSize())
}

func TestNewRejectsUnsortedInput(t *testing.T) {
	_, err := New([]uint64{1, 3, 2}, 4)
	require.ErrorIs(t, err, ErrNotSorted)
}

func TestNewAllowsDuplicates(t *testing.T) {
	values := []uint64{1, 1, 1, 2, 2, 5}
	seq, err := New(values, 4)
	require.NoError(t, err)
	got, err := seq.Decode()
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestGetOutOfRange(t *testing.T) {
	seq, err := New([]uint64{1, 2, 3}, 4)
	require.NoError(t, err)
	_, err = seq.Get(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestDecodeBlockOutOfRange(t *testing.T) {
	seq, err := New([]uint64{1, 2, 3}, 4)
	require.NoError(t, err)
	_, err = seq.DecodeBlock(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSeek(t *testing.T) {
	values := seqRange(0, 100, 3)
	seq, err := New(values, 8)
	require.NoError(t, err)

	v, ok := seq.Seek(50)
	require.True(t, ok)
	require.Equal(t, uint64(51), v)

	_, ok = seq.Seek(values[len(values)-1] + 1)
	require.False(t, ok)

	v, ok = seq.Seek(values[0])
	require.True(t, ok)
	require.Equal(t, values[0], v)
}

func TestMinMax(t *testing.T) {
	values := seqRange(7, 50, 4)
	seq, err := New(values, 6)
	require.NoError(t, err)

	min, ok := seq.Min()
	require.True(t, ok)
	require.Equal(t, values[0], min)

	max, ok := seq.Max()
	require.True(t, ok)
	require.Equal(t, values[len(values)-1], max)

	empty, err := New(nil, 6)
	require.NoError(t, err)
	_, ok = empty.Min()
	require.False(t, ok)
	_, ok = empty.Max()
	require.False(t, ok)
}

func TestIteratorMatchesDecode(t *testing.T) {
	values := seqRange(0, 600, 2)
	seq, err := New(values, 20)
	require.NoError(t, err)

	it := seq.Iterator()
	var got []uint64
	for it.HasNext() {
		v, err := it.Next()
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, values, got)
}

func TestReverseDecode(t *testing.T) {
	values := seqRange(0, 600, 2)
	seq, err := New(values, 20)
	require.NoError(t, err)

	it := seq.ReverseDecode()
	var got []uint64
	for it.HasNext() {
		v, err := it.Next()
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Len(t, got, len(values))
	for i, v := range got {
		require.Equal(t, values[len(values)-1-i], v)
	}
}

func TestGetMetaAndShowMeta(t *testing.T) {
	seq, err := New(seqRange(0, 1000, 1), 256)
	require.NoError(t, err)
	meta := seq.GetMeta()
	require.EqualValues(t, 1000, meta.NElem)
	require.EqualValues(t, 256, meta.BlockSize)
	require.EqualValues(t, 4, meta.NBlocks)
	require.Positive(t, meta.ByteSize)
	require.NotEmpty(t, seq.ShowMeta())
}

func seqRange(start, n, step uint64) []uint64 {
	out := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		out[i] = start + i*step
	}
	return out
}

func sortedSetIntersect(a, b []uint64) []uint64 {
	bs := make(map[uint64]bool, len(b))
	for _, v := range b {
		bs[v] = true
	}
	seen := map[uint64]bool{}
	var out []uint64
	for _, v := range a {
		if bs[v] && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedSetUnion(a, b []uint64) []uint64 {
	seen := map[uint64]bool{}
	var out []uint64
	for _, v := range append(append([]uint64{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
