package bbi

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRangeIndex(t *testing.T, order binary.ByteOrder, records []RangeRecord, blockSize, itemsPerSlot int) ([]byte, TreeStats) {
	t.Helper()
	var buf bytes.Buffer
	stats, err := BuildRangeIndex(NewEncoder(&buf, order, 0), records, blockSize, itemsPerSlot)
	require.NoError(t, err)
	return buf.Bytes(), stats
}

func openRangeIndex(t *testing.T, order binary.ByteOrder, p []byte) *RangeIndex {
	t.Helper()
	idx, err := OpenRangeIndex(NewBytesCodec(p, order), 0)
	require.NoError(t, err)
	return idx
}

// contiguousRecords assigns back to back payload offsets in input order.
func contiguousRecords(intervals []Interval) []RangeRecord {
	records := make([]RangeRecord, len(intervals))
	off := uint64(1000)
	for i, iv := range intervals {
		size := uint32(10 + i%7)
		records[i] = RangeRecord{Interval: iv, Offset: off, Size: size}
		off += uint64(size)
	}
	return records
}

// randomIntervals returns sorted, per chromosome non-overlapping intervals.
func randomIntervals(rng *rand.Rand, chroms, perChrom int) []Interval {
	var out []Interval
	for c := 0; c < chroms; c++ {
		pos := uint32(rng.Intn(50))
		for i := 0; i < perChrom; i++ {
			start := pos + uint32(rng.Intn(100))
			end := start + 1 + uint32(rng.Intn(200))
			out = append(out, NewInterval(uint32(c), start, end))
			pos = end
		}
	}
	return out
}

func randomQuery(rng *rand.Rand, chroms int) Interval {
	left := Offset{ChromIx: uint32(rng.Intn(chroms + 1)), Base: uint32(rng.Intn(20000))}
	if rng.Intn(5) == 0 {
		// occasionally span several chromosomes
		right := Offset{ChromIx: left.ChromIx + uint32(rng.Intn(3)), Base: uint32(rng.Intn(20000))}
		if right.Less(left) {
			left, right = right, left
		}
		return Interval{Left: left, Right: right}
	}
	return Interval{Left: left, Right: Offset{left.ChromIx, left.Base + uint32(rng.Intn(3000))}}
}

func bruteForce(leaves []RangeLeaf, q Interval) []RangeLeaf {
	var out []RangeLeaf
	for _, l := range leaves {
		if l.Interval.Overlaps(q) {
			out = append(out, l)
		}
	}
	return out
}

func TestRangeIndexBoundaryExactness(t *testing.T) {
	records := contiguousRecords([]Interval{
		NewInterval(0, 100, 200),
		NewInterval(1, 100, 200),
	})
	for _, bo := range byteOrders {
		t.Run(bo.name, func(t *testing.T) {
			p, _ := buildRangeIndex(t, bo.order, records, 2, 1)
			idx := openRangeIndex(t, bo.order, p)
			ctx := context.Background()

			tests := []struct {
				name     string
				q        Interval
				expected []uint64
			}{
				{"overlaps same chrom", NewInterval(0, 150, 250), []uint64{records[0].Offset}},
				{"touching end excluded", NewInterval(0, 200, 300), nil},
				{"touching start excluded", NewInterval(0, 0, 100), nil},
				{"overlaps other chrom", NewInterval(1, 150, 250), []uint64{records[1].Offset}},
				{"cross chrom query", Interval{Left: Offset{0, 150}, Right: Offset{1, 150}}, []uint64{records[0].Offset, records[1].Offset}},
				{"missing chrom", NewInterval(2, 0, 1000), nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					leaves, err := idx.Overlapping(ctx, tt.q)
					require.NoError(t, err)
					var got []uint64
					for _, l := range leaves {
						got = append(got, l.DataOffset)
					}
					assert.Equal(t, tt.expected, got)
				})
			}
		})
	}
}

func TestRangeIndexCrossChromosomeSpanning(t *testing.T) {
	records := contiguousRecords([]Interval{
		NewInterval(0, 10, 20),
		NewInterval(0, 30, 40),
		{Left: Offset{1, 500}, Right: Offset{3, 100}},
		NewInterval(3, 200, 300),
		NewInterval(4, 0, 10),
	})
	for _, blockSize := range []int{2, 3, 8} {
		t.Run(fmt.Sprintf("blocksize %d", blockSize), func(t *testing.T) {
			p, stats := buildRangeIndex(t, binary.LittleEndian, records, blockSize, 1)
			idx := openRangeIndex(t, binary.LittleEndian, p)
			assert.Equal(t, treeHeight(5, uint64(blockSize)), stats.Levels)
			assert.Equal(t, Interval{Left: Offset{0, 10}, Right: Offset{4, 10}}, idx.Bounds())

			leaves, err := idx.Query(context.Background(), 2, 1000, 2000)
			require.NoError(t, err)
			require.Len(t, leaves, 1)
			assert.Equal(t, records[2].Offset, leaves[0].DataOffset)
			assert.Equal(t, records[2].Interval, leaves[0].Interval)
		})
	}
}

func TestRangeIndexOverlapCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const chroms = 6
	records := contiguousRecords(randomIntervals(rng, chroms, 40))
	ctx := context.Background()

	for _, blockSize := range []int{2, 3, 4, 17} {
		for _, itemsPerSlot := range []int{1, 3, 64} {
			t.Run(fmt.Sprintf("blocksize %d slot %d", blockSize, itemsPerSlot), func(t *testing.T) {
				p, stats := buildRangeIndex(t, binary.BigEndian, records, blockSize, itemsPerSlot)
				idx := openRangeIndex(t, binary.BigEndian, p)
				assert.EqualValues(t, len(records), idx.Len())
				assert.Equal(t, stats.Levels, idx.Height())

				all, err := groupRecords(records, itemsPerSlot)
				require.NoError(t, err)
				for i := 0; i < 300; i++ {
					q := randomQuery(rng, chroms)
					got, err := idx.Overlapping(ctx, q)
					require.NoError(t, err)
					assert.Equal(t, bruteForce(all, q), got, "query %s", q)
				}
			})
		}
	}
}

func TestRangeIndexResultOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	records := contiguousRecords(randomIntervals(rng, 3, 100))
	p, _ := buildRangeIndex(t, binary.LittleEndian, records, 4, 2)
	idx := openRangeIndex(t, binary.LittleEndian, p)

	everything := Interval{Left: Offset{0, 0}, Right: Offset{3, 0}}
	leaves, err := idx.Overlapping(context.Background(), everything)
	require.NoError(t, err)
	require.Len(t, leaves, 150)
	for i := 1; i < len(leaves); i++ {
		assert.True(t, leaves[i-1].Interval.Left.Compare(leaves[i].Interval.Left) <= 0)
		assert.Less(t, leaves[i-1].DataOffset, leaves[i].DataOffset, "no duplicates")
	}
}

func TestGroupRecords(t *testing.T) {
	records := []RangeRecord{
		{Interval: NewInterval(0, 0, 50), Offset: 100, Size: 10},
		{Interval: NewInterval(0, 10, 20), Offset: 110, Size: 10},
		{Interval: NewInterval(0, 40, 90), Offset: 120, Size: 5},
		{Interval: NewInterval(1, 0, 5), Offset: 125, Size: 7},
	}
	leaves, err := groupRecords(records, 3)
	require.NoError(t, err)
	assert.Equal(t, []RangeLeaf{
		{Interval: NewInterval(0, 0, 90), DataOffset: 100, DataSize: 25},
		{Interval: NewInterval(1, 0, 5), DataOffset: 125, DataSize: 7},
	}, leaves)

	_, err = groupRecords([]RangeRecord{
		{Interval: NewInterval(0, 0, 1), Offset: 0, Size: 1},
		{Interval: NewInterval(0, 1, 2), Offset: 1 << 33, Size: 1},
	}, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRangeIndexEmpty(t *testing.T) {
	p, stats := buildRangeIndex(t, binary.LittleEndian, nil, 4, 8)
	assert.Equal(t, 1, stats.Levels)
	assert.Len(t, p, rangeIndexHeaderSize+nodeHeaderSize)

	idx := openRangeIndex(t, binary.LittleEndian, p)
	leaves, err := idx.Query(context.Background(), 0, 0, 1<<30)
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func TestBuildRangeIndexInvalid(t *testing.T) {
	sorted := contiguousRecords([]Interval{NewInterval(0, 0, 10), NewInterval(0, 5, 20)})
	tests := []struct {
		name         string
		records      []RangeRecord
		blockSize    int
		itemsPerSlot int
	}{
		{"items per slot 0", sorted, 4, 0},
		{"block size 1", sorted, 1, 4},
		{"unsorted", []RangeRecord{sorted[1], sorted[0]}, 4, 4},
		{"reversed interval", []RangeRecord{{Interval: Interval{Left: Offset{1, 0}, Right: Offset{0, 10}}}}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := BuildRangeIndex(NewEncoder(&buf, binary.LittleEndian, 0), tt.records, tt.blockSize, tt.itemsPerSlot)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestRangeIndexInvalidQuery(t *testing.T) {
	p, _ := buildRangeIndex(t, binary.LittleEndian, contiguousRecords([]Interval{NewInterval(0, 0, 10)}), 4, 4)
	idx := openRangeIndex(t, binary.LittleEndian, p)
	ctx := context.Background()

	err := idx.FindOverlapping(ctx, Interval{Left: Offset{0, 10}, Right: Offset{0, 5}}, func(RangeLeaf) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidArgument)

	for _, args := range [][3]int{{-1, 0, 10}, {0, -5, 10}, {0, 10, -1}, {0, 20, 10}, {0, 0, 1 << 40}} {
		_, err := idx.Query(ctx, args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidArgument, "%v", args)
	}
}

func TestRangeIndexDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	records := contiguousRecords(randomIntervals(rng, 4, 50))
	a, _ := buildRangeIndex(t, binary.LittleEndian, records, 5, 3)
	b, _ := buildRangeIndex(t, binary.LittleEndian, records, 5, 3)
	assert.Equal(t, a, b)
}

func TestRangeIndexCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	records := contiguousRecords(randomIntervals(rng, 2, 50))
	p, _ := buildRangeIndex(t, binary.LittleEndian, records, 3, 1)
	idx := openRangeIndex(t, binary.LittleEndian, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Overlapping(ctx, idx.Bounds())
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	seen := 0
	err = idx.FindOverlapping(ctx, idx.Bounds(), func(RangeLeaf) error {
		seen++
		if seen == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, seen, "the cancelled leaf page is finished, no further page is read")
}

func TestRangeIndexVisitError(t *testing.T) {
	records := contiguousRecords([]Interval{NewInterval(0, 0, 10), NewInterval(0, 10, 20), NewInterval(0, 20, 30)})
	p, _ := buildRangeIndex(t, binary.LittleEndian, records, 2, 1)
	idx := openRangeIndex(t, binary.LittleEndian, p)

	stop := errors.New("enough")
	err := idx.FindOverlapping(context.Background(), idx.Bounds(), func(RangeLeaf) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestRangeIndexConcurrentQueries(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const chroms = 5
	records := contiguousRecords(randomIntervals(rng, chroms, 60))
	p, _ := buildRangeIndex(t, binary.LittleEndian, records, 4, 2)
	idx := openRangeIndex(t, binary.LittleEndian, p)

	queries := make([]Interval, 50)
	expected := make([][]RangeLeaf, len(queries))
	for i := range queries {
		queries[i] = randomQuery(rng, chroms)
		var err error
		expected[i], err = idx.Overlapping(context.Background(), queries[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				for i := range queries {
					j := (i + g) % len(queries)
					got, err := idx.Overlapping(context.Background(), queries[j])
					assert.NoError(t, err)
					assert.Equal(t, expected[j], got)
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestRangeIndexCorrupt(t *testing.T) {
	records := contiguousRecords([]Interval{NewInterval(0, 0, 10), NewInterval(0, 10, 20), NewInterval(1, 0, 10)})
	good, stats := buildRangeIndex(t, binary.LittleEndian, records, 2, 1)
	corrupt := func(edit func(p []byte)) []byte {
		p := append([]byte(nil), good...)
		edit(p)
		return p
	}
	q := Interval{Left: Offset{0, 0}, Right: Offset{2, 0}}

	t.Run("bad magic", func(t *testing.T) {
		_, err := OpenRangeIndex(NewBytesCodec(corrupt(func(p []byte) { p[1] = 0 }), binary.LittleEndian), 0)
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("file size mismatch", func(t *testing.T) {
		p := corrupt(func(p []byte) { binary.LittleEndian.PutUint64(p[36:], 999) })
		_, err := OpenRangeIndex(NewBytesCodec(p, binary.LittleEndian), 0)
		var cerr *CorruptIndexError
		require.True(t, errors.As(err, &cerr))
		assert.EqualValues(t, 36, cerr.Offset)
	})
	t.Run("items per slot zero", func(t *testing.T) {
		p := corrupt(func(p []byte) { binary.LittleEndian.PutUint32(p[8:], 0) })
		_, err := OpenRangeIndex(NewBytesCodec(p, binary.LittleEndian), 0)
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("truncated", func(t *testing.T) {
		idx := openRangeIndex(t, binary.LittleEndian, good[:stats.RootOffset+6])
		_, err := idx.Overlapping(context.Background(), q)
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("bad page kind", func(t *testing.T) {
		idx := openRangeIndex(t, binary.LittleEndian, corrupt(func(p []byte) { p[stats.RootOffset] = 7 }))
		_, err := idx.Overlapping(context.Background(), q)
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("child loops to root", func(t *testing.T) {
		idx := openRangeIndex(t, binary.LittleEndian, corrupt(func(p []byte) {
			binary.LittleEndian.PutUint64(p[stats.RootOffset+nodeHeaderSize+16:], uint64(stats.RootOffset))
		}))
		_, err := idx.Overlapping(context.Background(), q)
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
}
