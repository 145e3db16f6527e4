package bbi

import "math"

// pageKind tags every on-disk node page. The numeric values are the wire
// values of the isLeaf field.
type pageKind uint8

const (
	pageBranch pageKind = 0
	pageLeaf   pageKind = 1
)

const nodeHeaderSize = 4

func (k pageKind) String() string {
	switch k {
	case pageBranch:
		return "branch"
	case pageLeaf:
		return "leaf"
	}
	return "unknown"
}

// TreeStats summarises a tree written by one of the builders.
type TreeStats struct {
	Levels     int
	Pages      int
	Items      int
	RootOffset int64
	End        int64 // absolute offset one past the last byte written
}

// planLevels returns, bottom-up, the entry count of every page of a tree
// holding n leaf entries with the given branching factor. The top level
// always has exactly one page; an empty tree is a single empty leaf.
func planLevels(n, blockSize int) [][]int {
	level := chunkCounts(n, blockSize)
	levels := [][]int{level}
	for len(level) > 1 {
		level = chunkCounts(len(level), blockSize)
		levels = append(levels, level)
	}
	return levels
}

func chunkCounts(n, size int) []int {
	if n == 0 {
		return []int{0}
	}
	out := make([]int, 0, (n+size-1)/size)
	for n > 0 {
		k := min(n, size)
		out = append(out, k)
		n -= k
	}
	return out
}

// treeHeight is max(1, ceil(log_blockSize(n))).
func treeHeight(n uint64, blockSize uint64) int {
	h := 1
	for capacity := blockSize; capacity < n; capacity *= blockSize {
		h++
		if capacity > math.MaxUint64/blockSize {
			break
		}
	}
	return h
}

// planSize returns the total byte size of all pages in plan and the byte
// size of the root page. Leaf and branch entries may differ in width.
func planSize(plan [][]int, leafEntry, branchEntry int) (total, root int64) {
	for i, level := range plan {
		entry := branchEntry
		if i == 0 {
			entry = leafEntry
		}
		for _, count := range level {
			root = int64(nodeHeaderSize + count*entry)
			total += root
		}
	}
	return total, root
}

func pageCount(plan [][]int) int {
	n := 0
	for _, level := range plan {
		n += len(level)
	}
	return n
}

func checkBlockSize(blockSize int) error {
	if blockSize < 2 {
		return invalidf("block size %d, need at least 2", blockSize)
	}
	if blockSize > math.MaxUint16 {
		return invalidf("block size %d exceeds %d", blockSize, math.MaxUint16)
	}
	return nil
}
