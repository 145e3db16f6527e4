package bbi

import "fmt"

// Offset is a composite genome coordinate. Chromosome index is the primary
// sort key, base position the secondary one.
type Offset struct {
	ChromIx uint32
	Base    uint32
}

// Compare returns -1, 0 or 1 as o sorts before, equal to or after p.
func (o Offset) Compare(p Offset) int {
	switch {
	case o.ChromIx < p.ChromIx:
		return -1
	case o.ChromIx > p.ChromIx:
		return 1
	case o.Base < p.Base:
		return -1
	case o.Base > p.Base:
		return 1
	}
	return 0
}

func (o Offset) Less(p Offset) bool {
	return o.Compare(p) < 0
}

func (o Offset) String() string {
	return fmt.Sprintf("%d:%d", o.ChromIx, o.Base)
}

func minOffset(a, b Offset) Offset {
	if b.Less(a) {
		return b
	}
	return a
}

func maxOffset(a, b Offset) Offset {
	if a.Less(b) {
		return b
	}
	return a
}

// Interval is the right-open region [Left, Right). When Left and Right sit on
// different chromosomes the interval covers every chromosome in between in
// full.
type Interval struct {
	Left  Offset
	Right Offset
}

// NewInterval returns the single-chromosome interval [start, end) on chromIx.
func NewInterval(chromIx, start, end uint32) Interval {
	return Interval{
		Left:  Offset{ChromIx: chromIx, Base: start},
		Right: Offset{ChromIx: chromIx, Base: end},
	}
}

// Valid reports whether Left <= Right.
func (iv Interval) Valid() bool {
	return iv.Left.Compare(iv.Right) <= 0
}

// Empty reports whether the interval covers no position.
func (iv Interval) Empty() bool {
	return iv.Left.Compare(iv.Right) >= 0
}

// Overlaps uses the half-open rule a0 < b1 && b0 < a1 under composite order.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Left.Less(other.Right) && other.Left.Less(iv.Right)
}

// Contains reports whether o falls inside [Left, Right).
func (iv Interval) Contains(o Offset) bool {
	return iv.Left.Compare(o) <= 0 && o.Less(iv.Right)
}

// Union returns the smallest interval covering both iv and other.
func (iv Interval) Union(other Interval) Interval {
	return Interval{
		Left:  minOffset(iv.Left, other.Left),
		Right: maxOffset(iv.Right, other.Right),
	}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Left, iv.Right)
}
