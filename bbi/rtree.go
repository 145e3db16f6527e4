package bbi

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	RangeIndexMagic      = 0x2468ACE0
	rangeIndexHeaderSize = 52
	rangeBranchEntrySize = 24
	rangeLeafEntrySize   = 28
)

// RangeRecord is one build input: the region covered by a payload and where
// the payload lives.
type RangeRecord struct {
	Interval Interval
	Offset   uint64
	Size     uint32
}

// RangeLeaf locates the bytes of one group of records.
type RangeLeaf struct {
	Interval   Interval
	DataOffset uint64
	DataSize   uint32
}

func checkRecords(records []RangeRecord) error {
	for i, r := range records {
		if !r.Interval.Valid() {
			return invalidf("record %d: interval %s has left > right", i, r.Interval)
		}
		if i > 0 && r.Interval.Left.Less(records[i-1].Interval.Left) {
			return invalidf("records not sorted by start: record %d starts at %s before %s",
				i, r.Interval.Left, records[i-1].Interval.Left)
		}
	}
	return nil
}

// groupRecords cuts records into consecutive groups of itemsPerSlot. Each
// group's leaf covers the union of its intervals and the byte span from the
// lowest payload offset to the highest payload end.
func groupRecords(records []RangeRecord, itemsPerSlot int) ([]RangeLeaf, error) {
	leaves := make([]RangeLeaf, 0, (len(records)+itemsPerSlot-1)/itemsPerSlot)
	for start := 0; start < len(records); start += itemsPerSlot {
		group := records[start:min(start+itemsPerSlot, len(records))]
		iv := group[0].Interval
		lo := group[0].Offset
		hi := group[0].Offset + uint64(group[0].Size)
		for _, r := range group[1:] {
			iv = iv.Union(r.Interval)
			lo = min(lo, r.Offset)
			hi = max(hi, r.Offset+uint64(r.Size))
		}
		if hi-lo > math.MaxUint32 {
			return nil, invalidf("records %d..%d span %d bytes, more than a leaf can address",
				start, start+len(group)-1, hi-lo)
		}
		leaves = append(leaves, RangeLeaf{Interval: iv, DataOffset: lo, DataSize: uint32(hi - lo)})
	}
	return leaves, nil
}

func (e *Encoder) writeInterval(iv Interval) {
	e.WriteU32(iv.Left.ChromIx)
	e.WriteU32(iv.Left.Base)
	e.WriteU32(iv.Right.ChromIx)
	e.WriteU32(iv.Right.Base)
}

// BuildRangeIndex bulk loads records, sorted by interval start, into a tree.
// Records are grouped itemsPerSlot at a time into leaves, leaves blockSize at
// a time into pages, and pages blockSize at a time into parents until one
// root remains. The header's file size field is the offset the header is
// written at.
func BuildRangeIndex(w *Encoder, records []RangeRecord, blockSize, itemsPerSlot int) (TreeStats, error) {
	if err := checkBlockSize(blockSize); err != nil {
		return TreeStats{}, err
	}
	if itemsPerSlot < 1 || uint64(itemsPerSlot) > math.MaxUint32 {
		return TreeStats{}, invalidf("items per slot %d out of range", itemsPerSlot)
	}
	if err := checkRecords(records); err != nil {
		return TreeStats{}, err
	}
	leaves, err := groupRecords(records, itemsPerSlot)
	if err != nil {
		return TreeStats{}, err
	}
	var bounds Interval
	for i, l := range leaves {
		if i == 0 {
			bounds = l.Interval
			continue
		}
		bounds = bounds.Union(l.Interval)
	}

	plan := planLevels(len(leaves), blockSize)
	base := w.Pos()
	total, rootSize := planSize(plan, rangeLeafEntrySize, rangeBranchEntrySize)
	rootOffset := base + rangeIndexHeaderSize + total - rootSize

	w.WriteU32(RangeIndexMagic)
	w.WriteU32(uint32(blockSize))
	w.WriteU32(uint32(itemsPerSlot))
	w.WriteU64(uint64(len(records)))
	w.writeInterval(bounds)
	w.WriteU64(uint64(base))
	w.WriteU64(uint64(rootOffset))

	type nodeRef struct {
		offset   int64
		interval Interval
	}
	refs := make([]nodeRef, 0, len(plan[0]))
	next := 0
	for _, count := range plan[0] {
		ref := nodeRef{offset: w.Pos()}
		w.WriteU8(uint8(pageLeaf))
		w.WriteU8(0)
		w.WriteU16(uint16(count))
		for i, l := range leaves[next : next+count] {
			if i == 0 {
				ref.interval = l.Interval
			} else {
				ref.interval = ref.interval.Union(l.Interval)
			}
			w.writeInterval(l.Interval)
			w.WriteU64(l.DataOffset)
			w.WriteU32(l.DataSize)
		}
		refs = append(refs, ref)
		next += count
	}
	for _, level := range plan[1:] {
		parents := make([]nodeRef, 0, len(level))
		next = 0
		for _, count := range level {
			parent := nodeRef{offset: w.Pos(), interval: refs[next].interval}
			w.WriteU8(uint8(pageBranch))
			w.WriteU8(0)
			w.WriteU16(uint16(count))
			for _, child := range refs[next : next+count] {
				parent.interval = parent.interval.Union(child.interval)
				w.writeInterval(child.interval)
				w.WriteU64(uint64(child.offset))
			}
			parents = append(parents, parent)
			next += count
		}
		refs = parents
	}
	if err := w.Flush(); err != nil {
		return TreeStats{}, err
	}
	if refs[0].offset != rootOffset {
		return TreeStats{}, layoutErr("range index root", refs[0].offset, rootOffset)
	}
	return TreeStats{
		Levels:     len(plan),
		Pages:      pageCount(plan),
		Items:      len(records),
		RootOffset: rootOffset,
		End:        w.Pos(),
	}, nil
}

// RangeIndex is a read-only view of a spatial block index. Queries take their
// own cursor, so one RangeIndex may serve concurrent callers.
type RangeIndex struct {
	codec        *Codec
	offset       int64
	blockSize    int
	itemsPerSlot int
	itemCount    uint64
	bounds       Interval
	fileSize     uint64
	root         int64
	height       int
}

// OpenRangeIndex reads and checks the tree header at offset.
func OpenRangeIndex(c *Codec, offset int64) (*RangeIndex, error) {
	d := c.Dup()
	d.Seek(offset)
	p, err := d.ReadBytes(rangeIndexHeaderSize)
	if err != nil {
		return nil, readErr(offset, "range index header", err)
	}
	o := c.Order()
	magic := o.Uint32(p[0:])
	blockSize := o.Uint32(p[4:])
	itemsPerSlot := o.Uint32(p[8:])
	itemCount := o.Uint64(p[12:])
	bounds := decodeInterval(o, p[20:])
	fileSize := o.Uint64(p[36:])
	root := o.Uint64(p[44:])

	switch {
	case magic != RangeIndexMagic:
		return nil, corruptf(offset, "range index magic", fmt.Sprintf("%#x", RangeIndexMagic), fmt.Sprintf("%#x", magic))
	case blockSize < 2 || blockSize > math.MaxUint16:
		return nil, corruptf(offset+4, "range index block size", "2..65535", blockSize)
	case itemsPerSlot < 1:
		return nil, corruptf(offset+8, "range index items per slot", ">= 1", itemsPerSlot)
	case itemCount > 0 && !bounds.Valid():
		return nil, corruptf(offset+20, "range index bounds", "left <= right", bounds)
	case fileSize != uint64(offset):
		return nil, corruptf(offset+36, "range index file size", offset, fileSize)
	case root < uint64(offset)+rangeIndexHeaderSize || root > math.MaxInt64:
		return nil, corruptf(offset+44, "range index root offset", fmt.Sprintf(">= %d", offset+rangeIndexHeaderSize), root)
	}
	leafEntries := itemCount / uint64(itemsPerSlot)
	if itemCount%uint64(itemsPerSlot) != 0 {
		leafEntries++
	}
	return &RangeIndex{
		codec:        c,
		offset:       offset,
		blockSize:    int(blockSize),
		itemsPerSlot: int(itemsPerSlot),
		itemCount:    itemCount,
		bounds:       bounds,
		fileSize:     fileSize,
		root:         int64(root),
		height:       treeHeight(leafEntries, uint64(blockSize)),
	}, nil
}

func decodeInterval(o binary.ByteOrder, p []byte) Interval {
	return Interval{
		Left:  Offset{ChromIx: o.Uint32(p[0:]), Base: o.Uint32(p[4:])},
		Right: Offset{ChromIx: o.Uint32(p[8:]), Base: o.Uint32(p[12:])},
	}
}

// Len is the number of records the index was built from.
func (t *RangeIndex) Len() uint64 {
	return t.itemCount
}

// Bounds is the interval covering every record.
func (t *RangeIndex) Bounds() Interval {
	return t.bounds
}

func (t *RangeIndex) BlockSize() int {
	return t.blockSize
}

func (t *RangeIndex) ItemsPerSlot() int {
	return t.itemsPerSlot
}

func (t *RangeIndex) Height() int {
	return t.height
}

type rangePage struct {
	offset int64
	kind   pageKind
	count  int
	raw    []byte
}

func (p *rangePage) entrySize() int {
	if p.kind == pageLeaf {
		return rangeLeafEntrySize
	}
	return rangeBranchEntrySize
}

func (p *rangePage) entry(i int) []byte {
	w := p.entrySize()
	return p.raw[i*w : (i+1)*w]
}

func (t *RangeIndex) readPage(d *Codec, off int64, depth int) (*rangePage, error) {
	d.Seek(off)
	hdr, err := d.ReadBytes(nodeHeaderSize)
	if err != nil {
		return nil, readErr(off, "range index page", err)
	}
	p := &rangePage{offset: off, count: int(d.Order().Uint16(hdr[2:]))}
	wantLeaf := depth == t.height-1
	switch pageKind(hdr[0]) {
	case pageLeaf:
		if !wantLeaf {
			return nil, corruptf(off, fmt.Sprintf("range index page kind at depth %d", depth), pageBranch, pageLeaf)
		}
		p.kind = pageLeaf
	case pageBranch:
		if wantLeaf {
			return nil, corruptf(off, fmt.Sprintf("range index page kind at depth %d", depth), pageLeaf, pageBranch)
		}
		p.kind = pageBranch
	default:
		return nil, corruptf(off, "range index page kind", "0 or 1", hdr[0])
	}
	if p.count > t.blockSize {
		return nil, corruptf(off+2, "range index page count", fmt.Sprintf("<= %d", t.blockSize), p.count)
	}
	if p.count == 0 && t.itemCount > 0 {
		return nil, corruptf(off+2, "range index page count", "> 0", 0)
	}
	p.raw, err = d.ReadBytes(p.count * p.entrySize())
	if err != nil {
		return nil, readErr(off, "range index page entries", err)
	}
	return p, nil
}

// validateQuery rejects a query interval whose left end lies after its right end.
func validateQuery(q Interval) error {
	if !q.Valid() {
		return invalidf("query interval %s has left > right", q)
	}
	return nil
}

// FindOverlapping calls visit, in ascending start order, for every leaf whose
// interval overlaps q. ctx is checked once per visited page. A visit error
// stops the search and is returned unchanged.
func (t *RangeIndex) FindOverlapping(ctx context.Context, q Interval, visit func(RangeLeaf) error) error {
	if err := validateQuery(q); err != nil {
		return err
	}
	if t.itemCount == 0 || !t.bounds.Overlaps(q) {
		return nil
	}
	return t.findOverlapping(ctx, t.codec.Dup(), t.root, 0, q, visit)
}

func (t *RangeIndex) findOverlapping(ctx context.Context, d *Codec, off int64, depth int, q Interval, visit func(RangeLeaf) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := t.readPage(d, off, depth)
	if err != nil {
		return err
	}
	o := d.Order()
	for i := 0; i < p.count; i++ {
		e := p.entry(i)
		iv := decodeInterval(o, e)
		if !iv.Left.Less(q.Right) {
			// entries are sorted by start; nothing further can overlap
			break
		}
		if !iv.Overlaps(q) {
			continue
		}
		switch p.kind {
		case pageLeaf:
			leaf := RangeLeaf{Interval: iv, DataOffset: o.Uint64(e[16:]), DataSize: o.Uint32(e[24:])}
			if err := visit(leaf); err != nil {
				return err
			}
		case pageBranch:
			child := int64(o.Uint64(e[16:]))
			if child < t.offset+rangeIndexHeaderSize || child >= p.offset {
				return corruptf(p.offset, "range index child offset",
					fmt.Sprintf("[%d, %d)", t.offset+rangeIndexHeaderSize, p.offset), child)
			}
			if err := t.findOverlapping(ctx, d, child, depth+1, q, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// Overlapping collects the leaves FindOverlapping would visit.
func (t *RangeIndex) Overlapping(ctx context.Context, q Interval) ([]RangeLeaf, error) {
	var out []RangeLeaf
	err := t.FindOverlapping(ctx, q, func(l RangeLeaf) error {
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query looks up [start, end) on a single chromosome. Negative or oversized
// arguments are rejected before any page is read.
func (t *RangeIndex) Query(ctx context.Context, chromIx, start, end int) ([]RangeLeaf, error) {
	q, err := queryInterval(chromIx, start, end)
	if err != nil {
		return nil, err
	}
	return t.Overlapping(ctx, q)
}

func queryInterval(chromIx, start, end int) (Interval, error) {
	switch {
	case chromIx < 0 || uint64(chromIx) > math.MaxUint32:
		return Interval{}, invalidf("chromosome id %d out of range", chromIx)
	case start < 0 || end < 0:
		return Interval{}, invalidf("negative position in [%d, %d)", start, end)
	case uint64(start) > math.MaxUint32 || uint64(end) > math.MaxUint32:
		return Interval{}, invalidf("position in [%d, %d) exceeds 32 bits", start, end)
	case start > end:
		return Interval{}, invalidf("start %d after end %d", start, end)
	}
	return NewInterval(uint32(chromIx), uint32(start), uint32(end)), nil
}
