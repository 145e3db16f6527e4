package bbi

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	NameIndexMagic      = 0x78CA8C91
	nameIndexHeaderSize = 32
	nameValueSize       = 8
)

// NameLeaf maps a chromosome name to its dense id and length.
type NameLeaf struct {
	Key      string
	ID       uint32
	ItemSize uint32
}

// NameLeaves sorts names byte-lexicographically and assigns ids in sort
// order. sizes[i] is the length of names[i].
func NameLeaves(names []string, sizes []uint32) ([]NameLeaf, error) {
	if len(names) != len(sizes) {
		return nil, invalidf("%d names but %d sizes", len(names), len(sizes))
	}
	leaves := make([]NameLeaf, len(names))
	for i := range names {
		leaves[i] = NameLeaf{Key: names[i], ItemSize: sizes[i]}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Key < leaves[j].Key })
	if len(leaves) > math.MaxUint32 {
		return nil, invalidf("too many names: %d", len(leaves))
	}
	for i := range leaves {
		if i > 0 && leaves[i].Key == leaves[i-1].Key {
			return nil, invalidf("duplicate name %q", leaves[i].Key)
		}
		leaves[i].ID = uint32(i)
	}
	return leaves, nil
}

// nameKeySize validates the build input and returns the fixed key width.
func nameKeySize(items []NameLeaf) (int, error) {
	keySize := 0
	for i, it := range items {
		if it.Key == "" {
			return 0, invalidf("empty key at item %d", i)
		}
		if strings.IndexByte(it.Key, 0) >= 0 {
			return 0, invalidf("key %q contains NUL", it.Key)
		}
		if i > 0 && items[i-1].Key >= it.Key {
			return 0, invalidf("keys not strictly ascending at item %d: %q after %q", i, it.Key, items[i-1].Key)
		}
		keySize = max(keySize, len(it.Key))
	}
	return keySize, nil
}

func padKey(key string, keySize int) []byte {
	p := make([]byte, keySize)
	copy(p, key)
	return p
}

// BuildNameIndex bulk loads items, which must be sorted by key, into a tree
// with the given branching factor. Pages are emitted leaf level first and the
// root last; every offset is known before the header is written.
func BuildNameIndex(w *Encoder, items []NameLeaf, blockSize int) (TreeStats, error) {
	if err := checkBlockSize(blockSize); err != nil {
		return TreeStats{}, err
	}
	keySize, err := nameKeySize(items)
	if err != nil {
		return TreeStats{}, err
	}
	entrySize := keySize + nameValueSize

	plan := planLevels(len(items), blockSize)
	base := w.Pos()
	total, rootSize := planSize(plan, entrySize, entrySize)
	rootOffset := base + nameIndexHeaderSize + total - rootSize

	w.WriteU32(NameIndexMagic)
	w.WriteU32(uint32(blockSize))
	w.WriteU32(uint32(keySize))
	w.WriteU32(nameValueSize)
	w.WriteU64(uint64(len(items)))
	w.WriteU64(uint64(rootOffset))

	type nodeRef struct {
		offset int64
		key    []byte
	}
	refs := make([]nodeRef, 0, len(plan[0]))
	next := 0
	for _, count := range plan[0] {
		ref := nodeRef{offset: w.Pos(), key: make([]byte, keySize)}
		w.WriteU16(uint16(pageLeaf))
		w.WriteU16(uint16(count))
		for i, it := range items[next : next+count] {
			key := padKey(it.Key, keySize)
			if i == 0 {
				ref.key = key
			}
			w.WriteBytes(key)
			w.WriteU32(it.ID)
			w.WriteU32(it.ItemSize)
		}
		refs = append(refs, ref)
		next += count
	}
	for _, level := range plan[1:] {
		parents := make([]nodeRef, 0, len(level))
		next = 0
		for _, count := range level {
			parents = append(parents, nodeRef{offset: w.Pos(), key: refs[next].key})
			w.WriteU16(uint16(pageBranch))
			w.WriteU16(uint16(count))
			for _, child := range refs[next : next+count] {
				w.WriteBytes(child.key)
				w.WriteU64(uint64(child.offset))
			}
			next += count
		}
		refs = parents
	}
	if err := w.Flush(); err != nil {
		return TreeStats{}, err
	}
	if refs[0].offset != rootOffset {
		return TreeStats{}, layoutErr("name index root", refs[0].offset, rootOffset)
	}
	return TreeStats{
		Levels:     len(plan),
		Pages:      pageCount(plan),
		Items:      len(items),
		RootOffset: rootOffset,
		End:        w.Pos(),
	}, nil
}

// NameIndex is a read-only view of a chromosome name tree. Lookups take
// their own cursor, so one NameIndex may serve concurrent callers.
type NameIndex struct {
	codec     *Codec
	offset    int64
	blockSize int
	keySize   int
	itemCount uint64
	root      int64
	height    int
}

// OpenNameIndex reads and checks the tree header at offset.
func OpenNameIndex(c *Codec, offset int64) (*NameIndex, error) {
	d := c.Dup()
	d.Seek(offset)
	var hdr struct {
		magic, blockSize, keySize, valueSize uint32
		itemCount, root                      uint64
	}
	var err error
	read32 := func(v *uint32) {
		if err == nil {
			*v, err = d.ReadU32()
		}
	}
	read64 := func(v *uint64) {
		if err == nil {
			*v, err = d.ReadU64()
		}
	}
	read32(&hdr.magic)
	read32(&hdr.blockSize)
	read32(&hdr.keySize)
	read32(&hdr.valueSize)
	read64(&hdr.itemCount)
	read64(&hdr.root)
	if err != nil {
		return nil, readErr(offset, "name index header", err)
	}

	switch {
	case hdr.magic != NameIndexMagic:
		return nil, corruptf(offset, "name index magic", fmt.Sprintf("%#x", NameIndexMagic), fmt.Sprintf("%#x", hdr.magic))
	case hdr.blockSize < 2 || hdr.blockSize > math.MaxUint16:
		return nil, corruptf(offset+4, "name index block size", "2..65535", hdr.blockSize)
	case hdr.valueSize != nameValueSize:
		return nil, corruptf(offset+12, "name index value size", nameValueSize, hdr.valueSize)
	case hdr.itemCount > 0 && hdr.keySize == 0:
		return nil, corruptf(offset+8, "name index key size", "> 0", hdr.keySize)
	case hdr.root < uint64(offset)+nameIndexHeaderSize || hdr.root > math.MaxInt64:
		return nil, corruptf(offset+24, "name index root offset", fmt.Sprintf(">= %d", offset+nameIndexHeaderSize), hdr.root)
	}
	return &NameIndex{
		codec:     c,
		offset:    offset,
		blockSize: int(hdr.blockSize),
		keySize:   int(hdr.keySize),
		itemCount: hdr.itemCount,
		root:      int64(hdr.root),
		height:    treeHeight(hdr.itemCount, uint64(hdr.blockSize)),
	}, nil
}

func (t *NameIndex) Len() uint64 {
	return t.itemCount
}

func (t *NameIndex) BlockSize() int {
	return t.blockSize
}

func (t *NameIndex) KeySize() int {
	return t.keySize
}

func (t *NameIndex) Height() int {
	return t.height
}

// namePage is one decoded node. Leaf and branch entries share a width: the
// key followed by eight value bytes.
type namePage struct {
	offset  int64
	kind    pageKind
	count   int
	keySize int
	raw     []byte
}

func (p *namePage) entry(i int) []byte {
	w := p.keySize + nameValueSize
	return p.raw[i*w : (i+1)*w]
}

func (p *namePage) key(i int) []byte {
	return p.entry(i)[:p.keySize]
}

func (p *namePage) leaf(i int, c *Codec) NameLeaf {
	e := p.entry(i)
	return NameLeaf{
		Key:      strings.TrimRight(string(e[:p.keySize]), "\x00"),
		ID:       c.Order().Uint32(e[p.keySize:]),
		ItemSize: c.Order().Uint32(e[p.keySize+4:]),
	}
}

func (p *namePage) child(i int, c *Codec) int64 {
	return int64(c.Order().Uint64(p.entry(i)[p.keySize:]))
}

// readPage decodes the page at off, which sits depth levels below the root.
func (t *NameIndex) readPage(d *Codec, off int64, depth int) (*namePage, error) {
	d.Seek(off)
	kind, err := d.ReadU16()
	if err != nil {
		return nil, readErr(off, "name index page", err)
	}
	count, err := d.ReadU16()
	if err != nil {
		return nil, readErr(off, "name index page", err)
	}
	p := &namePage{offset: off, count: int(count), keySize: t.keySize}
	wantLeaf := depth == t.height-1
	switch pageKind(kind) {
	case pageLeaf:
		if !wantLeaf {
			return nil, corruptf(off, fmt.Sprintf("name index page kind at depth %d", depth), pageBranch, pageLeaf)
		}
		p.kind = pageLeaf
	case pageBranch:
		if wantLeaf {
			return nil, corruptf(off, fmt.Sprintf("name index page kind at depth %d", depth), pageLeaf, pageBranch)
		}
		p.kind = pageBranch
	default:
		return nil, corruptf(off, "name index page kind", "0 or 1", kind)
	}
	if p.count > t.blockSize {
		return nil, corruptf(off+2, "name index page count", fmt.Sprintf("<= %d", t.blockSize), p.count)
	}
	if p.count == 0 && t.itemCount > 0 {
		return nil, corruptf(off+2, "name index page count", "> 0", 0)
	}
	p.raw, err = d.ReadBytes(p.count * (t.keySize + nameValueSize))
	if err != nil {
		return nil, readErr(off, "name index page entries", err)
	}
	return p, nil
}

// checkChild rejects child pointers that do not point back towards the
// leaves. Pages are written bottom-up, so every child precedes its parent.
func (t *NameIndex) checkChild(p *namePage, child int64) error {
	if child < t.offset+nameIndexHeaderSize || child >= p.offset {
		return corruptf(p.offset, "name index child offset",
			fmt.Sprintf("[%d, %d)", t.offset+nameIndexHeaderSize, p.offset), child)
	}
	return nil
}

// Find looks key up with an exact, case-sensitive byte comparison. A key that
// is not in the tree yields ok == false and a nil error.
func (t *NameIndex) Find(key string) (leaf NameLeaf, ok bool, err error) {
	if t.itemCount == 0 || key == "" || len(key) > t.keySize || strings.IndexByte(key, 0) >= 0 {
		return NameLeaf{}, false, nil
	}
	want := padKey(key, t.keySize)
	d := t.codec.Dup()
	off := t.root
	for depth := 0; ; depth++ {
		p, err := t.readPage(d, off, depth)
		if err != nil {
			return NameLeaf{}, false, err
		}
		switch p.kind {
		case pageLeaf:
			i := sort.Search(p.count, func(i int) bool { return bytes.Compare(p.key(i), want) >= 0 })
			if i < p.count && bytes.Equal(p.key(i), want) {
				return p.leaf(i, d), true, nil
			}
			return NameLeaf{}, false, nil
		case pageBranch:
			// last entry whose minimum key is <= key
			i := sort.Search(p.count, func(i int) bool { return bytes.Compare(p.key(i), want) > 0 }) - 1
			if i < 0 {
				return NameLeaf{}, false, nil
			}
			off = p.child(i, d)
			if err := t.checkChild(p, off); err != nil {
				return NameLeaf{}, false, err
			}
		}
	}
}

// Traverse calls visit for every leaf in key order. A visit error stops the
// walk and is returned unchanged.
func (t *NameIndex) Traverse(visit func(NameLeaf) error) error {
	return t.traverse(t.codec.Dup(), t.root, 0, visit)
}

func (t *NameIndex) traverse(d *Codec, off int64, depth int, visit func(NameLeaf) error) error {
	p, err := t.readPage(d, off, depth)
	if err != nil {
		return err
	}
	switch p.kind {
	case pageLeaf:
		for i := 0; i < p.count; i++ {
			if err := visit(p.leaf(i, d)); err != nil {
				return err
			}
		}
	case pageBranch:
		for i := 0; i < p.count; i++ {
			child := p.child(i, d)
			if err := t.checkChild(p, child); err != nil {
				return err
			}
			if err := t.traverse(d, child, depth+1, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// Leaves returns every entry in key order.
func (t *NameIndex) Leaves() ([]NameLeaf, error) {
	out := make([]NameLeaf, 0, min(t.itemCount, 1<<16))
	err := t.Traverse(func(l NameLeaf) error {
		out = append(out, l)
		return nil
	})
	return out, err
}
