package bbi

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader resolves chromosome names and intervals of a BigWig or BigBed file
// to data blocks. It holds no mutable state once opened, so its methods may
// be called concurrently as long as the underlying io.ReaderAt allows it.
type Reader struct {
	Header    *Header
	Chroms    *NameIndex
	Index     *RangeIndex
	IndexZoom []*RangeIndex
	codec     *Codec
	cfg       *Config
}

// Open reads the header, detects the byte order from the magic and opens the
// name index, the full resolution range index and one range index per zoom
// level.
func Open(r io.ReaderAt, cfg *Config) (*Reader, error) {
	cfg = cfg.OrDefault()
	p := make([]byte, 4)
	if n, err := r.ReadAt(p, 0); n < len(p) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, readErr(0, "bbi magic", err)
	}
	order, _, err := DetectByteOrder(p)
	if err != nil {
		return nil, err
	}
	codec := NewCodec(r, order)
	hdr, err := ReadHeader(codec)
	if err != nil {
		return nil, err
	}
	bwf := &Reader{Header: hdr, codec: codec, cfg: cfg}
	if bwf.Chroms, err = OpenNameIndex(codec, int64(hdr.CtOffset)); err != nil {
		return nil, fmt.Errorf("chromosome tree: %w", err)
	}
	if bwf.Index, err = OpenRangeIndex(codec, int64(hdr.IndexOffset)); err != nil {
		return nil, fmt.Errorf("data index: %w", err)
	}
	bwf.IndexZoom = make([]*RangeIndex, len(hdr.ZoomHeaders))
	for i, z := range hdr.ZoomHeaders {
		if bwf.IndexZoom[i], err = OpenRangeIndex(codec, int64(z.IndexOffset)); err != nil {
			return nil, fmt.Errorf("zoom level %d index: %w", i, err)
		}
	}
	cfg.infof("opened %s (%s): %d chromosomes, %d records, %d zoom levels",
		formatName(hdr.Magic), orderName(order), bwf.Chroms.Len(), bwf.Index.Len(), len(bwf.IndexZoom))
	return bwf, nil
}

func formatName(magic uint32) string {
	if magic == BIGWIG_MAGIC {
		return "bigwig"
	}
	return "bigbed"
}

func orderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big endian"
	}
	return "little endian"
}

func (bwf *Reader) ByteOrder() binary.ByteOrder {
	return bwf.codec.Order()
}

// Genome reconstructs the full chromosome table from the name index.
func (bwf *Reader) Genome() (*Genome, error) {
	leaves, err := bwf.Chroms.Leaves()
	if err != nil {
		return nil, err
	}
	return NewGenome(leaves)
}

// Locate resolves a chromosome name to its id and length.
func (bwf *Reader) Locate(chrom string) (NameLeaf, error) {
	leaf, ok, err := bwf.Chroms.Find(chrom)
	if err != nil {
		return NameLeaf{}, err
	}
	if !ok {
		return NameLeaf{}, fmt.Errorf("%w: %q", ErrUnknownChrom, chrom)
	}
	if uint64(leaf.ID) >= bwf.Chroms.Len() {
		return NameLeaf{}, corruptf(int64(bwf.Header.CtOffset), fmt.Sprintf("id of %q", chrom),
			fmt.Sprintf("< %d", bwf.Chroms.Len()), leaf.ID)
	}
	return leaf, nil
}

// BlocksByID queries the full resolution index. The chromosome id must be one
// the name index knows.
func (bwf *Reader) BlocksByID(ctx context.Context, chromIx, start, end int) ([]RangeLeaf, error) {
	return bwf.blocks(ctx, bwf.Index, chromIx, start, end)
}

func (bwf *Reader) blocks(ctx context.Context, index *RangeIndex, chromIx, start, end int) ([]RangeLeaf, error) {
	if chromIx >= 0 && uint64(chromIx) >= bwf.Chroms.Len() {
		return nil, invalidf("chromosome id %d out of range, file has %d", chromIx, bwf.Chroms.Len())
	}
	leaves, err := index.Query(ctx, chromIx, start, end)
	if err != nil {
		return nil, err
	}
	bwf.cfg.debugf("query %d:%d-%d: %d blocks", chromIx, start, end, len(leaves))
	return leaves, nil
}

// Blocks returns the full resolution data blocks overlapping chrom:[start, end).
func (bwf *Reader) Blocks(ctx context.Context, chrom string, start, end int) ([]RangeLeaf, error) {
	leaf, err := bwf.Locate(chrom)
	if err != nil {
		return nil, err
	}
	return bwf.BlocksByID(ctx, int(leaf.ID), start, end)
}

func (bwf *Reader) Binsizes() []int {
	binsizes := []int{}
	for _, z := range bwf.Header.ZoomHeaders {
		binsizes = append(binsizes, int(z.ReductionLevel))
	}
	return binsizes
}

// ZoomIndex picks the coarsest zoom level whose reduction level divides
// binsize. It returns -1 and the full resolution index when none fits.
func (bwf *Reader) ZoomIndex(binsize int) (int, *RangeIndex) {
	zoomIdx := -1
	for i, z := range bwf.Header.ZoomHeaders {
		level := int(z.ReductionLevel)
		if level > 0 && binsize >= level && binsize%level == 0 {
			zoomIdx = i
		}
	}
	if zoomIdx == -1 {
		return -1, bwf.Index
	}
	return zoomIdx, bwf.IndexZoom[zoomIdx]
}

// ZoomBlocks is Blocks against the zoom level ZoomIndex selects for binsize.
func (bwf *Reader) ZoomBlocks(ctx context.Context, binsize int, chrom string, start, end int) ([]RangeLeaf, error) {
	if binsize < 1 {
		return nil, invalidf("binsize %d", binsize)
	}
	leaf, err := bwf.Locate(chrom)
	if err != nil {
		return nil, err
	}
	_, index := bwf.ZoomIndex(binsize)
	return bwf.blocks(ctx, index, int(leaf.ID), start, end)
}

// ReadBlock fetches the bytes of one block, inflating them when the file is
// compressed.
func (bwf *Reader) ReadBlock(l RangeLeaf) (*Codec, error) {
	if l.DataOffset > uint64(1<<63-1) {
		return nil, invalidf("block offset %d", l.DataOffset)
	}
	if bwf.Header.Compressed() {
		return bwf.codec.DecompressedRange(int64(l.DataOffset), int(l.DataSize))
	}
	return bwf.codec.RawRange(int64(l.DataOffset), int(l.DataSize))
}

type BlockResult struct {
	Leaf  RangeLeaf
	Data  *Codec
	Error error
}

// QueryBlocks streams the fetched blocks overlapping chrom:[start, end). The
// channel is closed after the last block, after the first error, or when ctx
// is done.
func (bwf *Reader) QueryBlocks(ctx context.Context, chrom string, start, end int) <-chan *BlockResult {
	ch := make(chan *BlockResult)
	go func() {
		defer close(ch)
		send := func(r *BlockResult) bool {
			select {
			case ch <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}
		leaves, err := bwf.Blocks(ctx, chrom, start, end)
		if err != nil {
			send(&BlockResult{Error: err})
			return
		}
		for _, l := range leaves {
			data, err := bwf.ReadBlock(l)
			if err != nil {
				send(&BlockResult{Leaf: l, Error: err})
				return
			}
			if !send(&BlockResult{Leaf: l, Data: data}) {
				return
			}
		}
	}()
	return ch
}
