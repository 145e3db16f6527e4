package bbi

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Block is one data block handed to WriteFile: the region its records cover
// and its uncompressed payload.
type Block struct {
	Interval Interval
	Payload  []byte
}

func compressBlock(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile lays out a complete file without zoom levels: header, name
// index, data section and range index. Blocks must be sorted by start and
// chroms sorted by name with ids matching the chromosome indexes blocks
// use. Consecutive blocks are stored ItemsPerSlot at a time as one data
// block, compressed as a unit, and each stored block gets one range leaf.
// Every offset is computed before the first byte is written.
func WriteFile(w io.Writer, order binary.ByteOrder, magic uint32, chroms []NameLeaf, blocks []Block, cfg *Config) error {
	cfg = cfg.OrDefault()
	if magic != BIGWIG_MAGIC && magic != BIGBED_MAGIC {
		return invalidf("magic %#x is neither bigwig nor bigbed", magic)
	}
	if err := checkBlockSize(cfg.BlockSize); err != nil {
		return err
	}
	if cfg.ItemsPerSlot < 1 {
		return invalidf("items per slot %d", cfg.ItemsPerSlot)
	}
	keySize, err := nameKeySize(chroms)
	if err != nil {
		return err
	}

	for i, b := range blocks {
		for _, o := range []Offset{b.Interval.Left, b.Interval.Right} {
			if uint64(o.ChromIx) >= uint64(len(chroms)) {
				return invalidf("block %d: chromosome id %d out of range", i, o.ChromIx)
			}
		}
		if !b.Interval.Valid() {
			return invalidf("block %d: interval %s", i, b.Interval)
		}
		if i > 0 && b.Interval.Left.Less(blocks[i-1].Interval.Left) {
			return invalidf("block %d: starts before block %d", i, i-1)
		}
	}

	var (
		records           []RangeRecord
		payloads          [][]byte
		uncompressBufSize uint32
	)
	for start := 0; start < len(blocks); start += cfg.ItemsPerSlot {
		slot := blocks[start:min(start+cfg.ItemsPerSlot, len(blocks))]
		iv := slot[0].Interval
		var raw []byte
		for _, b := range slot {
			iv = iv.Union(b.Interval)
			raw = append(raw, b.Payload...)
		}
		if uint64(len(raw)) > math.MaxUint32 {
			return invalidf("block %d: slot payload of %d bytes", start, len(raw))
		}
		payload := raw
		if cfg.Compress {
			if payload, err = compressBlock(raw); err != nil {
				return err
			}
			uncompressBufSize = max(uncompressBufSize, uint32(len(raw)), 1)
		}
		records = append(records, RangeRecord{Interval: iv, Size: uint32(len(payload))})
		payloads = append(payloads, payload)
	}

	namePages, _ := planSize(planLevels(len(chroms), cfg.BlockSize), keySize+nameValueSize, keySize+nameValueSize)
	hdr := &Header{
		Magic:             magic,
		Version:           bbiVersion,
		CtOffset:          headerSize,
		DataOffset:        uint64(headerSize + nameIndexHeaderSize + namePages),
		UncompressBufSize: uncompressBufSize,
	}
	pos := hdr.DataOffset + 8
	for i := range records {
		records[i].Offset = pos
		pos += uint64(records[i].Size)
	}
	hdr.IndexOffset = pos

	enc := NewEncoder(w, order, 0)
	if err := hdr.Write(enc); err != nil {
		return err
	}
	nameStats, err := BuildNameIndex(enc, chroms, cfg.BlockSize)
	if err != nil {
		return err
	}
	enc.WriteU64(uint64(len(payloads)))
	for _, p := range payloads {
		enc.WriteBytes(p)
	}
	if err := enc.Err(); err != nil {
		return err
	}
	if enc.Pos() != int64(hdr.IndexOffset) {
		return layoutErr("end of data section", enc.Pos(), int64(hdr.IndexOffset))
	}
	rangeStats, err := BuildRangeIndex(enc, records, cfg.BlockSize, 1)
	if err != nil {
		return err
	}
	cfg.debugf("wrote name index: %d levels, %d pages, root at %d", nameStats.Levels, nameStats.Pages, nameStats.RootOffset)
	cfg.debugf("wrote range index: %d levels, %d pages, %d records, root at %d, file ends at %d",
		rangeStats.Levels, rangeStats.Pages, rangeStats.Items, rangeStats.RootOffset, rangeStats.End)
	return nil
}
