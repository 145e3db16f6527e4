package bbi

import (
	"encoding/binary"
	"fmt"
)

const (
	BIGWIG_MAGIC = 0x888FFC26
	BIGBED_MAGIC = 0x8789F2EB

	headerSize     = 64
	zoomHeaderSize = 24
	bbiVersion     = 4
)

// ZoomHeader locates one reduced-resolution level.
type ZoomHeader struct {
	ReductionLevel uint32
	Reserved       uint32
	DataOffset     uint64
	IndexOffset    uint64
}

// Header is the fixed preamble of a BigWig or BigBed file.
type Header struct {
	Magic             uint32
	Version           uint16
	ZoomLevels        uint16
	CtOffset          uint64 // chromosome name tree
	DataOffset        uint64
	IndexOffset       uint64 // full resolution range tree
	FieldCount        uint16
	DefinedFieldCount uint16
	SqlOffset         uint64
	SummaryOffset     uint64
	UncompressBufSize uint32
	ExtensionOffset   uint64
	ZoomHeaders       []ZoomHeader
}

// IsBigWig reports whether the magic marks a BigWig file; otherwise it is
// BigBed.
func (h *Header) IsBigWig() bool {
	return h.Magic == BIGWIG_MAGIC
}

// Compressed reports whether data blocks are zlib streams.
func (h *Header) Compressed() bool {
	return h.UncompressBufSize != 0
}

// DetectByteOrder derives a file's byte order from its first four bytes. The
// magic reads correctly only in the order the file was written in.
func DetectByteOrder(p []byte) (binary.ByteOrder, uint32, error) {
	if len(p) < 4 {
		return nil, 0, corruptf(0, "file magic", "4 bytes", len(p))
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch m := order.Uint32(p); m {
		case BIGWIG_MAGIC, BIGBED_MAGIC:
			return order, m, nil
		}
	}
	return nil, 0, corruptf(0, "file magic", "bigwig or bigbed", fmt.Sprintf("%#x", binary.LittleEndian.Uint32(p)))
}

// ReadHeader decodes the header and zoom headers at the start of the file.
// c must already be in the file's byte order.
func ReadHeader(c *Codec) (*Header, error) {
	d := c.Dup()
	d.Seek(0)
	p, err := d.ReadBytes(headerSize)
	if err != nil {
		return nil, readErr(0, "bbi header", err)
	}
	o := c.Order()
	h := &Header{
		Magic:             o.Uint32(p[0:]),
		Version:           o.Uint16(p[4:]),
		ZoomLevels:        o.Uint16(p[6:]),
		CtOffset:          o.Uint64(p[8:]),
		DataOffset:        o.Uint64(p[16:]),
		IndexOffset:       o.Uint64(p[24:]),
		FieldCount:        o.Uint16(p[32:]),
		DefinedFieldCount: o.Uint16(p[34:]),
		SqlOffset:         o.Uint64(p[36:]),
		SummaryOffset:     o.Uint64(p[44:]),
		UncompressBufSize: o.Uint32(p[52:]),
		ExtensionOffset:   o.Uint64(p[56:]),
	}
	if h.Magic != BIGWIG_MAGIC && h.Magic != BIGBED_MAGIC {
		return nil, corruptf(0, "bbi magic", "bigwig or bigbed", fmt.Sprintf("%#x", h.Magic))
	}
	h.ZoomHeaders = make([]ZoomHeader, h.ZoomLevels)
	for i := range h.ZoomHeaders {
		off := d.Tell()
		z, err := d.ReadBytes(zoomHeaderSize)
		if err != nil {
			return nil, readErr(off, fmt.Sprintf("zoom header %d", i), err)
		}
		h.ZoomHeaders[i] = ZoomHeader{
			ReductionLevel: o.Uint32(z[0:]),
			Reserved:       o.Uint32(z[4:]),
			DataOffset:     o.Uint64(z[8:]),
			IndexOffset:    o.Uint64(z[16:]),
		}
	}
	return h, nil
}

// Write encodes the header followed by its zoom headers.
func (h *Header) Write(w *Encoder) error {
	w.WriteU32(h.Magic)
	w.WriteU16(h.Version)
	w.WriteU16(uint16(len(h.ZoomHeaders)))
	w.WriteU64(h.CtOffset)
	w.WriteU64(h.DataOffset)
	w.WriteU64(h.IndexOffset)
	w.WriteU16(h.FieldCount)
	w.WriteU16(h.DefinedFieldCount)
	w.WriteU64(h.SqlOffset)
	w.WriteU64(h.SummaryOffset)
	w.WriteU32(h.UncompressBufSize)
	w.WriteU64(h.ExtensionOffset)
	for _, z := range h.ZoomHeaders {
		w.WriteU32(z.ReductionLevel)
		w.WriteU32(z.Reserved)
		w.WriteU64(z.DataOffset)
		w.WriteU64(z.IndexOffset)
	}
	return w.Err()
}
