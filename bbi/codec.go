package bbi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Codec is a byte-order aware cursor over a random access medium. A Codec is
// not safe for concurrent use; concurrent readers each take a Dup.
type Codec struct {
	r     io.ReaderAt
	order binary.ByteOrder
	pos   int64
	buf   [8]byte
}

func NewCodec(r io.ReaderAt, order binary.ByteOrder) *Codec {
	return &Codec{r: r, order: order}
}

// NewBytesCodec reads from an in-memory buffer.
func NewBytesCodec(p []byte, order binary.ByteOrder) *Codec {
	return NewCodec(bytes.NewReader(p), order)
}

// Dup returns an independent cursor over the same bytes, positioned where c
// currently is.
func (c *Codec) Dup() *Codec {
	return &Codec{r: c.r, order: c.order, pos: c.pos}
}

func (c *Codec) Order() binary.ByteOrder {
	return c.order
}

func (c *Codec) Seek(offset int64) {
	c.pos = offset
}

func (c *Codec) Tell() int64 {
	return c.pos
}

// read fills p from the current position. It returns io.EOF when nothing
// could be read and io.ErrUnexpectedEOF on a short read.
func (c *Codec) read(p []byte) error {
	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		if n == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return err
}

func (c *Codec) ReadU8() (uint8, error) {
	if err := c.read(c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

func (c *Codec) ReadU16() (uint16, error) {
	if err := c.read(c.buf[:2]); err != nil {
		return 0, err
	}
	return c.order.Uint16(c.buf[:2]), nil
}

func (c *Codec) ReadU32() (uint32, error) {
	if err := c.read(c.buf[:4]); err != nil {
		return 0, err
	}
	return c.order.Uint32(c.buf[:4]), nil
}

func (c *Codec) ReadU64() (uint64, error) {
	if err := c.read(c.buf[:8]); err != nil {
		return 0, err
	}
	return c.order.Uint64(c.buf[:8]), nil
}

func (c *Codec) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

func (c *Codec) ReadF32() (float32, error) {
	v, err := c.ReadU32()
	return math.Float32frombits(v), err
}

func (c *Codec) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, invalidf("negative read length %d", n)
	}
	p := make([]byte, n)
	if err := c.read(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadNullTerminatedString reads up to and including the next NUL byte and
// returns the text before it.
func (c *Codec) ReadNullTerminatedString() (string, error) {
	var out []byte
	chunk := make([]byte, 64)
	for {
		n, err := c.r.ReadAt(chunk, c.pos)
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			out = append(out, chunk[:i]...)
			c.pos += int64(i + 1)
			return string(out), nil
		}
		out = append(out, chunk[:n]...)
		c.pos += int64(n)
		if err == io.EOF || (err == nil && n == 0) {
			return string(out), io.ErrUnexpectedEOF
		}
		if err != nil {
			return string(out), err
		}
	}
}

// RawRange returns a cursor over a copy of the size bytes at offset.
func (c *Codec) RawRange(offset int64, size int) (*Codec, error) {
	d := c.Dup()
	d.Seek(offset)
	p, err := d.ReadBytes(size)
	if err != nil {
		return nil, readErr(offset, "data block", err)
	}
	return NewBytesCodec(p, c.order), nil
}

// DecompressedRange inflates the zlib stream stored in the size bytes at
// offset and returns a cursor over the result.
func (c *Codec) DecompressedRange(offset int64, size int) (*Codec, error) {
	d := c.Dup()
	d.Seek(offset)
	p, err := d.ReadBytes(size)
	if err != nil {
		return nil, readErr(offset, "compressed block", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, corruptf(offset, fmt.Sprintf("zlib header: %v", err), nil, nil)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, corruptf(offset, fmt.Sprintf("zlib stream: %v", err), nil, nil)
	}
	return NewBytesCodec(out, c.order), nil
}

// SeekerReaderAt turns a seek-only medium into an io.ReaderAt. Every ReadAt
// holds the lock for its seek and read.
type SeekerReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func NewSeekerReaderAt(rs io.ReadSeeker) *SeekerReaderAt {
	return &SeekerReaderAt{rs: rs}
}

func (s *SeekerReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.rs, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Encoder writes typed values in a fixed byte order and tracks the absolute
// file position of the next byte. The first write error sticks; later writes
// are dropped.
type Encoder struct {
	w     *bufio.Writer
	order binary.ByteOrder
	pos   int64
	err   error
	buf   [8]byte
}

// NewEncoder writes to w, whose next byte lives at absolute offset base.
func NewEncoder(w io.Writer, order binary.ByteOrder, base int64) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), order: order, pos: base}
}

func (e *Encoder) Order() binary.ByteOrder {
	return e.order
}

func (e *Encoder) Pos() int64 {
	return e.pos
}

func (e *Encoder) Err() error {
	if e.err == nil {
		return nil
	}
	return fmt.Errorf("%w: write at offset %d: %w", ErrIO, e.pos, e.err)
}

func (e *Encoder) WriteBytes(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.pos += int64(n)
	e.err = err
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf[0] = v
	e.WriteBytes(e.buf[:1])
}

func (e *Encoder) WriteU16(v uint16) {
	e.order.PutUint16(e.buf[:2], v)
	e.WriteBytes(e.buf[:2])
}

func (e *Encoder) WriteU32(v uint32) {
	e.order.PutUint32(e.buf[:4], v)
	e.WriteBytes(e.buf[:4])
}

func (e *Encoder) WriteU64(v uint64) {
	e.order.PutUint64(e.buf[:8], v)
	e.WriteBytes(e.buf[:8])
}

// WriteZeros pads with n zero bytes.
func (e *Encoder) WriteZeros(n int) {
	for ; n > 0; n-- {
		e.WriteU8(0)
	}
}

func (e *Encoder) Flush() error {
	if e.err == nil {
		e.err = e.w.Flush()
	}
	return e.Err()
}
