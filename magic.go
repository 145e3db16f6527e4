package bbindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nimezhu/bbindex/bbi"
)

type Format string

const (
	FormatBigWig  Format = "bigwig"
	FormatBigBed  Format = "bigbed"
	FormatHic     Format = "hic"
	FormatUnknown Format = "unknown"
)

const HIC_MAGIC = 0x00434948

// Magic sniffs the first four bytes of a local file. BigWig and BigBed are
// recognised in either byte order, which is returned alongside; hic files
// are always little endian.
func Magic(path string) (Format, binary.ByteOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, nil, err
	}
	defer f.Close()
	p := make([]byte, 4)
	if _, err := io.ReadFull(f, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return FormatUnknown, nil, nil
		}
		return FormatUnknown, nil, fmt.Errorf("%s: %w", path, err)
	}
	if binary.LittleEndian.Uint32(p) == HIC_MAGIC {
		return FormatHic, binary.LittleEndian, nil
	}
	order, magic, err := bbi.DetectByteOrder(p)
	if err != nil {
		return FormatUnknown, nil, nil
	}
	if magic == bbi.BIGWIG_MAGIC {
		return FormatBigWig, order, nil
	}
	return FormatBigBed, order, nil
}
