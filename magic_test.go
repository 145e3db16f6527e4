package bbindex

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/nimezhu/bbindex/bbi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagic(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, p []byte) string {
		fn := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(fn, p, 0o644))
		return fn
	}
	magic := func(order binary.ByteOrder, m uint32) []byte {
		p := make([]byte, 4)
		order.PutUint32(p, m)
		return p
	}

	tests := []struct {
		name     string
		content  []byte
		format   Format
		expected binary.ByteOrder
	}{
		{"le.bw", magic(binary.LittleEndian, bbi.BIGWIG_MAGIC), FormatBigWig, binary.LittleEndian},
		{"be.bw", magic(binary.BigEndian, bbi.BIGWIG_MAGIC), FormatBigWig, binary.BigEndian},
		{"le.bb", append(magic(binary.LittleEndian, bbi.BIGBED_MAGIC), 1, 2, 3), FormatBigBed, binary.LittleEndian},
		{"be.bb", magic(binary.BigEndian, bbi.BIGBED_MAGIC), FormatBigBed, binary.BigEndian},
		{"k562.hic", []byte("HIC\x00\x08\x00\x00\x00"), FormatHic, binary.LittleEndian},
		{"notes.txt", []byte("chr1\t0\t100\n"), FormatUnknown, nil},
		{"short", []byte{0x26, 0xFC}, FormatUnknown, nil},
		{"empty", nil, FormatUnknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, order, err := Magic(write(tt.name, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.expected, order)
		})
	}

	_, _, err := Magic(filepath.Join(dir, "missing.bw"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
