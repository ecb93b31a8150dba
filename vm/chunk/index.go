package chunk

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Pool index encoding
// ---------------------------------------------------------------------------
//
// Indices 0..254 are stored as a single byte. Larger indices are stored as
// the escape byte 0xFF followed by a big-endian uint16.

// WideIndexMark is the escape byte introducing a two-byte index.
const WideIndexMark byte = 0xFF

// MaxNarrowIndex is the largest index that fits in one byte.
const MaxNarrowIndex = 254

// MaxIndex is the largest encodable pool index.
const MaxIndex = 0xFFFF

// AppendIndex appends the encoding of idx to buf.
func AppendIndex(buf []byte, idx int) []byte {
	if idx < 0 || idx > MaxIndex {
		panic(fmt.Sprintf("chunk: pool index %d out of range", idx))
	}
	if idx <= MaxNarrowIndex {
		return append(buf, byte(idx))
	}
	buf = append(buf, WideIndexMark)
	return binary.BigEndian.AppendUint16(buf, uint16(idx))
}

// IndexWidth returns the number of bytes used to encode idx.
func IndexWidth(idx int) int {
	if idx <= MaxNarrowIndex {
		return 1
	}
	return 3
}

// IndexWidthAt returns the width of the encoded index starting at pos.
func IndexWidthAt(code []byte, pos int) int {
	if code[pos] == WideIndexMark {
		return 3
	}
	return 1
}

// DecodeIndex decodes the index starting at pos and returns it together with
// the position of the next byte.
func DecodeIndex(code []byte, pos int) (idx int, next int) {
	if code[pos] != WideIndexMark {
		return int(code[pos]), pos + 1
	}
	return int(binary.BigEndian.Uint16(code[pos+1:])), pos + 3
}
