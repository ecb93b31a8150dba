package chunk

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader walks bytecode one operand at a time.
type Reader struct {
	code []byte
	pos  int
}

// NewReader creates a reader positioned at pc 0.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.code)
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	return Opcode(r.ReadUint8())
}

// ReadUint8 reads a single byte operand.
func (r *Reader) ReadUint8() uint8 {
	if r.pos >= len(r.code) {
		panic("bytecode underflow")
	}
	v := r.code[r.pos]
	r.pos++
	return v
}

// ReadUint16 reads a big-endian 16-bit operand.
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.code) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint16(r.code[r.pos:])
	r.pos += 2
	return v
}

// ReadJump reads a signed 16-bit jump offset.
func (r *Reader) ReadJump() int {
	return int(int16(r.ReadUint16()))
}

// ReadIndex reads a variable width pool index.
func (r *Reader) ReadIndex() int {
	if r.pos >= len(r.code) || (r.code[r.pos] == WideIndexMark && r.pos+3 > len(r.code)) {
		panic("bytecode underflow")
	}
	idx, next := DecodeIndex(r.code, r.pos)
	r.pos = next
	return idx
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles the instruction at the reader's
// position and advances past it. pool may be nil.
func DisassembleInstruction(r *Reader, pool *ConstantPool) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", pos, info.Name)
	for _, kind := range info.Operands {
		switch kind {
		case OperandIndex:
			idx := r.ReadIndex()
			fmt.Fprintf(&sb, " #%d", idx)
			if pool != nil && idx < pool.Len() {
				fmt.Fprintf(&sb, " (%s)", describeConstant(pool.At(idx)))
			}
		case OperandUint8:
			fmt.Fprintf(&sb, " %d", r.ReadUint8())
		case OperandJump:
			offset := r.ReadJump()
			fmt.Fprintf(&sb, " %d (-> %04d)", offset, pos+offset)
		case OperandUint16:
			distance := int(r.ReadUint16())
			fmt.Fprintf(&sb, " %d (-> %04d)", distance, pos-distance)
		}
	}
	return sb.String()
}

func describeConstant(v ConstantValue) string {
	switch v := v.(type) {
	case Integer:
		return fmt.Sprintf("%d", int64(v))
	case Double:
		return fmt.Sprintf("%g", float64(v))
	case Utf8:
		return fmt.Sprintf("%q", string(v))
	case *MethodInfo:
		return fmt.Sprintf("<method %s/%d %04d+%d>", v.Name, v.Arity, v.FromPC, v.Length)
	case *ClassInfo:
		return fmt.Sprintf("<class %s>", v.Name)
	case CloseIndexes:
		return fmt.Sprintf("close %v", []int(v))
	}
	return "?"
}

// Disassemble returns a full disassembly of c, one instruction per line.
func Disassemble(c *Chunk) string {
	r := NewReader(c.Code)
	var lines []string
	for r.HasMore() {
		lines = append(lines, DisassembleInstruction(r, c.Constants))
	}
	return strings.Join(lines, "\n")
}
