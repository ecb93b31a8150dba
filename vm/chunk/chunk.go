package chunk

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Chunk: an immutable compiled unit
// ---------------------------------------------------------------------------

// Chunk is the output of the front end for one source file: flat bytecode,
// its constants and the metadata needed to run and diagnose it. A chunk is
// never modified once the VM starts executing it, so frames and closures
// share it freely.
type Chunk struct {
	Code       []byte
	Constants  *ConstantPool
	SourceName string
	Lines      LineTable

	// Attrs describes the top-level code of the file.
	Attrs CodeAttributes

	// GlobalNames lists the globals the file defines, in definition order.
	// Only top-level chunks carry it.
	GlobalNames []string
}

// SimpleName returns the source file name without directory or extension.
func (c *Chunk) SimpleName() string {
	base := filepath.Base(c.SourceName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Line returns the source line for pc, or -1 if the chunk has no line info.
func (c *Chunk) Line(pc int) int {
	return c.Lines.Line(pc)
}

// FindMethodInfo returns the innermost MethodInfo whose body contains pc, or
// nil when pc belongs to top-level code. It scans the pool linearly and is
// meant for diagnostics only.
func (c *Chunk) FindMethodInfo(pc int) *MethodInfo {
	var found *MethodInfo
	consider := func(m *MethodInfo) {
		if m == nil || !m.Contains(pc) {
			return
		}
		if found == nil || m.Length < found.Length {
			found = m
		}
	}
	for _, v := range c.Constants.Values() {
		switch v := v.(type) {
		case *MethodInfo:
			consider(v)
		case *ClassInfo:
			consider(v.Initializer)
			for _, m := range v.Methods {
				consider(m)
			}
		}
	}
	return found
}

// ---------------------------------------------------------------------------
// Code attributes
// ---------------------------------------------------------------------------

// CodeAttributes are the per-body facts the VM needs to build a frame.
type CodeAttributes struct {
	MaxStack int
	MaxLocal int
	Handlers ErrorHandlerTable
}

// ---------------------------------------------------------------------------
// Line table
// ---------------------------------------------------------------------------

// LineRecordSize is the size of one (start_pc, line) record.
const LineRecordSize = 4

// LineTable is a packed sequence of big-endian (u16 start_pc, u16 line)
// records sorted by start_pc.
type LineTable []byte

// AppendLine appends a record. Records must be appended in pc order.
func (t LineTable) AppendLine(startPC, line int) LineTable {
	t = binary.BigEndian.AppendUint16(t, uint16(startPC))
	return binary.BigEndian.AppendUint16(t, uint16(line))
}

// Len returns the number of records.
func (t LineTable) Len() int {
	return len(t) / LineRecordSize
}

// Record returns the i'th record.
func (t LineTable) Record(i int) (startPC, line int) {
	off := i * LineRecordSize
	return int(binary.BigEndian.Uint16(t[off:])), int(binary.BigEndian.Uint16(t[off+2:]))
}

// Line returns the line of the record with the greatest start_pc <= pc.
func (t LineTable) Line(pc int) int {
	n := t.Len()
	if n == 0 {
		return -1
	}
	// first record whose start_pc > pc
	i := sort.Search(n, func(i int) bool {
		start, _ := t.Record(i)
		return start > pc
	})
	if i == 0 {
		_, line := t.Record(0)
		return line
	}
	_, line := t.Record(i - 1)
	return line
}

// ---------------------------------------------------------------------------
// Error handler table
// ---------------------------------------------------------------------------

// ErrorHandler routes errors raised at pcs in [StartPC, EndPC] to HandlerPC.
// Both bounds are instruction-start pcs and EndPC is inclusive.
type ErrorHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
}

// Covers reports whether pc lies within the handler's range.
func (h ErrorHandler) Covers(pc int) bool {
	return pc >= h.StartPC && pc <= h.EndPC
}

// ErrorHandlerTable lists handlers in the order the compiler emitted them:
// an enclosing try block is registered before the blocks nested inside it.
type ErrorHandlerTable []ErrorHandler

// Find scans back to front so that the innermost covering handler wins.
func (t ErrorHandlerTable) Find(pc int) (ErrorHandler, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Covers(pc) {
			return t[i], true
		}
	}
	return ErrorHandler{}, false
}
