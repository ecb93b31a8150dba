package chunk

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Builder: assembles a Chunk
// ---------------------------------------------------------------------------

// Builder assembles bytecode, constants, line records and handler tables
// into a Chunk. Function and class bodies are emitted inline: open a body
// right after the instruction that defines it and close it when done.
type Builder struct {
	code      []byte
	pool      *ConstantPool
	strings   map[string]int
	integers  map[int64]int
	lines     LineTable
	lastLine  int
	lastStart int
	source    string
	globals   []string
	top       CodeAttributes
	bodies    []*MethodInfo
}

// NewBuilder creates a builder for a chunk compiled from sourceName.
func NewBuilder(sourceName string) *Builder {
	return &Builder{
		code:      make([]byte, 0, 64),
		pool:      NewConstantPool(),
		strings:   make(map[string]int),
		integers:  make(map[int64]int),
		lastLine:  -1,
		lastStart: -1,
		source:    sourceName,
	}
}

// Bytes returns the code emitted so far.
func (b *Builder) Bytes() []byte {
	return b.code
}

// Len returns the current code length, which is also the pc of the next
// instruction.
func (b *Builder) Len() int {
	return len(b.code)
}

// LastStart returns the pc of the most recently emitted instruction.
func (b *Builder) LastStart() int {
	return b.lastStart
}

// Pool returns the constant pool under construction.
func (b *Builder) Pool() *ConstantPool {
	return b.pool
}

func (b *Builder) begin(op Opcode) {
	b.lastStart = len(b.code)
	b.code = append(b.code, byte(op))
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.begin(op)
}

// EmitUint8 appends an opcode with a single byte operand.
func (b *Builder) EmitUint8(op Opcode, operand uint8) {
	b.begin(op)
	b.code = append(b.code, operand)
}

// EmitIndex appends an opcode with a pool-index operand.
func (b *Builder) EmitIndex(op Opcode, idx int) {
	b.begin(op)
	b.code = AppendIndex(b.code, idx)
}

// EmitArgcIndex appends a call-style opcode: argc then a pool index.
func (b *Builder) EmitArgcIndex(op Opcode, argc uint8, idx int) {
	b.begin(op)
	b.code = append(b.code, argc)
	b.code = AppendIndex(b.code, idx)
}

// EmitCallSlot appends CALL_SLOT.
func (b *Builder) EmitCallSlot(argc, slot uint8) {
	b.begin(OpCallSlot)
	b.code = append(b.code, argc, slot)
}

// EmitLoad appends the shortest load for slot.
func (b *Builder) EmitLoad(slot int) {
	if slot <= 4 {
		b.Emit(OpLOAD0 + Opcode(slot))
		return
	}
	b.EmitUint8(OpLOAD, uint8(slot))
}

// EmitStore appends the shortest store for slot. The value stays on the stack.
func (b *Builder) EmitStore(slot int) {
	if slot <= 4 {
		b.Emit(OpSTORE0 + Opcode(slot))
		return
	}
	b.EmitUint8(OpSTORE, uint8(slot))
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// AddConstant appends v to the pool without interning.
func (b *Builder) AddConstant(v ConstantValue) int {
	return b.pool.Add(v)
}

// Integer interns an Integer constant.
func (b *Builder) Integer(v int64) int {
	if idx, ok := b.integers[v]; ok {
		return idx
	}
	idx := b.pool.Add(Integer(v))
	b.integers[v] = idx
	return idx
}

// Double appends a Double constant.
func (b *Builder) Double(v float64) int {
	return b.pool.Add(Double(v))
}

// String interns a Utf8 constant.
func (b *Builder) String(s string) int {
	if idx, ok := b.strings[s]; ok {
		return idx
	}
	idx := b.pool.Add(Utf8(s))
	b.strings[s] = idx
	return idx
}

// EmitInt appends ICONST for v.
func (b *Builder) EmitInt(v int64) {
	b.EmitIndex(OpICONST, b.Integer(v))
}

// EmitDouble appends DCONST for v.
func (b *Builder) EmitDouble(v float64) {
	b.EmitIndex(OpDCONST, b.Double(v))
}

// EmitString appends SCONST for s.
func (b *Builder) EmitString(s string) {
	b.EmitIndex(OpSCONST, b.String(s))
}

// Global declares a file-level global and returns its name index.
func (b *Builder) Global(name string) int {
	for _, g := range b.globals {
		if g == name {
			return b.String(name)
		}
	}
	b.globals = append(b.globals, name)
	return b.String(name)
}

// ---------------------------------------------------------------------------
// Lines
// ---------------------------------------------------------------------------

// Line records that code emitted from now on belongs to line.
func (b *Builder) Line(line int) {
	if line == b.lastLine {
		return
	}
	pc := len(b.code)
	if n := b.lines.Len(); n > 0 {
		if start, _ := b.lines.Record(n - 1); start == pc {
			b.lines = b.lines[:len(b.lines)-LineRecordSize]
		}
	}
	b.lines = b.lines.AppendLine(pc, line)
	b.lastLine = line
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a jump target that may be referenced before it is marked.
type Label struct {
	resolved bool
	position int
	refs     []labelRef
}

type labelRef struct {
	start   int // pc of the jump instruction
	operand int // position of the two offset bytes
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]labelRef, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.code)
	for _, ref := range label.refs {
		b.patchJump(ref, label.position)
	}
	label.refs = nil
}

func (b *Builder) patchJump(ref labelRef, target int) {
	offset := target - ref.start
	if offset < -32768 || offset > 32767 {
		panic(fmt.Sprintf("chunk: jump offset %d out of range", offset))
	}
	binary.BigEndian.PutUint16(b.code[ref.operand:], uint16(int16(offset)))
}

// EmitJump emits a jump instruction targeting label. The offset is relative
// to the first byte of the jump instruction.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.begin(op)
	ref := labelRef{start: b.lastStart, operand: len(b.code)}
	b.code = append(b.code, 0, 0)
	if label.resolved {
		b.patchJump(ref, label.position)
		return
	}
	label.refs = append(label.refs, ref)
}

// EmitLoop emits a backward LOOP to an already marked label.
func (b *Builder) EmitLoop(label *Label) {
	if !label.resolved {
		panic("chunk: LOOP needs a marked label")
	}
	b.begin(OpLOOP)
	b.code = binary.BigEndian.AppendUint16(b.code, uint16(b.lastStart-label.position))
}

// EmitMatchErrors emits MATCH_ERRORS jumping to next when the error matches
// none of the count classes on the stack.
func (b *Builder) EmitMatchErrors(next *Label, count uint8) {
	b.EmitJump(OpMatchErrors, next)
	b.code = append(b.code, count)
}

// ---------------------------------------------------------------------------
// Bodies
// ---------------------------------------------------------------------------

func (b *Builder) attrs() *CodeAttributes {
	if n := len(b.bodies); n > 0 {
		return &b.bodies[n-1].Attrs
	}
	return &b.top
}

// SetLocals sets the slot count of the body being emitted.
func (b *Builder) SetLocals(n int) {
	b.attrs().MaxLocal = n
}

// SetStack sets the operand stack size of the body being emitted.
func (b *Builder) SetStack(n int) {
	b.attrs().MaxStack = n
}

// EmitFunction emits FUN for m and opens m's body.
func (b *Builder) EmitFunction(m *MethodInfo) {
	b.EmitIndex(OpFUN, b.pool.Add(m))
	b.BeginBody(m)
}

// EmitClass emits CLASS for c. The caller then emits the initializer body (if
// any) followed by each method body, in declaration order.
func (b *Builder) EmitClass(c *ClassInfo, superSlot uint8) {
	b.begin(OpCLASS)
	b.code = AppendIndex(b.code, b.pool.Add(c))
	b.code = append(b.code, superSlot)
}

// BeginBody opens the inline body of m at the current position.
func (b *Builder) BeginBody(m *MethodInfo) {
	m.FromPC = len(b.code)
	b.bodies = append(b.bodies, m)
}

// EndBody closes the innermost open body.
func (b *Builder) EndBody() {
	n := len(b.bodies)
	if n == 0 {
		panic("chunk: EndBody without BeginBody")
	}
	m := b.bodies[n-1]
	m.Length = len(b.code) - m.FromPC
	b.bodies = b.bodies[:n-1]
}

// ---------------------------------------------------------------------------
// Error handlers
// ---------------------------------------------------------------------------

// Try is an error handler entry under construction.
type Try struct {
	attrs *CodeAttributes
	index int
}

// BeginTry reserves a handler entry starting at the next instruction. The
// entry is registered now, so any try nested inside it comes later in the
// table and is matched first.
func (b *Builder) BeginTry() *Try {
	a := b.attrs()
	a.Handlers = append(a.Handlers, ErrorHandler{StartPC: len(b.code), EndPC: -1, HandlerPC: -1})
	return &Try{attrs: a, index: len(a.Handlers) - 1}
}

// EndTry closes the protected range at the last emitted instruction.
func (b *Builder) EndTry(t *Try) {
	t.attrs.Handlers[t.index].EndPC = b.lastStart
}

// MarkHandler sets the handler entry point to the current position.
func (b *Builder) MarkHandler(t *Try) {
	t.attrs.Handlers[t.index].HandlerPC = len(b.code)
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build returns the finished chunk.
func (b *Builder) Build() *Chunk {
	if len(b.bodies) != 0 {
		panic(fmt.Sprintf("chunk: %d unterminated bodies", len(b.bodies)))
	}
	for _, h := range b.top.Handlers {
		if h.EndPC < 0 || h.HandlerPC < 0 {
			panic("chunk: incomplete error handler")
		}
	}
	return &Chunk{
		Code:        b.code,
		Constants:   b.pool,
		SourceName:  b.source,
		Lines:       b.lines,
		Attrs:       b.top,
		GlobalNames: b.globals,
	}
}
