package chunk

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		value    byte
		name     string
		operands int
	}{
		{OpNOP, 0, "NOP", 0},
		{OpROT3, 5, "ROT_3", 0},
		{OpICONST, 7, "ICONST", 1},
		{OpPopJumpIfFalse, 30, "POP_JUMP_IF_FALSE", 1},
		{OpLOOP, 36, "LOOP", 1},
		{OpPopStore, 49, "POP_STORE", 1},
		{OpCLOSE, 56, "CLOSE", 1},
		{OpINVOKE, 60, "INVOKE", 2},
		{OpCallSlot, 62, "CALL_SLOT", 2},
		{OpCLASS, 67, "CLASS", 2},
		{OpMatchErrors, 72, "MATCH_ERRORS", 2},
		{OpEXIT, 82, "EXIT", 0},
	}

	for _, tt := range tests {
		if byte(tt.op) != tt.value {
			t.Errorf("%s = %d, want %d", tt.op, byte(tt.op), tt.value)
		}
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if len(info.Operands) != tt.operands {
			t.Errorf("%s: %d operands, want %d", tt.op, len(info.Operands), tt.operands)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xF0)
	if op.Known() {
		t.Fatal("0xF0 should not be a known opcode")
	}
	if !strings.HasPrefix(op.Name(), "UNKNOWN_") {
		t.Errorf("unknown opcode should have UNKNOWN_ prefix, got %q", op.Name())
	}
}

// ---------------------------------------------------------------------------
// Index encoding
// ---------------------------------------------------------------------------

func TestIndexRoundTrip(t *testing.T) {
	tests := []struct {
		idx   int
		width int
	}{
		{0, 1},
		{254, 1},
		{255, 3},
		{256, 3},
		{65535, 3},
	}

	for _, tt := range tests {
		buf := AppendIndex([]byte{0xAA}, tt.idx)
		if got := len(buf) - 1; got != tt.width {
			t.Errorf("index %d encoded in %d bytes, want %d", tt.idx, got, tt.width)
		}
		if IndexWidth(tt.idx) != tt.width || IndexWidthAt(buf, 1) != tt.width {
			t.Errorf("index %d: width helpers disagree", tt.idx)
		}
		got, next := DecodeIndex(buf, 1)
		if got != tt.idx {
			t.Errorf("decoded %d, want %d", got, tt.idx)
		}
		if next != len(buf) {
			t.Errorf("index %d: next = %d, want %d", tt.idx, next, len(buf))
		}
	}
}

func TestWideIndexLayout(t *testing.T) {
	buf := AppendIndex(nil, 0x0102)
	want := []byte{WideIndexMark, 0x01, 0x02}
	if string(buf) != string(want) {
		t.Errorf("encoding = % x, want % x", buf, want)
	}
}

func TestIndexOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for index 65536")
		}
	}()
	AppendIndex(nil, MaxIndex+1)
}

// ---------------------------------------------------------------------------
// Line table
// ---------------------------------------------------------------------------

func TestLineTableLookup(t *testing.T) {
	var lt LineTable
	lt = lt.AppendLine(0, 1)
	lt = lt.AppendLine(4, 3)
	lt = lt.AppendLine(10, 7)

	tests := []struct{ pc, line int }{
		{0, 1}, {3, 1}, {4, 3}, {9, 3}, {10, 7}, {500, 7},
	}
	for _, tt := range tests {
		if got := lt.Line(tt.pc); got != tt.line {
			t.Errorf("Line(%d) = %d, want %d", tt.pc, got, tt.line)
		}
	}
	if lt.Len() != 3 || len(lt) != 12 {
		t.Errorf("table holds %d records in %d bytes", lt.Len(), len(lt))
	}
}

func TestEmptyLineTable(t *testing.T) {
	var lt LineTable
	if got := lt.Line(5); got != -1 {
		t.Errorf("Line on empty table = %d, want -1", got)
	}
}

// ---------------------------------------------------------------------------
// Handler table
// ---------------------------------------------------------------------------

func TestHandlerTableInnermostFirst(t *testing.T) {
	table := ErrorHandlerTable{
		{StartPC: 0, EndPC: 40, HandlerPC: 100},  // outer
		{StartPC: 10, EndPC: 20, HandlerPC: 200}, // inner
	}

	h, ok := table.Find(15)
	if !ok || h.HandlerPC != 200 {
		t.Errorf("pc 15: got %+v, want inner handler", h)
	}
	h, ok = table.Find(30)
	if !ok || h.HandlerPC != 100 {
		t.Errorf("pc 30: got %+v, want outer handler", h)
	}
	h, ok = table.Find(40)
	if !ok || h.HandlerPC != 100 {
		t.Error("end pc is inclusive")
	}
	if _, ok := table.Find(41); ok {
		t.Error("pc 41 should not be covered")
	}
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

func TestBuilderJumpIsRelativeToInstructionStart(t *testing.T) {
	b := NewBuilder("jump.cd")
	end := b.NewLabel()
	b.Emit(OpTRUE)                   // 0
	b.EmitJump(OpPopJumpIfTrue, end) // 1..3
	b.Emit(OpNULL)                   // 4
	b.Mark(end)                      // 5
	b.Emit(OpRETURN)

	r := NewReader(b.Bytes())
	r.Seek(2)
	if off := r.ReadJump(); off != 4 {
		t.Errorf("forward offset = %d, want 4", off)
	}

	top := b.NewLabel()
	b.Mark(top)
	b.EmitJump(OpJUMP, top)
	r.Seek(top.position + 1)
	if off := r.ReadJump(); off != 0 {
		t.Errorf("self jump offset = %d, want 0", off)
	}
}

func TestBuilderBodiesAndTry(t *testing.T) {
	b := NewBuilder("/src/app/main.cd")
	b.Line(1)
	outer := b.BeginTry()
	fn := &MethodInfo{Name: "f", Arity: 1, VarArgsIndex: -1}
	b.EmitFunction(fn)
	b.SetLocals(1)
	b.Line(2)
	inner := b.BeginTry()
	b.EmitLoad(0)
	b.Emit(OpRAISE)
	b.EndTry(inner)
	b.MarkHandler(inner)
	b.Emit(OpRETURN)
	b.EndBody()
	b.EmitIndex(OpGlobalDefine, b.Global("f"))
	b.EndTry(outer)
	b.MarkHandler(outer)
	b.Emit(OpEXIT)
	c := b.Build()

	if c.SimpleName() != "main" {
		t.Errorf("SimpleName = %q", c.SimpleName())
	}
	if len(c.Attrs.Handlers) != 1 || len(fn.Attrs.Handlers) != 1 {
		t.Fatalf("handlers: top %d, fn %d", len(c.Attrs.Handlers), len(fn.Attrs.Handlers))
	}
	if fn.FromPC != 2 || fn.Length != 3 {
		t.Errorf("body range = %d+%d, want 2+3", fn.FromPC, fn.Length)
	}
	if got := c.FindMethodInfo(3); got != fn {
		t.Errorf("FindMethodInfo(3) = %v, want f", got)
	}
	if got := c.FindMethodInfo(fn.FromPC + fn.Length); got != nil {
		t.Errorf("pc after body resolved to %s", got.Name)
	}
	if c.Line(0) != 1 || c.Line(fn.FromPC) != 2 {
		t.Errorf("lines: %d, %d", c.Line(0), c.Line(fn.FromPC))
	}
	if len(c.GlobalNames) != 1 || c.GlobalNames[0] != "f" {
		t.Errorf("GlobalNames = %v", c.GlobalNames)
	}
	h := c.Attrs.Handlers[0]
	if h.EndPC != fn.FromPC+fn.Length || h.HandlerPC != h.EndPC+2 {
		t.Errorf("outer handler = %+v", h)
	}
}

func TestBuilderInternsConstants(t *testing.T) {
	b := NewBuilder("k.cd")
	if b.String("x") != b.String("x") {
		t.Error("strings should be interned")
	}
	if b.Integer(7) != b.Integer(7) {
		t.Error("integers should be interned")
	}
	if b.Pool().Len() != 2 {
		t.Errorf("pool size = %d, want 2", b.Pool().Len())
	}
}

func TestWideIndexInstructions(t *testing.T) {
	b := NewBuilder("wide.cd")
	for i := 0; i < 300; i++ {
		b.Integer(int64(i))
	}
	b.EmitInt(299)
	b.EmitInt(3)
	code := b.Bytes()
	if InstructionLength(code, 0) != 4 {
		t.Errorf("wide ICONST length = %d, want 4", InstructionLength(code, 0))
	}
	if InstructionLength(code, 4) != 2 {
		t.Errorf("narrow ICONST length = %d, want 2", InstructionLength(code, 4))
	}

	r := NewReader(code)
	r.ReadOpcode()
	if got := b.Pool().Integer(r.ReadIndex()); got != 299 {
		t.Errorf("wide constant = %d", got)
	}
}

func TestConstantPoolMismatchPanics(t *testing.T) {
	p := NewConstantPool(Utf8("name"))
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "expected Integer, found Utf8") {
			t.Errorf("panic = %v", r)
		}
	}()
	p.Integer(0)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	b := NewBuilder("dis.cd")
	b.EmitInt(5)
	b.EmitInt(3)
	b.Emit(OpADD)
	b.EmitArgcIndex(OpINVOKE, 2, b.String("append"))
	b.Emit(OpRETURN)

	out := Disassemble(b.Build())
	want := []string{
		"0000  ICONST #0 (5)",
		"0002  ICONST #1 (3)",
		"0004  ADD",
		`0005  INVOKE 2 #2 ("append")`,
		"0008  RETURN",
	}
	if out != strings.Join(want, "\n") {
		t.Errorf("disassembly:\n%s", out)
	}
}
