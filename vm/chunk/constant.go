package chunk

import "fmt"

// ---------------------------------------------------------------------------
// Constant values
// ---------------------------------------------------------------------------

// ConstantValue is one entry of a chunk's constant pool.
type ConstantValue interface {
	Tag() ConstantTag
}

// ConstantTag identifies the variant of a ConstantValue.
type ConstantTag byte

const (
	TagInteger ConstantTag = iota + 1
	TagDouble
	TagUtf8
	TagMethodInfo
	TagClassInfo
	TagCloseIndexes
)

func (t ConstantTag) String() string {
	switch t {
	case TagInteger:
		return "Integer"
	case TagDouble:
		return "Double"
	case TagUtf8:
		return "Utf8"
	case TagMethodInfo:
		return "MethodInfo"
	case TagClassInfo:
		return "ClassInfo"
	case TagCloseIndexes:
		return "CloseIndexes"
	}
	return fmt.Sprintf("Tag(%d)", byte(t))
}

// Integer is a 64-bit integer constant.
type Integer int64

// Double is a 64-bit float constant.
type Double float64

// Utf8 is a string constant. Attribute, global and module names are Utf8.
type Utf8 string

func (Integer) Tag() ConstantTag { return TagInteger }
func (Double) Tag() ConstantTag  { return TagDouble }
func (Utf8) Tag() ConstantTag    { return TagUtf8 }

// UpvalueDesc tells a closure where to find one captured variable: a slot of
// the enclosing frame (IsLocal) or an upvalue already captured by the
// enclosing function.
type UpvalueDesc struct {
	IsLocal bool
	Index   uint8
}

// MethodInfo describes a function or method whose body lives inline in the
// chunk code, starting at FromPC and spanning Length bytes.
type MethodInfo struct {
	Name         string
	Arity        int
	VarArgsIndex int // -1 when the function takes a fixed argument count
	Attrs        CodeAttributes
	FromPC       int
	Length       int
	Upvalues     []UpvalueDesc
}

func (*MethodInfo) Tag() ConstantTag { return TagMethodInfo }

// Contains reports whether pc lies inside the method body.
func (m *MethodInfo) Contains(pc int) bool {
	return pc >= m.FromPC && pc < m.FromPC+m.Length
}

// HasVarArgs reports whether the method collects excess arguments.
func (m *MethodInfo) HasVarArgs() bool {
	return m.VarArgsIndex >= 0
}

// ClassInfo describes a class definition. Initializer and method bodies are
// laid out inline, in order, right after the CLASS instruction.
type ClassInfo struct {
	Name          string
	HasSuperclass bool
	Initializer   *MethodInfo // nil when the class declares no initializer
	Methods       []*MethodInfo
}

func (*ClassInfo) Tag() ConstantTag { return TagClassInfo }

// CloseIndexes lists the slots whose upvalues a CLOSE instruction closes.
type CloseIndexes []int

func (CloseIndexes) Tag() ConstantTag { return TagCloseIndexes }

// Has reports whether slot is listed.
func (c CloseIndexes) Has(slot int) bool {
	for _, s := range c {
		if s == slot {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool is the indexed constant table of a chunk. The typed accessors
// panic on a tag mismatch; a well-formed chunk never triggers that.
type ConstantPool struct {
	values []ConstantValue
}

// NewConstantPool creates a pool holding values.
func NewConstantPool(values ...ConstantValue) *ConstantPool {
	return &ConstantPool{values: values}
}

// Add appends v and returns its index.
func (p *ConstantPool) Add(v ConstantValue) int {
	p.values = append(p.values, v)
	return len(p.values) - 1
}

// Len returns the number of constants.
func (p *ConstantPool) Len() int {
	return len(p.values)
}

// At returns the constant at idx.
func (p *ConstantPool) At(idx int) ConstantValue {
	return p.values[idx]
}

// Values returns the backing slice. Callers must not modify it.
func (p *ConstantPool) Values() []ConstantValue {
	return p.values
}

func (p *ConstantPool) mismatch(idx int, want ConstantTag) string {
	got := "<out of range>"
	if idx >= 0 && idx < len(p.values) {
		got = p.values[idx].Tag().String()
	}
	return fmt.Sprintf("constant #%d: expected %s, found %s", idx, want, got)
}

// Integer returns the Integer constant at idx.
func (p *ConstantPool) Integer(idx int) int64 {
	if v, ok := p.at(idx).(Integer); ok {
		return int64(v)
	}
	panic(p.mismatch(idx, TagInteger))
}

// Double returns the Double constant at idx.
func (p *ConstantPool) Double(idx int) float64 {
	if v, ok := p.at(idx).(Double); ok {
		return float64(v)
	}
	panic(p.mismatch(idx, TagDouble))
}

// Utf8 returns the Utf8 constant at idx.
func (p *ConstantPool) Utf8(idx int) string {
	if v, ok := p.at(idx).(Utf8); ok {
		return string(v)
	}
	panic(p.mismatch(idx, TagUtf8))
}

// MethodInfo returns the MethodInfo constant at idx.
func (p *ConstantPool) MethodInfo(idx int) *MethodInfo {
	if v, ok := p.at(idx).(*MethodInfo); ok {
		return v
	}
	panic(p.mismatch(idx, TagMethodInfo))
}

// ClassInfo returns the ClassInfo constant at idx.
func (p *ConstantPool) ClassInfo(idx int) *ClassInfo {
	if v, ok := p.at(idx).(*ClassInfo); ok {
		return v
	}
	panic(p.mismatch(idx, TagClassInfo))
}

// CloseIndexes returns the CloseIndexes constant at idx.
func (p *ConstantPool) CloseIndexes(idx int) CloseIndexes {
	if v, ok := p.at(idx).(CloseIndexes); ok {
		return v
	}
	panic(p.mismatch(idx, TagCloseIndexes))
}

func (p *ConstantPool) at(idx int) ConstantValue {
	if idx < 0 || idx >= len(p.values) {
		return nil
	}
	return p.values[idx]
}
