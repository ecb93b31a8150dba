package vm

import (
	"errors"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Frame: execution state for one call
// ---------------------------------------------------------------------------

// Frame is the state of one active call: its slots, its operand stack and
// the program counter into the chunk it executes.
type Frame struct {
	Name  string
	Chunk *chunk.Chunk
	Attrs *chunk.CodeAttributes
	PC    int

	start int // pc of the instruction being executed

	slots []Value
	stack []Value

	upvalues []*Upvalue // captured cells of the running closure
	open     map[int]*Upvalue
	env      *FileEnv

	// construct is the instance returned in place of the initializer's
	// result when the frame runs a class initializer.
	construct Value
}

func newFrame(name string, c *chunk.Chunk, attrs *chunk.CodeAttributes, pc int, env *FileEnv) *Frame {
	f := &Frame{
		Name:  name,
		Chunk: c,
		Attrs: attrs,
		PC:    pc,
		start: pc,
		slots: make([]Value, attrs.MaxLocal),
		stack: make([]Value, 0, attrs.MaxStack),
		env:   env,
	}
	for i := range f.slots {
		f.slots[i] = Null
	}
	return f
}

// Line returns the source line of the current instruction.
func (f *Frame) Line() int {
	return f.Chunk.Line(f.start)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

// Push pushes v onto the operand stack.
func (f *Frame) Push(v Value) {
	f.stack = append(f.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (f *Frame) Pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = nil
	f.stack = f.stack[:n]
	return v
}

// Peek returns the value k positions below the top; Peek(0) is the top.
func (f *Frame) Peek(k int) Value {
	return f.stack[len(f.stack)-1-k]
}

// Swap exchanges the top two values.
func (f *Frame) Swap() {
	n := len(f.stack)
	f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]
}

// Rotate3 moves the top value to third position and lifts the two beneath
// it: [a b c] becomes [c a b].
func (f *Frame) Rotate3() {
	n := len(f.stack)
	a, b, c := f.stack[n-3], f.stack[n-2], f.stack[n-1]
	f.stack[n-3], f.stack[n-2], f.stack[n-1] = c, a, b
}

// StackDepth returns the number of values on the operand stack.
func (f *Frame) StackDepth() int {
	return len(f.stack)
}

// popN removes the top n values and returns them in push order.
func (f *Frame) popN(n int) []Value {
	at := len(f.stack) - n
	vals := make([]Value, n)
	copy(vals, f.stack[at:])
	for i := at; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:at]
	return vals
}

// truncate drops everything above depth.
func (f *Frame) truncate(depth int) {
	for i := depth; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:depth]
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// Load returns the value of slot.
func (f *Frame) Load(slot int) Value {
	return f.slots[slot]
}

// Store sets slot.
func (f *Frame) Store(slot int, v Value) {
	f.slots[slot] = v
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// capture returns the open cell for slot, creating it on first use. All
// closures capturing the same slot of this frame share one cell.
func (f *Frame) capture(slot int) *Upvalue {
	if u, ok := f.open[slot]; ok {
		return u
	}
	if f.open == nil {
		f.open = make(map[int]*Upvalue)
	}
	u := newOpenUpvalue(f, slot)
	f.open[slot] = u
	return u
}

// closeSlots closes the open cells of the listed slots. A later capture of
// the same slot gets a fresh cell.
func (f *Frame) closeSlots(slots chunk.CloseIndexes) {
	for _, slot := range slots {
		if u, ok := f.open[slot]; ok {
			u.Close()
			delete(f.open, slot)
		}
	}
}

// closeAll closes every open cell of the frame.
func (f *Frame) closeAll() {
	for slot, u := range f.open {
		u.Close()
		delete(f.open, slot)
	}
}

// ---------------------------------------------------------------------------
// FrameStack
// ---------------------------------------------------------------------------

// DefaultMaxFrameDepth is the frame stack limit used unless configured.
const DefaultMaxFrameDepth = 2048

// errFrameOverflow is returned by Push when the stack is full. The VM turns
// it into a StackOverflowError.
var errFrameOverflow = errors.New("frame stack overflow")

// FrameStack is the bounded stack of active frames.
type FrameStack struct {
	frames []*Frame
	max    int
}

// NewFrameStack creates a frame stack holding at most max frames.
func NewFrameStack(max int) *FrameStack {
	if max <= 0 {
		max = DefaultMaxFrameDepth
	}
	return &FrameStack{frames: make([]*Frame, 0, 64), max: max}
}

// Push adds f, failing when the stack already holds max frames.
func (s *FrameStack) Push(f *Frame) error {
	if len(s.frames) >= s.max {
		return errFrameOverflow
	}
	s.frames = append(s.frames, f)
	return nil
}

// Pop removes the top frame after closing its upvalues.
func (s *FrameStack) Pop() *Frame {
	n := len(s.frames) - 1
	f := s.frames[n]
	f.closeAll()
	s.frames[n] = nil
	s.frames = s.frames[:n]
	return f
}

// Peek returns the top frame, or nil when empty.
func (s *FrameStack) Peek() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames.
func (s *FrameStack) Depth() int {
	return len(s.frames)
}

// Max returns the frame limit.
func (s *FrameStack) Max() int {
	return s.max
}

// At returns the frame at depth i, counting from the bottom.
func (s *FrameStack) At(i int) *Frame {
	return s.frames[i]
}

// Clear pops every frame.
func (s *FrameStack) Clear() {
	for len(s.frames) > 0 {
		s.Pop()
	}
}
