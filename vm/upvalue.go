package vm

// ---------------------------------------------------------------------------
// Upvalue: a captured variable cell
// ---------------------------------------------------------------------------

// Upvalue is a variable shared between a frame and the closures that capture
// one of its slots. While open it reads and writes the owning frame's slot;
// Close copies the slot value into the cell and detaches it, after which the
// cell owns the value.
type Upvalue struct {
	frame  *Frame // owning frame while open, nil once closed
	slot   int
	closed Value
}

func newOpenUpvalue(f *Frame, slot int) *Upvalue {
	return &Upvalue{frame: f, slot: slot}
}

// NewClosedUpvalue creates a cell that owns v.
func NewClosedUpvalue(v Value) *Upvalue {
	return &Upvalue{closed: v}
}

// IsOpen reports whether the cell still aliases a frame slot.
func (u *Upvalue) IsOpen() bool {
	return u.frame != nil
}

// Load returns the current value of the variable.
func (u *Upvalue) Load() Value {
	if u.frame != nil {
		return u.frame.slots[u.slot]
	}
	return u.closed
}

// Store sets the variable.
func (u *Upvalue) Store(v Value) {
	if u.frame != nil {
		u.frame.slots[u.slot] = v
		return
	}
	u.closed = v
}

// Close moves the variable out of the frame. Closing twice is a no-op.
func (u *Upvalue) Close() {
	if u.frame == nil {
		return
	}
	u.closed = u.frame.slots[u.slot]
	u.frame = nil
}
