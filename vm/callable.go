package vm

import (
	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Callable: everything that can be called
// ---------------------------------------------------------------------------

// Callable is implemented by *Function, *BoundMethod, *NativeFunction and
// *Class. All of them share one calling convention: arguments are pushed
// left to right and bound to parameters in order. Methods receive their
// receiver as the last parameter.
type Callable interface {
	Value
	FullName() string
	Arity() int
	VarArgsIndex() int
}

// Function is a closure over a function or method body of a chunk.
type Function struct {
	Info     *chunk.MethodInfo
	Chunk    *chunk.Chunk
	Upvalues []*Upvalue
	Env      *FileEnv

	// ClassName is set for methods and initializers.
	ClassName string
}

func (*Function) candyValue() {}

// Name returns the declared name.
func (f *Function) Name() string { return f.Info.Name }

// FullName returns Class.name for methods and the plain name otherwise.
func (f *Function) FullName() string {
	if f.ClassName != "" {
		return f.ClassName + "." + f.Info.Name
	}
	return f.Info.Name
}

func (f *Function) Arity() int        { return f.Info.Arity }
func (f *Function) VarArgsIndex() int { return f.Info.VarArgsIndex }

// BoundMethod pairs a method with its receiver. Calling it passes the
// receiver after the explicit arguments.
type BoundMethod struct {
	Receiver Value
	Method   Callable
}

func (*BoundMethod) candyValue() {}

func (b *BoundMethod) FullName() string { return b.Method.FullName() }
func (b *BoundMethod) Arity() int       { return b.Method.Arity() - 1 }
func (b *BoundMethod) VarArgsIndex() int {
	return b.Method.VarArgsIndex()
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

// NativeFunc implements a native callable. self is the receiver for native
// methods and nil for free functions. args holds the declared parameters,
// with excess arguments already packed for var-args natives.
type NativeFunc func(env *Env, self Value, args []Value) (Value, error)

// NativeFunction is a host implemented callable.
type NativeFunction struct {
	Class        string // owning class name, empty for free functions
	Name         string
	arity        int // declared parameters, receiver excluded
	varArgsIndex int
	fn           NativeFunc
}

func (*NativeFunction) candyValue() {}

// IsMethod reports whether the native expects a receiver.
func (n *NativeFunction) IsMethod() bool { return n.Class != "" }

func (n *NativeFunction) FullName() string {
	if n.Class != "" {
		return n.Class + "." + n.Name
	}
	return n.Name
}

// Arity counts the receiver of native methods, like user methods do.
func (n *NativeFunction) Arity() int {
	if n.IsMethod() {
		return n.arity + 1
	}
	return n.arity
}

func (n *NativeFunction) VarArgsIndex() int { return n.varArgsIndex }
