package vm

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Native registration
// ---------------------------------------------------------------------------

// NativeSpec declares one native callable. Natives are registered from
// plain tables of specs; Class names the owning class for native methods
// and is empty for free functions, which become builtin globals.
type NativeSpec struct {
	Class string
	Name  string
	Arity int

	// VarArgs makes the last parameter collect every excess argument into
	// an array.
	VarArgs bool

	Fn NativeFunc
}

// RegisterNatives installs specs. Methods are added to the named class,
// which must already exist; free functions become builtins.
func (vm *VM) RegisterNatives(specs []NativeSpec) error {
	for _, s := range specs {
		n := &NativeFunction{
			Class:        s.Class,
			Name:         s.Name,
			arity:        s.Arity,
			varArgsIndex: -1,
			fn:           s.Fn,
		}
		if s.VarArgs {
			n.varArgsIndex = s.Arity - 1
		}
		if s.Class == "" {
			vm.Builtins[s.Name] = n
			continue
		}
		c := vm.Classes.Lookup(s.Class)
		if c == nil {
			return fmt.Errorf("native %s.%s: unknown class", s.Class, s.Name)
		}
		c.DefineMethod(s.Name, n)
	}
	return nil
}

// callNative runs n with fully bound arguments. For native methods the
// receiver is the last argument.
func (vm *VM) callNative(n *NativeFunction, args []Value) (Value, error) {
	var self Value
	if n.IsMethod() {
		self = args[len(args)-1]
		args = args[:len(args)-1]
	}
	v, err := n.fn(vm.env, self, args)
	if err != nil {
		return nil, err
	}
	return orNull(v), nil
}

// ---------------------------------------------------------------------------
// Env: the handle natives receive
// ---------------------------------------------------------------------------

// Env gives natives access to the running VM for the duration of one call.
// Natives must not keep it after they return.
type Env struct {
	vm *VM
}

// VM returns the machine running the native.
func (e *Env) VM() *VM {
	return e.vm
}

// Call invokes a callable with args and runs it to completion.
func (e *Env) Call(callee Value, args ...Value) (Value, error) {
	return e.vm.Call(callee, args...)
}

// Global looks up a builtin or a global of the file being executed.
func (e *Env) Global(name string) (Value, bool) {
	var env *FileEnv
	if f := e.vm.frames.Peek(); f != nil {
		env = f.env
	}
	v, err := e.vm.lookupGlobal(env, name)
	return v, err == nil
}

// SetGlobal defines a global in the file being executed.
func (e *Env) SetGlobal(name string, v Value) {
	if f := e.vm.frames.Peek(); f != nil && f.env != nil {
		f.env.Define(name, v)
		return
	}
	e.vm.Builtins[name] = v
}

// StackTrace returns the current frame stack, innermost first.
func (e *Env) StackTrace() []TraceElement {
	return e.vm.captureTrace()
}

// Stdout is where print output goes.
func (e *Env) Stdout() io.Writer {
	return e.vm.stdout
}

// Str converts v to a string, honoring _str.
func (e *Env) Str(v Value) (string, error) {
	return e.vm.Str(v)
}

// Errorf creates an error of the named error class, falling back to Error
// when the class is unknown.
func (e *Env) Errorf(className, format string, args ...any) error {
	c := e.vm.Classes.Lookup(className)
	if c == nil || !c.IsSubclassOf(e.vm.ErrorClass) {
		c = e.vm.ErrorClass
	}
	return e.vm.newError(c, format, args...)
}
