package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// ErrorObject: a raised Candy error
// ---------------------------------------------------------------------------

// DefaultMaxTraceLines bounds the stack trace printed for an error.
const DefaultMaxTraceLines = 24

// TraceElement is one line of a stack trace.
type TraceElement struct {
	FrameName string
	File      string
	Line      int
}

func (t TraceElement) String() string {
	return fmt.Sprintf("at %s (%s:%d)", t.FrameName, t.File, t.Line)
}

// ErrorObject is an instance of Error or one of its subclasses. It is both
// a Candy value and a Go error.
type ErrorObject struct {
	Instance
	Message string

	// Trace is captured the first time the error is raised, innermost
	// frame first.
	Trace []TraceElement
}

func newErrorObject(c *Class) Value {
	return &ErrorObject{Instance: Instance{Class: c, attrs: newAttrTable()}}
}

func (e *ErrorObject) Error() string {
	return e.Class.Name + ": " + e.Message
}

// Render formats the error and at most maxLines trace lines. Elided frames
// are summarized on a final line.
func (e *ErrorObject) Render(maxLines int) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteByte('\n')
	shown := e.Trace
	if maxLines >= 0 && len(shown) > maxLines {
		shown = shown[:maxLines]
	}
	for _, t := range shown {
		sb.WriteString("    ")
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	if more := len(e.Trace) - len(shown); more > 0 {
		fmt.Fprintf(&sb, "    More %d ...\n", more)
	}
	return sb.String()
}

// exitSignal unwinds every frame when the program halts.
type exitSignal struct {
	code int
}

func (e *exitSignal) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// ---------------------------------------------------------------------------
// Error classes
// ---------------------------------------------------------------------------

func (vm *VM) bootstrapErrorClasses() {
	// Error is the root of every raised value
	vm.ErrorClass = vm.createClass("Error", vm.ObjectClass)
	vm.ErrorClass.alloc = newErrorObject

	// subclasses copy these methods down, so they go in first
	vm.mustRegister(errorNatives)

	vm.TypeErrorClass = vm.createClass("TypeError", vm.ErrorClass)
	vm.ArgumentErrorClass = vm.createClass("ArgumentError", vm.ErrorClass)
	vm.AttributeErrorClass = vm.createClass("AttributeError", vm.ErrorClass)
	vm.RangeErrorClass = vm.createClass("RangeError", vm.ErrorClass)
	vm.NameErrorClass = vm.createClass("NameError", vm.ErrorClass)
	vm.ModuleErrorClass = vm.createClass("ModuleError", vm.ErrorClass)
	vm.IOErrorClass = vm.createClass("IOError", vm.ErrorClass)
	vm.AssertionErrorClass = vm.createClass("AssertionError", vm.ErrorClass)
	vm.StackOverflowErrorClass = vm.createClass("StackOverflowError", vm.ErrorClass)

	// NativeError wraps host failures
	vm.NativeErrorClass = vm.createClass("NativeError", vm.ErrorClass)
}

// newError creates an error of class c with a formatted message. The trace
// is filled in when the error is raised.
func (vm *VM) newError(c *Class, format string, args ...any) *ErrorObject {
	e := newErrorObject(c).(*ErrorObject)
	if len(args) == 0 {
		e.Message = format
	} else {
		e.Message = fmt.Sprintf(format, args...)
	}
	return e
}

func (vm *VM) typeError(format string, args ...any) *ErrorObject {
	return vm.newError(vm.TypeErrorClass, format, args...)
}

func (vm *VM) attributeError(format string, args ...any) *ErrorObject {
	return vm.newError(vm.AttributeErrorClass, format, args...)
}

func (vm *VM) rangeError(format string, args ...any) *ErrorObject {
	return vm.newError(vm.RangeErrorClass, format, args...)
}

func (vm *VM) nameError(format string, args ...any) *ErrorObject {
	return vm.newError(vm.NameErrorClass, format, args...)
}

func (vm *VM) nativeError(format string, args ...any) *ErrorObject {
	return vm.newError(vm.NativeErrorClass, format, args...)
}

// asErrorObject converts any error raised during execution into a Candy
// error. Foreign Go errors become NativeErrors.
func (vm *VM) asErrorObject(err error) *ErrorObject {
	var eo *ErrorObject
	if errors.As(err, &eo) {
		return eo
	}
	return vm.nativeError("%s", err.Error())
}

// captureTrace snapshots the frame stack, innermost frame first.
func (vm *VM) captureTrace() []TraceElement {
	n := vm.frames.Depth()
	trace := make([]TraceElement, 0, n)
	for i := n - 1; i >= 0; i-- {
		f := vm.frames.At(i)
		trace = append(trace, TraceElement{
			FrameName: f.Name,
			File:      f.Chunk.SourceName,
			Line:      f.Line(),
		})
	}
	return trace
}
