package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

func (f *Frame) readUint8() int {
	v := f.Chunk.Code[f.PC]
	f.PC++
	return int(v)
}

func (f *Frame) readUint16() int {
	code := f.Chunk.Code
	v := int(code[f.PC])<<8 | int(code[f.PC+1])
	f.PC += 2
	return v
}

func (f *Frame) readJump() int {
	return int(int16(f.readUint16()))
}

func (f *Frame) readIndex() int {
	idx, next := chunk.DecodeIndex(f.Chunk.Code, f.PC)
	f.PC = next
	return idx
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Call invokes callee with args and runs it to completion. Natives use it
// through Env.Call to re-enter Candy code.
func (vm *VM) Call(callee Value, args ...Value) (Value, error) {
	base := vm.frames.Depth()
	v, entered, err := vm.invoke(callee, args)
	if err != nil || !entered {
		return v, err
	}
	return vm.execute(base)
}

// invoke starts a call. A call to a user function pushes its frame and
// reports entered; every other call completes here and returns its result.
func (vm *VM) invoke(callee Value, args []Value) (Value, bool, error) {
	switch c := callee.(type) {
	case *Function:
		bound, err := vm.bindArgs(c, args)
		if err != nil {
			return nil, false, err
		}
		return nil, true, vm.enter(c, bound, nil)
	case *NativeFunction:
		bound, err := vm.bindArgs(c, args)
		if err != nil {
			return nil, false, err
		}
		v, err := vm.callNative(c, bound)
		return v, false, err
	case *BoundMethod:
		bound, err := vm.bindArgs(c, args)
		if err != nil {
			return nil, false, err
		}
		return vm.invokeBound(c.Method, withReceiver(bound, c.Receiver), nil)
	case *Class:
		bound, err := vm.bindArgs(c, args)
		if err != nil {
			return nil, false, err
		}
		obj := c.newObject()
		if c.Initializer == nil {
			return obj, false, nil
		}
		return vm.invokeBound(c.Initializer, withReceiver(bound, obj), obj)
	}
	return nil, false, vm.typeError("'%s' object is not callable.", vm.typeName(callee))
}

// invokeBound calls m with arguments that are already bound, receiver
// included. A non-nil construct replaces the result.
func (vm *VM) invokeBound(m Callable, args []Value, construct Value) (Value, bool, error) {
	switch m := m.(type) {
	case *Function:
		return nil, true, vm.enter(m, args, construct)
	case *NativeFunction:
		v, err := vm.callNative(m, args)
		if err != nil {
			return nil, false, err
		}
		if construct != nil {
			return construct, false, nil
		}
		return v, false, nil
	}
	v, err := vm.Call(m, args...)
	if err == nil && construct != nil {
		v = construct
	}
	return v, false, err
}

// withReceiver returns a fresh slice holding args followed by recv, so the
// caller's backing array is never written.
func withReceiver(args []Value, recv Value) []Value {
	out := make([]Value, len(args)+1)
	copy(out, args)
	out[len(args)] = recv
	return out
}

func describe(c Callable) string {
	switch c := c.(type) {
	case *Class:
		return fmt.Sprintf("class '%s'", c.Name)
	case *BoundMethod:
		return fmt.Sprintf("method '%s'", c.FullName())
	case *NativeFunction:
		return fmt.Sprintf("builtin '%s'", c.FullName())
	}
	return fmt.Sprintf("function '%s'", c.FullName())
}

// bindArgs checks the argument count against c and packs excess arguments
// into an array at the var-args position.
func (vm *VM) bindArgs(c Callable, args []Value) ([]Value, error) {
	arity := c.Arity()
	va := c.VarArgsIndex()
	if va < 0 {
		if len(args) != arity {
			return nil, vm.newError(vm.ArgumentErrorClass,
				"The %s takes %d arguments, but %d were given.", describe(c), arity, len(args))
		}
		return args, nil
	}

	fixed := arity - 1
	if len(args) < fixed {
		return nil, vm.newError(vm.ArgumentErrorClass,
			"The %s takes at least %d arguments, but %d were given.", describe(c), fixed, len(args))
	}
	end := len(args) - (fixed - va)
	var rest Value = Null
	if end > va {
		rest = NewArray(append([]Value(nil), args[va:end]...)...)
	}
	bound := make([]Value, 0, arity+1)
	bound = append(bound, args[:va]...)
	bound = append(bound, rest)
	bound = append(bound, args[end:]...)
	return bound, nil
}

// enter pushes a frame running fn with its parameters bound to args.
func (vm *VM) enter(fn *Function, args []Value, construct Value) error {
	f := newFrame(fn.FullName(), fn.Chunk, &fn.Info.Attrs, fn.Info.FromPC, fn.Env)
	f.upvalues = fn.Upvalues
	f.construct = construct
	if len(args) > len(f.slots) {
		f.slots = append(f.slots, make([]Value, len(args)-len(f.slots))...)
	}
	copy(f.slots, args)
	if err := vm.frames.Push(f); err != nil {
		return vm.stackOverflow()
	}
	return nil
}

func (vm *VM) stackOverflow() *ErrorObject {
	return vm.newError(vm.StackOverflowErrorClass, "maximum stack depth (%d) exceeded", vm.frames.Max())
}

// spread expands the arguments whose bit is set in bits.
func (vm *VM) spread(args []Value, bits int64) ([]Value, error) {
	if bits == 0 {
		return args, nil
	}
	out := make([]Value, 0, len(args))
	for i, a := range args {
		if i >= 64 || bits&(1<<uint(i)) == 0 {
			out = append(out, a)
			continue
		}
		switch s := a.(type) {
		case *Array:
			out = append(out, s.Elems...)
		case *Tuple:
			out = append(out, s.Elems...)
		default:
			return nil, vm.typeError("Can't spread a non-sequence: %s.", vm.typeName(a))
		}
	}
	return out, nil
}

// newClosure creates a function for info, capturing upvalues from f.
func (vm *VM) newClosure(f *Frame, info *chunk.MethodInfo, className string) *Function {
	fn := &Function{Info: info, Chunk: f.Chunk, Env: f.env, ClassName: className}
	if len(info.Upvalues) > 0 {
		fn.Upvalues = make([]*Upvalue, len(info.Upvalues))
		for i, d := range info.Upvalues {
			if d.IsLocal {
				fn.Upvalues[i] = f.capture(int(d.Index))
			} else {
				fn.Upvalues[i] = f.upvalues[d.Index]
			}
		}
	}
	return fn
}

// ---------------------------------------------------------------------------
// Execution and unwinding
// ---------------------------------------------------------------------------

// execute runs until the frame stack shrinks back to base and returns the
// value of the last frame popped. Raised errors unwind against the handler
// tables of the frames above base; an error no handler takes is returned.
func (vm *VM) execute(base int) (Value, error) {
	for {
		v, err := vm.run(base)
		if err == nil {
			return v, nil
		}
		var exit *exitSignal
		if errors.As(err, &exit) {
			return nil, err
		}
		e := vm.asErrorObject(err)
		if e.Trace == nil {
			e.Trace = vm.captureTrace()
		}
		if !vm.unwind(e, base) {
			return nil, e
		}
	}
}

// unwind finds the innermost handler covering the current instruction of
// each frame above base, popping frames that have none. The handler starts
// with an empty operand stack holding only the error.
func (vm *VM) unwind(e *ErrorObject, base int) bool {
	for vm.frames.Depth() > base {
		f := vm.frames.Peek()
		if h, ok := f.Attrs.Handlers.Find(f.start); ok {
			log.Debugf("%s: %s caught by handler at %d", f.Name, e.Class.Name, h.HandlerPC)
			f.truncate(0)
			f.Push(e)
			f.PC = h.HandlerPC
			return true
		}
		log.Debugf("%s: unwinding %s", f.Name, e.Class.Name)
		vm.frames.Pop()
	}
	return false
}

// dispatchCall calls callee from f and returns the frame to continue in.
func (vm *VM) dispatchCall(f *Frame, callee Value, args []Value) (*Frame, error) {
	v, entered, err := vm.invoke(callee, args)
	if err != nil {
		return f, err
	}
	if entered {
		return vm.frames.Peek(), nil
	}
	f.Push(v)
	return f, nil
}

// run is the dispatch loop. It returns when the frame at base+1 returns or
// when an instruction raises.
func (vm *VM) run(base int) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = vm.nativeError("%v", r)
		}
	}()

	f := vm.frames.Peek()
	for {
		code := f.Chunk.Code
		if f.PC >= len(code) {
			return nil, vm.nativeError("unexpected end of code in %s", f.Name)
		}
		f.start = f.PC
		op := chunk.Opcode(code[f.PC])
		f.PC++
		pool := f.Chunk.Constants

		switch op {
		case chunk.OpNOP:

		// Stack
		case chunk.OpPOP:
			f.Pop()
		case chunk.OpDUP:
			f.Push(f.Peek(0))
		case chunk.OpDUP2:
			a, b := f.Peek(1), f.Peek(0)
			f.Push(a)
			f.Push(b)
		case chunk.OpROT2:
			f.Swap()
		case chunk.OpROT3:
			f.Rotate3()

		// Constants
		case chunk.OpDCONST:
			f.Push(Double(pool.Double(f.readIndex())))
		case chunk.OpICONST:
			f.Push(Int(pool.Integer(f.readIndex())))
		case chunk.OpSCONST:
			f.Push(String(pool.Utf8(f.readIndex())))
		case chunk.OpFALSE:
			f.Push(False)
		case chunk.OpTRUE:
			f.Push(True)
		case chunk.OpNULL:
			f.Push(Null)

		// Operators
		case chunk.OpNEGATIVE, chunk.OpPOSITIVE:
			v, err := vm.unary(op, f.Pop())
			if err != nil {
				return nil, err
			}
			f.Push(v)
		case chunk.OpNOT:
			f.Push(Bool(!Truthy(f.Pop())))
		case chunk.OpADD, chunk.OpSUB, chunk.OpMUL, chunk.OpDIV, chunk.OpMOD,
			chunk.OpGT, chunk.OpGTEQ, chunk.OpLT, chunk.OpLTEQ, chunk.OpLS, chunk.OpRS:
			b := f.Pop()
			a := f.Pop()
			v, err := vm.binary(op, a, b)
			if err != nil {
				return nil, err
			}
			f.Push(v)
		case chunk.OpEQ, chunk.OpNOTEQ:
			b := f.Pop()
			a := f.Pop()
			eq, err := vm.Equals(a, b)
			if err != nil {
				return nil, err
			}
			f.Push(Bool(eq == (op == chunk.OpEQ)))
		case chunk.OpINSTANCEOF:
			b := f.Pop()
			a := f.Pop()
			c, ok := b.(*Class)
			if !ok {
				return nil, vm.typeError("The right operand of 'is' must be a class, not %s.", vm.typeName(b))
			}
			f.Push(Bool(vm.ClassOf(a).IsSubclassOf(c)))
		case chunk.OpRANGE:
			b := f.Pop()
			a := f.Pop()
			l, ok1 := a.(Int)
			r, ok2 := b.(Int)
			if !ok1 || !ok2 {
				return nil, vm.operatorError(op, a, b)
			}
			f.Push(&Range{Left: int64(l), Right: int64(r)})

		// Control flow
		case chunk.OpPopJumpIfFalse:
			off := f.readJump()
			if !Truthy(f.Pop()) {
				f.PC = f.start + off
			}
		case chunk.OpPopJumpIfTrue:
			off := f.readJump()
			if Truthy(f.Pop()) {
				f.PC = f.start + off
			}
		case chunk.OpPopJumpIfNotNull:
			off := f.readJump()
			if !IsNull(f.Pop()) {
				f.PC = f.start + off
			}
		case chunk.OpJumpIfFalse:
			off := f.readJump()
			if !Truthy(f.Peek(0)) {
				f.PC = f.start + off
			}
		case chunk.OpJumpIfTrue:
			off := f.readJump()
			if Truthy(f.Peek(0)) {
				f.PC = f.start + off
			}
		case chunk.OpJUMP:
			f.PC = f.start + f.readJump()
		case chunk.OpLOOP:
			f.PC = f.start - f.readUint16()

		// Slots
		case chunk.OpLOAD:
			f.Push(f.slots[f.readUint8()])
		case chunk.OpLOAD0, chunk.OpLOAD1, chunk.OpLOAD2, chunk.OpLOAD3, chunk.OpLOAD4:
			f.Push(f.slots[op-chunk.OpLOAD0])
		case chunk.OpSTORE:
			f.slots[f.readUint8()] = f.Peek(0)
		case chunk.OpSTORE0, chunk.OpSTORE1, chunk.OpSTORE2, chunk.OpSTORE3, chunk.OpSTORE4:
			f.slots[op-chunk.OpSTORE0] = f.Peek(0)
		case chunk.OpPopStore:
			f.slots[f.readUint8()] = f.Pop()

		// Upvalues
		case chunk.OpLoadUpvalue:
			f.Push(f.upvalues[f.readUint8()].Load())
		case chunk.OpStoreUpvalue:
			f.upvalues[f.readUint8()].Store(f.Peek(0))
		case chunk.OpCLOSE:
			f.closeSlots(pool.CloseIndexes(f.readIndex()))

		// Attributes and items
		case chunk.OpGetAttr:
			name := pool.Utf8(f.readIndex())
			v, err := vm.GetAttr(f.Pop(), name)
			if err != nil {
				return nil, err
			}
			f.Push(v)
		case chunk.OpSetAttr:
			name := pool.Utf8(f.readIndex())
			obj := f.Pop()
			v := f.Pop()
			if err := vm.SetAttr(obj, name, v); err != nil {
				return nil, err
			}
			f.Push(v)
		case chunk.OpGetItem:
			obj := f.Pop()
			key := f.Pop()
			v, err := vm.GetItem(obj, key)
			if err != nil {
				return nil, err
			}
			f.Push(v)
		case chunk.OpSetItem:
			obj := f.Pop()
			key := f.Pop()
			v := f.Pop()
			if err := vm.SetItem(obj, key, v); err != nil {
				return nil, err
			}
			f.Push(v)

		// Globals
		case chunk.OpGlobalDefine:
			f.env.Define(pool.Utf8(f.readIndex()), f.Pop())
		case chunk.OpGlobalSet:
			name := pool.Utf8(f.readIndex())
			if !f.env.Set(name, f.Peek(0)) {
				return nil, vm.nameError("the variable '%s' not found.", name)
			}
		case chunk.OpGlobalGet:
			v, err := vm.lookupGlobal(f.env, pool.Utf8(f.readIndex()))
			if err != nil {
				return nil, err
			}
			f.Push(v)

		// Calls
		case chunk.OpINVOKE:
			argc := f.readUint8()
			name := pool.Utf8(f.readIndex())
			receiver := f.Pop()
			args := f.popN(argc)
			callee, err := vm.GetAttr(receiver, name)
			if err != nil {
				return nil, err
			}
			if f, err = vm.dispatchCall(f, callee, args); err != nil {
				return nil, err
			}
		case chunk.OpCallGlobal:
			argc := f.readUint8()
			name := pool.Utf8(f.readIndex())
			args := f.popN(argc)
			callee, err := vm.lookupGlobal(f.env, name)
			if err != nil {
				return nil, err
			}
			if f, err = vm.dispatchCall(f, callee, args); err != nil {
				return nil, err
			}
		case chunk.OpCallSlot:
			argc := f.readUint8()
			callee := f.slots[f.readUint8()]
			args := f.popN(argc)
			if f, err = vm.dispatchCall(f, callee, args); err != nil {
				return nil, err
			}
		case chunk.OpCallEx:
			argc := f.readUint8()
			bits := pool.Integer(f.readIndex())
			callee := f.Pop()
			args, err := vm.spread(f.popN(argc), bits)
			if err != nil {
				return nil, err
			}
			if f, err = vm.dispatchCall(f, callee, args); err != nil {
				return nil, err
			}
		case chunk.OpCALL:
			argc := f.readUint8()
			callee := f.Pop()
			args := f.popN(argc)
			if f, err = vm.dispatchCall(f, callee, args); err != nil {
				return nil, err
			}
		case chunk.OpRETURN, chunk.OpReturnNil:
			var v Value = Null
			if op == chunk.OpRETURN {
				v = f.Pop()
			}
			if f.construct != nil {
				v = f.construct
			}
			vm.frames.Pop()
			if vm.frames.Depth() <= base {
				return v, nil
			}
			f = vm.frames.Peek()
			f.Push(v)

		// Definitions
		case chunk.OpFUN:
			info := pool.MethodInfo(f.readIndex())
			f.Push(vm.newClosure(f, info, ""))
			f.PC = info.FromPC + info.Length
		case chunk.OpCLASS:
			info := pool.ClassInfo(f.readIndex())
			superSlot := f.readUint8()
			c, err := vm.defineClass(f, info, superSlot)
			if err != nil {
				return nil, err
			}
			f.Push(c)
		case chunk.OpSuperGet:
			name := pool.Utf8(f.readIndex())
			sv := f.Pop()
			receiver := f.Pop()
			m, err := vm.superMethod(sv, name)
			if err != nil {
				return nil, err
			}
			f.Push(&BoundMethod{Receiver: receiver, Method: m})
		case chunk.OpSuperInvoke:
			argc := f.readUint8()
			name := pool.Utf8(f.readIndex())
			sv := f.Pop()
			receiver := f.Pop()
			args := f.popN(argc)
			m, err := vm.superMethod(sv, name)
			if err != nil {
				return nil, err
			}
			if f, err = vm.dispatchCall(f, &BoundMethod{Receiver: receiver, Method: m}, args); err != nil {
				return nil, err
			}

		// Errors
		case chunk.OpRAISE:
			v := f.Pop()
			e, ok := v.(*ErrorObject)
			if !ok {
				return nil, vm.typeError("Only errors can be raised, not %s.", vm.typeName(v))
			}
			return nil, e
		case chunk.OpMatchErrors:
			off := f.readJump()
			count := f.readUint8()
			matched, err := vm.matchErrors(f, count)
			if err != nil {
				return nil, err
			}
			if !matched {
				f.PC = f.start + off
			}
		case chunk.OpASSERT:
			msg, err := vm.Str(f.Pop())
			if err != nil {
				return nil, err
			}
			return nil, vm.newError(vm.AssertionErrorClass, "%s", msg)

		// Modules
		case chunk.OpImportName:
			name := pool.Utf8(f.readIndex())
			mv := f.Pop()
			m, ok := mv.(*Module)
			if !ok {
				return nil, vm.typeError("Can't import names from a non-module: %s.", vm.typeName(mv))
			}
			v, ok := m.Attr(name)
			if !ok {
				return nil, vm.newError(vm.ModuleErrorClass, "cannot import name '%s' from module '%s'.", name, m.Name)
			}
			f.Push(v)
		case chunk.OpIMPORT:
			name := pool.Utf8(f.readIndex())
			pv := f.Pop()
			path, ok := pv.(String)
			if !ok {
				return nil, vm.typeError("The module path must be a string, not %s.", vm.typeName(pv))
			}
			m, err := vm.importModule(string(path))
			if err != nil {
				return nil, err
			}
			f.env.Define(name, m)

		// Collections
		case chunk.OpNewArray:
			n := pool.Integer(f.readIndex())
			if n < 0 {
				n = 0
			}
			f.Push(&Array{Elems: make([]Value, 0, n)})
		case chunk.OpBuildTuple:
			elems := make([]Value, f.readUint8())
			for i := range elems {
				elems[i] = f.Pop()
			}
			f.Push(&Tuple{Elems: elems})
		case chunk.OpAPPEND:
			n := f.readUint8()
			arr, ok := f.Peek(n).(*Array)
			if !ok {
				return nil, vm.typeError("APPEND target is not an array: %s.", vm.typeName(f.Peek(n)))
			}
			for i := 0; i < n; i++ {
				arr.Append(f.Pop())
			}
		case chunk.OpNewMap:
			f.Push(NewMap(int(pool.Integer(f.readIndex()))))
		case chunk.OpPUT:
			n := f.readUint8()
			m, ok := f.Peek(2 * n).(*Map)
			if !ok {
				return nil, vm.typeError("PUT target is not a map: %s.", vm.typeName(f.Peek(2*n)))
			}
			for i := 0; i < n; i++ {
				key := f.Pop()
				v := f.Pop()
				h, err := vm.mapKey(key)
				if err != nil {
					return nil, err
				}
				m.put(h, key, v)
			}

		// Misc
		case chunk.OpPRINT:
			v := f.Pop()
			if IsNull(v) {
				continue
			}
			s, err := vm.Str(v)
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(vm.stdout, s)
		case chunk.OpEXIT:
			return nil, &exitSignal{}

		default:
			return nil, vm.nativeError("unknown opcode 0x%02x at %s:%d", byte(op), f.Chunk.SourceName, f.start)
		}
	}
}

// ---------------------------------------------------------------------------
// Instruction helpers
// ---------------------------------------------------------------------------

// defineClass materializes a class from info. The superclass, when
// declared, is on the operand stack; it is also stored in superSlot so that
// methods can capture it for super calls.
func (vm *VM) defineClass(f *Frame, info *chunk.ClassInfo, superSlot int) (*Class, error) {
	super := vm.ObjectClass
	if info.HasSuperclass {
		sv := f.Pop()
		sc, ok := sv.(*Class)
		if !ok {
			return nil, vm.typeError("A class can't inherit a non-class: %s -> '%s'", info.Name, vm.typeName(sv))
		}
		if !sc.Inheritable {
			return nil, vm.typeError("The '%s' is a non-inheritable class.", sc.Name)
		}
		super = sc
	}
	if superSlot < len(f.slots) {
		f.slots[superSlot] = super
	}

	c := NewClass(info.Name, super)
	end := f.PC
	define := func(m *chunk.MethodInfo) {
		c.DefineMethod(m.Name, vm.newClosure(f, m, info.Name))
		if e := m.FromPC + m.Length; e > end {
			end = e
		}
	}
	if info.Initializer != nil {
		define(info.Initializer)
	}
	for _, m := range info.Methods {
		define(m)
	}
	f.PC = end
	return c, nil
}

func (vm *VM) superMethod(sv Value, name string) (Callable, error) {
	sc, ok := sv.(*Class)
	if !ok {
		return nil, vm.typeError("super must be a class, not %s.", vm.typeName(sv))
	}
	m, ok := sc.LookupMethod(name)
	if !ok {
		return nil, vm.attributeError("The attribute '%s' is not found in the super class '%s'.", name, sc.Name)
	}
	return m, nil
}

// matchErrors pops count error classes and tests the error beneath them.
// No classes means a catch-all.
func (vm *VM) matchErrors(f *Frame, count int) (bool, error) {
	classes := f.popN(count)
	c := vm.ClassOf(f.Peek(0))
	matched := count == 0
	for _, cv := range classes {
		ec, ok := cv.(*Class)
		if !ok || !ec.IsSubclassOf(vm.ErrorClass) {
			return false, vm.typeError("Can only catch subclasses of Error, not %s.", Repr(cv))
		}
		if c.IsSubclassOf(ec) {
			matched = true
		}
	}
	return matched, nil
}

// importModule loads and runs the module at path once; later imports reuse
// the cached module.
func (vm *VM) importModule(path string) (*Module, error) {
	if m, ok := vm.modules[path]; ok {
		return m, nil
	}
	if vm.importing[path] {
		return nil, vm.newError(vm.ModuleErrorClass, "circular import of module '%s'.", path)
	}
	loader, err := vm.moduleLoader()
	if err != nil {
		return nil, vm.newError(vm.ModuleErrorClass, "cannot open module store: %v", err)
	}
	c, err := loader.Load(path)
	if err != nil {
		return nil, vm.newError(vm.ModuleErrorClass, "cannot import module '%s': %v", path, err)
	}

	vm.importing[path] = true
	defer delete(vm.importing, path)

	env := newFileEnv(c)
	base := vm.frames.Depth()
	if err := vm.frames.Push(newFrame(c.SimpleName(), c, &c.Attrs, 0, env)); err != nil {
		return nil, vm.stackOverflow()
	}
	log.Debugf("importing module %s", path)
	if _, err := vm.execute(base); err != nil {
		return nil, err
	}

	m := &Module{Name: c.SimpleName(), Path: path, env: env}
	vm.modules[path] = m
	return m, nil
}
