package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/candy/vm/chunk"
)

// callBuiltin calls the builtin name on a fresh VM writing to out.
func callBuiltin(t *testing.T, vm *VM, name string, args ...Value) (Value, error) {
	t.Helper()
	fn, ok := vm.Builtins[name]
	if !ok {
		t.Fatalf("builtin %s not registered", name)
	}
	return vm.Call(fn, args...)
}

// callMethod calls recv.name(args...).
func callMethod(t *testing.T, vm *VM, recv Value, name string, args ...Value) (Value, error) {
	t.Helper()
	m, err := vm.GetAttr(recv, name)
	if err != nil {
		t.Fatalf("GetAttr %s: %v", name, err)
	}
	return vm.Call(m, args...)
}

// ---------------------------------------------------------------------------
// Free functions
// ---------------------------------------------------------------------------

func TestBuiltinPrint(t *testing.T) {
	var out bytes.Buffer
	vm := NewVM(WithStdout(&out))

	if _, err := callBuiltin(t, vm, "print", String("a"), Int(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := callBuiltin(t, vm, "println", Double(2), NewArray(Int(1), String("x"))); err != nil {
		t.Fatal(err)
	}
	if _, err := callBuiltin(t, vm, "println"); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "a 12.0 [1, x]\n\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestBuiltinReadLine(t *testing.T) {
	vm := NewVM(WithStdin(strings.NewReader("first\r\nlast")))

	for _, want := range []Value{String("first"), String("last"), Null} {
		got, err := callBuiltin(t, vm, "readLine")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("readLine = %v, want %v", got, want)
		}
	}
}

func TestBuiltinConversions(t *testing.T) {
	vm := NewVM()

	if got, _ := callBuiltin(t, vm, "str", Double(1.5)); got != String("1.5") {
		t.Errorf("str(1.5) = %v", got)
	}
	if got, _ := callBuiltin(t, vm, "bool", String("")); got != True {
		t.Errorf("bool(\"\") = %v, want true", got)
	}
	if got, _ := callBuiltin(t, vm, "bool", Null); got != False {
		t.Errorf("bool(null) = %v, want false", got)
	}

	r, err := callBuiltin(t, vm, "range", Int(3), Int(0))
	if err != nil {
		t.Fatal(err)
	}
	arr, err := callBuiltin(t, vm, "array", r)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := vm.Str(arr); s != "[3, 2, 1]" {
		t.Errorf("array(range(3, 0)) = %s", s)
	}

	tup, err := callBuiltin(t, vm, "tuple", String("hé"))
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := vm.Str(tup); s != "(h, é)" {
		t.Errorf("tuple(\"hé\") = %s", s)
	}

	if _, err := callBuiltin(t, vm, "range", Int(1), Double(2)); err == nil {
		t.Error("range(1, 2.0) succeeded, want TypeError")
	}
}

func TestBuiltinMaxMin(t *testing.T) {
	vm := NewVM()

	tests := []struct {
		name string
		args []Value
		want Value
	}{
		{"max", []Value{Int(3), Double(9.5), Int(2)}, Double(9.5)},
		{"min", []Value{Int(3), Double(9.5), Int(2)}, Int(2)},
		{"max", []Value{NewArray(Int(4), Int(8))}, Int(8)},
		{"min", []Value{String("pear"), String("apple")}, String("apple")},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, vm, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.args, got, tt.want)
		}
	}

	_, err := callBuiltin(t, vm, "max")
	e, ok := err.(*ErrorObject)
	if !ok || e.Class != vm.ArgumentErrorClass {
		t.Errorf("max() error = %v, want ArgumentError", err)
	}
}

func TestBuiltinRepeat(t *testing.T) {
	// sum = 0; repeat(4, fun(i) { sum = sum + i }); sum
	b := newBuilder()
	b.EmitInt(0)
	b.EmitUint8(chunk.OpPopStore, 0)
	b.EmitInt(4)
	body := &chunk.MethodInfo{Name: "step", Arity: 1, VarArgsIndex: -1,
		Upvalues: []chunk.UpvalueDesc{{IsLocal: true, Index: 0}}}
	b.EmitFunction(body)
	b.SetLocals(1)
	b.EmitUint8(chunk.OpLoadUpvalue, 0)
	b.EmitLoad(0)
	b.Emit(chunk.OpADD)
	b.EmitUint8(chunk.OpStoreUpvalue, 0)
	b.Emit(chunk.OpRETURN)
	b.EndBody()
	b.EmitArgcIndex(chunk.OpCallGlobal, 2, b.Global("repeat"))
	b.Emit(chunk.OpPOP)
	b.EmitLoad(0)
	b.Emit(chunk.OpRETURN)

	if got := mustRun(t, b.Build()); got != Int(6) {
		t.Errorf("sum = %v, want 6", got)
	}
}

func TestBuiltinRepeatPropagatesErrors(t *testing.T) {
	// repeat(2, fun() { raise TypeError("stop") })
	b := newBuilder()
	b.EmitInt(2)
	body := &chunk.MethodInfo{Name: "step", VarArgsIndex: -1}
	b.EmitFunction(body)
	emitRaise(b, "TypeError", "stop")
	b.EndBody()
	b.EmitArgcIndex(chunk.OpCallGlobal, 2, b.Global("repeat"))
	b.Emit(chunk.OpRETURN)

	e := runError(t, b.Build())
	if e.Message != "stop" {
		t.Errorf("message = %q, want stop", e.Message)
	}
	if e.Trace[0].FrameName != "step" {
		t.Errorf("innermost frame = %s, want step", e.Trace[0].FrameName)
	}
}

func TestBuiltinAttrs(t *testing.T) {
	vm := NewVM()
	inst := NewInstance(NewClass("Box", vm.ObjectClass))

	if _, err := callBuiltin(t, vm, "setAttr", inst, String("w"), Int(3)); err != nil {
		t.Fatal(err)
	}
	if got, _ := callBuiltin(t, vm, "getAttr", inst, String("w")); got != Int(3) {
		t.Errorf("getAttr = %v, want 3", got)
	}
	if got, _ := callBuiltin(t, vm, "hasAttr", inst, String("h")); got != False {
		t.Errorf("hasAttr(h) = %v, want false", got)
	}
	if _, err := callBuiltin(t, vm, "getAttr", Int(1), String("nope")); err == nil {
		t.Error("getAttr on a missing attribute succeeded")
	}
}

func TestBuiltinMethods(t *testing.T) {
	vm := NewVM()
	got, err := callBuiltin(t, vm, "methods", String("x"))
	if err != nil {
		t.Fatal(err)
	}
	s, _ := vm.Str(got)
	if s != "[length, lower, split, upper]" {
		t.Errorf("methods(\"x\") = %s", s)
	}
}

func TestBuiltinMethodsOnModule(t *testing.T) {
	vm := NewVM(WithStdout(&bytes.Buffer{}))
	env := newFileEnv(&chunk.Chunk{SourceName: "/lib/util.cd"})
	env.Define("pi", Int(3))
	env.Define("tau", Int(6))
	mod := &Module{Name: "util", Path: "util", env: env}

	got, err := callBuiltin(t, vm, "methods", mod)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := vm.Str(got); s != "[pi, tau]" {
		t.Errorf("methods(util) = %s, want [pi, tau]", s)
	}
}

func TestBuiltinIsTerminalOnBuffer(t *testing.T) {
	vm := NewVM(WithStdout(&bytes.Buffer{}))
	if got, _ := callBuiltin(t, vm, "isTerminal"); got != False {
		t.Errorf("isTerminal = %v, want false", got)
	}
}

func TestBuiltinCurTime(t *testing.T) {
	vm := NewVM()
	got, err := callBuiltin(t, vm, "curTime")
	if err != nil {
		t.Fatal(err)
	}
	if ms, ok := got.(Int); !ok || ms <= 0 {
		t.Errorf("curTime = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Array, String and Map methods
// ---------------------------------------------------------------------------

func TestArrayMethods(t *testing.T) {
	vm := NewVM()
	arr := NewArray(Int(1), Int(3))

	if _, err := callMethod(t, vm, arr, "insert", Int(1), Int(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := callMethod(t, vm, arr, "append", Int(4)); err != nil {
		t.Fatal(err)
	}
	if s, _ := vm.Str(arr); s != "[1, 2, 3, 4]" {
		t.Errorf("array = %s", s)
	}
	if got, _ := callMethod(t, vm, arr, "indexOf", Double(3)); got != Int(2) {
		t.Errorf("indexOf(3.0) = %v, want 2", got)
	}
	if got, _ := callMethod(t, vm, arr, "indexOf", Int(7)); got != Int(-1) {
		t.Errorf("indexOf(7) = %v, want -1", got)
	}
	if got, _ := callMethod(t, vm, arr, "pop"); got != Int(4) {
		t.Errorf("pop = %v, want 4", got)
	}
	if got, _ := callMethod(t, vm, arr, "size"); got != Int(3) {
		t.Errorf("size = %v, want 3", got)
	}

	_, err := callMethod(t, vm, NewArray(), "pop")
	if e, ok := err.(*ErrorObject); !ok || e.Class != vm.RangeErrorClass {
		t.Errorf("pop on empty = %v, want RangeError", err)
	}
	_, err = callMethod(t, vm, arr, "insert", Int(9), Int(0))
	if e, ok := err.(*ErrorObject); !ok || e.Class != vm.RangeErrorClass {
		t.Errorf("insert out of range = %v, want RangeError", err)
	}
}

func TestStringMethods(t *testing.T) {
	vm := NewVM()
	s := String("Héllo,World")

	if got, _ := callMethod(t, vm, s, "length"); got != Int(11) {
		t.Errorf("length = %v, want 11", got)
	}
	if got, _ := callMethod(t, vm, s, "upper"); got != String("HÉLLO,WORLD") {
		t.Errorf("upper = %v", got)
	}
	if got, _ := callMethod(t, vm, s, "lower"); got != String("héllo,world") {
		t.Errorf("lower = %v", got)
	}
	parts, err := callMethod(t, vm, s, "split", String(","))
	if err != nil {
		t.Fatal(err)
	}
	if str, _ := vm.Str(parts); str != "[Héllo, World]" {
		t.Errorf("split = %s", str)
	}
	if _, err := callMethod(t, vm, s, "split", Int(1)); err == nil {
		t.Error("split(1) succeeded, want TypeError")
	}
}

func TestMapMethods(t *testing.T) {
	vm := NewVM()
	m := NewMap(0)
	m.Put(String("a"), Int(1))
	m.Put(Int(2), String("two"))

	if got, _ := callMethod(t, vm, m, "size"); got != Int(2) {
		t.Errorf("size = %v, want 2", got)
	}
	if got, _ := callMethod(t, vm, m, "containsKey", Double(2)); got != True {
		t.Errorf("containsKey(2.0) = %v, want true", got)
	}
	if got, _ := callMethod(t, vm, m, "remove", String("a")); got != Int(1) {
		t.Errorf("remove(a) = %v, want 1", got)
	}
	if got, _ := callMethod(t, vm, m, "remove", String("a")); got != Null {
		t.Errorf("second remove(a) = %v, want null", got)
	}
	keys, _ := callMethod(t, vm, m, "keys")
	if s, _ := vm.Str(keys); s != "[2]" {
		t.Errorf("keys = %s", s)
	}
}

func TestMapHashCodeProtocol(t *testing.T) {
	// class Key { init(id, this) { this.id = id }; _hashCode(this) { return this.id } }
	// m = {}; m[Key(1)] = "one"; m[Key(1)]
	b := newBuilder()
	initM := &chunk.MethodInfo{Name: "init", Arity: 2, VarArgsIndex: -1}
	hash := &chunk.MethodInfo{Name: "_hashCode", Arity: 1, VarArgsIndex: -1}
	b.EmitClass(&chunk.ClassInfo{Name: "Key", Initializer: initM, Methods: []*chunk.MethodInfo{hash}}, 0)
	b.BeginBody(initM)
	b.EmitLoad(0)
	b.EmitLoad(1)
	b.EmitIndex(chunk.OpSetAttr, b.String("id"))
	b.Emit(chunk.OpReturnNil)
	b.EndBody()
	b.BeginBody(hash)
	b.EmitLoad(0)
	b.EmitIndex(chunk.OpGetAttr, b.String("id"))
	b.Emit(chunk.OpRETURN)
	b.EndBody()
	b.EmitIndex(chunk.OpGlobalDefine, b.Global("Key"))

	b.EmitIndex(chunk.OpNewMap, b.Integer(0))
	b.EmitUint8(chunk.OpPopStore, 1)
	b.EmitString("one")
	b.EmitInt(1)
	b.EmitArgcIndex(chunk.OpCallGlobal, 1, b.Global("Key"))
	b.EmitLoad(1)
	b.Emit(chunk.OpSetItem)
	b.Emit(chunk.OpPOP)
	b.EmitInt(1)
	b.EmitArgcIndex(chunk.OpCallGlobal, 1, b.Global("Key"))
	b.EmitLoad(1)
	b.Emit(chunk.OpGetItem)
	b.Emit(chunk.OpRETURN)

	if got := mustRun(t, b.Build()); got != String("one") {
		t.Errorf("m[Key(1)] = %v, want one", got)
	}
}

func TestMethodOnWrongReceiver(t *testing.T) {
	vm := NewVM()
	upper, _ := vm.StringClass.LookupMethod("upper")
	_, err := vm.Call(&BoundMethod{Receiver: Int(1), Method: upper})
	if e, ok := err.(*ErrorObject); !ok || e.Class != vm.TypeErrorClass {
		t.Errorf("upper on Integer = %v, want TypeError", err)
	}
}
