package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Raising and catching
// ---------------------------------------------------------------------------

// emitRaise emits code raising className(message).
func emitRaise(b *chunk.Builder, className, message string) {
	b.EmitString(message)
	b.EmitArgcIndex(chunk.OpCallGlobal, 1, b.Global(className))
	b.Emit(chunk.OpRAISE)
}

// catchProgram calls fail(), which raises className, inside a try whose
// handler sorts NameError from TypeError and RangeError and re-raises
// anything else.
func catchProgram(className string) *chunk.Chunk {
	b := newBuilder()
	emitFunction(b, "fail", 0, func() {
		emitRaise(b, className, "boom")
		b.Emit(chunk.OpReturnNil)
	})

	try := b.BeginTry()
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("fail"))
	b.EndTry(try)
	b.Emit(chunk.OpRETURN)

	b.MarkHandler(try)
	next := b.NewLabel()
	b.EmitIndex(chunk.OpGlobalGet, b.Global("NameError"))
	b.EmitMatchErrors(next, 1)
	b.Emit(chunk.OpPOP)
	b.EmitString("name")
	b.Emit(chunk.OpRETURN)

	b.Mark(next)
	rethrow := b.NewLabel()
	b.EmitIndex(chunk.OpGlobalGet, b.Global("TypeError"))
	b.EmitIndex(chunk.OpGlobalGet, b.Global("RangeError"))
	b.EmitMatchErrors(rethrow, 2)
	b.Emit(chunk.OpPOP)
	b.EmitString("type or range")
	b.Emit(chunk.OpRETURN)

	b.Mark(rethrow)
	b.Emit(chunk.OpRAISE)
	return b.Build()
}

func TestCatchMatchesErrorClasses(t *testing.T) {
	tests := []struct {
		raise string
		want  Value
	}{
		{"NameError", String("name")},
		{"TypeError", String("type or range")},
		{"RangeError", String("type or range")},
	}
	for _, tt := range tests {
		if got := mustRun(t, catchProgram(tt.raise)); got != tt.want {
			t.Errorf("raise %s: result = %v, want %v", tt.raise, got, tt.want)
		}
	}
}

func TestCatchRethrowsUnmatched(t *testing.T) {
	e := runError(t, catchProgram("ArgumentError"))
	if e.Class.Name != "ArgumentError" || e.Message != "boom" {
		t.Errorf("error = %v, want ArgumentError: boom", e)
	}
	// the trace is the one captured when fail raised
	if len(e.Trace) != 2 || e.Trace[0].FrameName != "fail" {
		t.Errorf("trace = %v", e.Trace)
	}
}

func TestCatchSubclassMatchesSuperclass(t *testing.T) {
	// try { raise IOError("x") } catch Error { return "any" }
	b := newBuilder()
	try := b.BeginTry()
	emitRaise(b, "IOError", "x")
	b.EndTry(try)
	b.MarkHandler(try)
	next := b.NewLabel()
	b.EmitIndex(chunk.OpGlobalGet, b.Global("Error"))
	b.EmitMatchErrors(next, 1)
	b.EmitString("any")
	b.Emit(chunk.OpRETURN)
	b.Mark(next)
	b.Emit(chunk.OpRAISE)

	if got := mustRun(t, b.Build()); got != String("any") {
		t.Errorf("result = %v, want any", got)
	}
}

func TestCatchNonErrorClass(t *testing.T) {
	// catch Integer is a TypeError raised from the handler
	b := newBuilder()
	try := b.BeginTry()
	emitRaise(b, "IOError", "x")
	b.EndTry(try)
	b.MarkHandler(try)
	next := b.NewLabel()
	b.EmitIndex(chunk.OpGlobalGet, b.Global("Integer"))
	b.EmitMatchErrors(next, 1)
	b.Mark(next)
	b.Emit(chunk.OpRETURN)

	e := runError(t, b.Build())
	if e.Class.Name != "TypeError" {
		t.Errorf("class = %s, want TypeError", e.Class.Name)
	}
}

func TestHandlerStartsWithOnlyTheError(t *testing.T) {
	// junk values below the call must be gone when the handler runs
	b := newBuilder()
	emitFunction(b, "fail", 0, func() {
		emitRaise(b, "TypeError", "bad")
		b.Emit(chunk.OpReturnNil)
	})
	b.EmitInt(1)
	b.EmitInt(2)
	try := b.BeginTry()
	b.EmitInt(3)
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("fail"))
	b.EndTry(try)
	b.Emit(chunk.OpRETURN)
	b.MarkHandler(try)
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("depth"))
	b.Emit(chunk.OpRETURN)

	var out bytes.Buffer
	vm := NewVM(WithStdout(&out))
	err := vm.RegisterNatives([]NativeSpec{{Name: "depth", Fn: func(env *Env, _ Value, _ []Value) (Value, error) {
		return Int(env.vm.frames.Peek().StackDepth()), nil
	}}})
	if err != nil {
		t.Fatal(err)
	}
	status, err := vm.Run(b.Build())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// the error plus nothing else
	if status.Value != Int(1) {
		t.Errorf("handler stack depth = %v, want 1", status.Value)
	}
}

func TestInnermostHandlerWins(t *testing.T) {
	// try { try { raise } catch { return "inner" } } catch { return "outer" }
	b := newBuilder()
	outer := b.BeginTry()
	inner := b.BeginTry()
	emitRaise(b, "TypeError", "x")
	b.EndTry(inner)
	b.EndTry(outer)
	b.Emit(chunk.OpReturnNil)
	b.MarkHandler(inner)
	b.EmitString("inner")
	b.Emit(chunk.OpRETURN)
	b.MarkHandler(outer)
	b.EmitString("outer")
	b.Emit(chunk.OpRETURN)

	if got := mustRun(t, b.Build()); got != String("inner") {
		t.Errorf("result = %v, want inner", got)
	}
}

func TestRaiseNonError(t *testing.T) {
	b := newBuilder()
	b.EmitInt(1)
	b.Emit(chunk.OpRAISE)

	e := runError(t, b.Build())
	if e.Class.Name != "TypeError" {
		t.Errorf("class = %s, want TypeError", e.Class.Name)
	}
}

func TestAssert(t *testing.T) {
	b := newBuilder()
	b.EmitString("x must be positive")
	b.Emit(chunk.OpASSERT)

	e := runError(t, b.Build())
	if e.Class.Name != "AssertionError" || e.Message != "x must be positive" {
		t.Errorf("error = %v", e)
	}
}

func TestUserErrorSubclass(t *testing.T) {
	// class MyError(Error) {}; raise MyError("custom")
	b := newBuilder()
	b.EmitIndex(chunk.OpGlobalGet, b.Global("Error"))
	b.EmitClass(&chunk.ClassInfo{Name: "MyError", HasSuperclass: true}, 0)
	b.EmitIndex(chunk.OpGlobalDefine, b.Global("MyError"))
	emitRaise(b, "MyError", "custom")

	e := runError(t, b.Build())
	if e.Class.Name != "MyError" || e.Message != "custom" {
		t.Errorf("error = %v, want MyError: custom", e)
	}
	if e.Class.Superclass.Name != "Error" {
		t.Errorf("superclass = %s, want Error", e.Class.Superclass.Name)
	}
}

// ---------------------------------------------------------------------------
// Stack traces
// ---------------------------------------------------------------------------

func TestTraceLines(t *testing.T) {
	b := chunk.NewBuilder("/src/trace.cd")
	b.SetStack(4)
	b.Line(1)
	emitFunction(b, "inner", 0, func() {
		b.Line(2)
		emitRaise(b, "RangeError", "deep")
		b.Emit(chunk.OpReturnNil)
	})
	emitFunction(b, "outer", 0, func() {
		b.Line(5)
		b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("inner"))
		b.Emit(chunk.OpRETURN)
	})
	b.Line(8)
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("outer"))
	b.Emit(chunk.OpRETURN)

	e := runError(t, b.Build())
	want := []TraceElement{
		{FrameName: "inner", File: "/src/trace.cd", Line: 2},
		{FrameName: "outer", File: "/src/trace.cd", Line: 5},
		{FrameName: "trace", File: "/src/trace.cd", Line: 8},
	}
	if len(e.Trace) != len(want) {
		t.Fatalf("trace = %v, want %v", e.Trace, want)
	}
	for i := range want {
		if e.Trace[i] != want[i] {
			t.Errorf("trace[%d] = %v, want %v", i, e.Trace[i], want[i])
		}
	}

	rendered := e.Render(DefaultMaxTraceLines)
	wantText := "RangeError: deep\n" +
		"    at inner (/src/trace.cd:2)\n" +
		"    at outer (/src/trace.cd:5)\n" +
		"    at trace (/src/trace.cd:8)\n"
	if rendered != wantText {
		t.Errorf("Render =\n%s\nwant\n%s", rendered, wantText)
	}
}

func TestRenderElidesFrames(t *testing.T) {
	e := &ErrorObject{Message: "deep"}
	e.Class = NewClass("StackOverflowError", nil)
	for i := 0; i < 30; i++ {
		e.Trace = append(e.Trace, TraceElement{FrameName: "f", File: "a.cd", Line: i})
	}

	out := e.Render(24)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 26 {
		t.Fatalf("rendered %d lines, want 26", len(lines))
	}
	if lines[25] != "    More 6 ..." {
		t.Errorf("last line = %q", lines[25])
	}
}

func TestErrorNatives(t *testing.T) {
	// try { raise TypeError("oops") } catch e { e.printStackTrace(); return e.stackTrace().size() }
	b := newBuilder()
	try := b.BeginTry()
	emitRaise(b, "TypeError", "oops")
	b.EndTry(try)
	b.MarkHandler(try)
	b.EmitStore(0)
	b.EmitArgcIndex(chunk.OpINVOKE, 0, b.String("printStackTrace"))
	b.Emit(chunk.OpPOP)
	b.EmitLoad(0)
	b.EmitArgcIndex(chunk.OpINVOKE, 0, b.String("stackTrace"))
	b.EmitArgcIndex(chunk.OpINVOKE, 0, b.String("size"))
	b.Emit(chunk.OpRETURN)

	status, out, err := runChunk(t, b.Build())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Value != Int(1) {
		t.Errorf("stackTrace size = %v, want 1", status.Value)
	}
	if out != "TypeError: oops\n    at main (/src/main.cd:1)\n" {
		t.Errorf("printStackTrace wrote %q", out)
	}
}

// ---------------------------------------------------------------------------
// Host errors
// ---------------------------------------------------------------------------

var errTest = errors.New("disk on fire")

func TestNativeGoErrorBecomesNativeError(t *testing.T) {
	b := newBuilder()
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("broken"))
	b.Emit(chunk.OpRETURN)

	vm := NewVM(WithStdout(&bytes.Buffer{}))
	vm.mustRegister([]NativeSpec{{Name: "broken", Fn: func(*Env, Value, []Value) (Value, error) {
		return nil, errTest
	}}})
	_, err := vm.Run(b.Build())
	e, ok := err.(*ErrorObject)
	if !ok {
		t.Fatalf("err = %v (%T), want *ErrorObject", err, err)
	}
	if e.Class != vm.NativeErrorClass || e.Message != errTest.Error() {
		t.Errorf("error = %v", e)
	}
}

func TestNativePanicBecomesNativeError(t *testing.T) {
	b := newBuilder()
	try := b.BeginTry()
	b.EmitArgcIndex(chunk.OpCallGlobal, 0, b.Global("explode"))
	b.EndTry(try)
	b.Emit(chunk.OpRETURN)
	b.MarkHandler(try)
	b.EmitArgcIndex(chunk.OpINVOKE, 0, b.String("message"))
	b.Emit(chunk.OpRETURN)

	vm := NewVM(WithStdout(&bytes.Buffer{}))
	vm.mustRegister([]NativeSpec{{Name: "explode", Fn: func(*Env, Value, []Value) (Value, error) {
		panic("kaboom")
	}}})
	status, err := vm.Run(b.Build())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Value != String("kaboom") {
		t.Errorf("result = %v, want kaboom", status.Value)
	}
}

func TestEnvErrorf(t *testing.T) {
	vm := NewVM()
	err := vm.env.Errorf("IOError", "disk %s", "full")
	e, ok := err.(*ErrorObject)
	if !ok || e.Class != vm.IOErrorClass || e.Message != "disk full" {
		t.Errorf("Errorf = %v", err)
	}
}
