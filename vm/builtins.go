package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// receiver asserts the receiver type of a native method.
func receiver[T Value](env *Env, self Value, class string) (T, error) {
	r, ok := self.(T)
	if !ok {
		var zero T
		return zero, env.vm.typeError("The method requires a '%s' receiver, not '%s'.", class, env.vm.typeName(self))
	}
	return r, nil
}

func intArg(env *Env, v Value, what string) (int64, error) {
	i, ok := v.(Int)
	if !ok {
		return 0, env.vm.typeError("The %s must be an integer, not %s.", what, env.vm.typeName(v))
	}
	return int64(i), nil
}

func stringArg(env *Env, v Value, what string) (string, error) {
	s, ok := v.(String)
	if !ok {
		return "", env.vm.typeError("The %s must be a string, not %s.", what, env.vm.typeName(v))
	}
	return string(s), nil
}

// restArgs unpacks a var-args parameter.
func restArgs(v Value) []Value {
	if a, ok := v.(*Array); ok {
		return a.Elems
	}
	return nil
}

// sequence returns the elements of an iterable value.
func sequence(env *Env, v Value) ([]Value, error) {
	switch s := v.(type) {
	case *Array:
		return s.Elems, nil
	case *Tuple:
		return s.Elems, nil
	case *Range:
		elems := make([]Value, 0, s.Len())
		if s.Left <= s.Right {
			for i := s.Left; i < s.Right; i++ {
				elems = append(elems, Int(i))
			}
		} else {
			for i := s.Left; i > s.Right; i-- {
				elems = append(elems, Int(i))
			}
		}
		return elems, nil
	case String:
		elems := make([]Value, 0, len(s))
		for _, r := range string(s) {
			elems = append(elems, String(r))
		}
		return elems, nil
	case *Map:
		return s.Keys(), nil
	}
	return nil, env.vm.typeError("'%s' object is not iterable.", env.vm.typeName(v))
}

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

var builtinFunctions = []NativeSpec{
	{Name: "print", Arity: 1, VarArgs: true, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		return nil, writeValues(env, restArgs(args[0]), "")
	}},
	{Name: "println", Arity: 1, VarArgs: true, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		return nil, writeValues(env, restArgs(args[0]), "\n")
	}},
	{Name: "readLine", Fn: func(env *Env, _ Value, _ []Value) (Value, error) {
		line, err := env.vm.stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, env.vm.newError(env.vm.IOErrorClass, "%v", err)
		}
		if err != nil && line == "" {
			return Null, nil
		}
		return String(strings.TrimRight(line, "\r\n")), nil
	}},
	{Name: "str", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		s, err := env.vm.Str(args[0])
		return String(s), err
	}},
	{Name: "bool", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		return Bool(Truthy(args[0])), nil
	}},
	{Name: "range", Arity: 2, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		l, err := intArg(env, args[0], "range start")
		if err != nil {
			return nil, err
		}
		r, err := intArg(env, args[1], "range end")
		if err != nil {
			return nil, err
		}
		return &Range{Left: l, Right: r}, nil
	}},
	{Name: "array", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		elems, err := sequence(env, args[0])
		if err != nil {
			return nil, err
		}
		return NewArray(append([]Value(nil), elems...)...), nil
	}},
	{Name: "tuple", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		elems, err := sequence(env, args[0])
		if err != nil {
			return nil, err
		}
		return &Tuple{Elems: append([]Value(nil), elems...)}, nil
	}},
	{Name: "max", Arity: 1, VarArgs: true, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		return extreme(env, restArgs(args[0]), "max", true)
	}},
	{Name: "min", Arity: 1, VarArgs: true, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		return extreme(env, restArgs(args[0]), "min", false)
	}},
	{Name: "getAttr", Arity: 2, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		name, err := stringArg(env, args[1], "attribute name")
		if err != nil {
			return nil, err
		}
		return env.vm.rawGetAttr(args[0], name)
	}},
	{Name: "setAttr", Arity: 3, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		name, err := stringArg(env, args[1], "attribute name")
		if err != nil {
			return nil, err
		}
		return args[2], env.vm.rawSetAttr(args[0], name, args[2])
	}},
	{Name: "hasAttr", Arity: 2, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		name, err := stringArg(env, args[1], "attribute name")
		if err != nil {
			return nil, err
		}
		return Bool(env.vm.HasAttr(args[0], name)), nil
	}},
	{Name: "methods", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		var names []string
		switch o := args[0].(type) {
		case *Module:
			names = o.Names()
		case *Class:
			names = o.MethodNames()
		default:
			names = env.vm.ClassOf(o).MethodNames()
		}
		out := NewArray()
		for _, n := range names {
			out.Append(String(n))
		}
		return out, nil
	}},
	{Name: "repeat", Arity: 2, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		n, err := intArg(env, args[0], "repeat count")
		if err != nil {
			return nil, err
		}
		fn, ok := args[1].(Callable)
		if !ok {
			return nil, env.vm.typeError("'%s' object is not callable.", env.vm.typeName(args[1]))
		}
		withIndex := fn.Arity() == 1
		for i := int64(0); i < n; i++ {
			if withIndex {
				_, err = env.Call(fn, Int(i))
			} else {
				_, err = env.Call(fn)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	}},
	{Name: "isTerminal", Fn: func(env *Env, _ Value, _ []Value) (Value, error) {
		f, ok := env.vm.stdout.(*os.File)
		if !ok {
			return False, nil
		}
		return Bool(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())), nil
	}},
	{Name: "curTime", Fn: func(env *Env, _ Value, _ []Value) (Value, error) {
		return Int(time.Now().UnixMilli()), nil
	}},
	{Name: "importModule", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		path, err := stringArg(env, args[0], "module path")
		if err != nil {
			return nil, err
		}
		m, err := env.vm.importModule(path)
		if err != nil {
			return nil, err
		}
		return m, nil
	}},
	{Name: "exit", Arity: 1, Fn: func(env *Env, _ Value, args []Value) (Value, error) {
		code, err := intArg(env, args[0], "exit code")
		if err != nil {
			return nil, err
		}
		return nil, &exitSignal{code: int(code)}
	}},
}

func writeValues(env *Env, vals []Value, end string) error {
	parts := make([]string, len(vals))
	for i, v := range vals {
		s, err := env.vm.Str(v)
		if err != nil {
			return err
		}
		parts[i] = s
	}
	_, err := io.WriteString(env.vm.stdout, strings.Join(parts, " ")+end)
	if err != nil {
		return env.vm.newError(env.vm.IOErrorClass, "%v", err)
	}
	return nil
}

// extreme implements max and min. A single sequence argument is searched
// element-wise.
func extreme(env *Env, vals []Value, name string, greater bool) (Value, error) {
	if len(vals) == 1 {
		if elems, err := sequence(env, vals[0]); err == nil {
			vals = elems
		}
	}
	if len(vals) == 0 {
		return nil, env.vm.newError(env.vm.ArgumentErrorClass, "%s() arg is an empty sequence.", name)
	}
	op := chunk.OpLT
	if greater {
		op = chunk.OpGT
	}
	best := vals[0]
	for _, v := range vals[1:] {
		r, err := env.vm.compare(op, v, best)
		if err != nil {
			return nil, err
		}
		if Truthy(r) {
			best = v
		}
	}
	return best, nil
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

var arrayNatives = []NativeSpec{
	{Class: "Array", Name: "append", Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		a, err := receiver[*Array](env, self, "Array")
		if err != nil {
			return nil, err
		}
		a.Append(args[0])
		return a, nil
	}},
	{Class: "Array", Name: "size", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		a, err := receiver[*Array](env, self, "Array")
		if err != nil {
			return nil, err
		}
		return Int(len(a.Elems)), nil
	}},
	{Class: "Array", Name: "pop", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		a, err := receiver[*Array](env, self, "Array")
		if err != nil {
			return nil, err
		}
		n := len(a.Elems)
		if n == 0 {
			return nil, env.vm.rangeError("pop from empty array.")
		}
		v := a.Elems[n-1]
		a.Elems = a.Elems[:n-1]
		return v, nil
	}},
	{Class: "Array", Name: "insert", Arity: 2, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		a, err := receiver[*Array](env, self, "Array")
		if err != nil {
			return nil, err
		}
		i, err := intArg(env, args[0], "index")
		if err != nil {
			return nil, err
		}
		if i < 0 || int(i) > len(a.Elems) {
			return nil, env.vm.rangeError("index %d out of range [0, %d].", i, len(a.Elems))
		}
		a.Elems = append(a.Elems, nil)
		copy(a.Elems[i+1:], a.Elems[i:])
		a.Elems[i] = args[1]
		return a, nil
	}},
	{Class: "Array", Name: "indexOf", Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		a, err := receiver[*Array](env, self, "Array")
		if err != nil {
			return nil, err
		}
		for i, e := range a.Elems {
			eq, err := env.vm.Equals(e, args[0])
			if err != nil {
				return nil, err
			}
			if eq {
				return Int(i), nil
			}
		}
		return Int(-1), nil
	}},
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

var stringNatives = []NativeSpec{
	{Class: "String", Name: "length", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		s, err := receiver[String](env, self, "String")
		if err != nil {
			return nil, err
		}
		return Int(utf8.RuneCountInString(string(s))), nil
	}},
	{Class: "String", Name: "upper", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		s, err := receiver[String](env, self, "String")
		if err != nil {
			return nil, err
		}
		return String(strings.ToUpper(string(s))), nil
	}},
	{Class: "String", Name: "lower", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		s, err := receiver[String](env, self, "String")
		if err != nil {
			return nil, err
		}
		return String(strings.ToLower(string(s))), nil
	}},
	{Class: "String", Name: "split", Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		s, err := receiver[String](env, self, "String")
		if err != nil {
			return nil, err
		}
		sep, err := stringArg(env, args[0], "separator")
		if err != nil {
			return nil, err
		}
		out := NewArray()
		for _, part := range strings.Split(string(s), sep) {
			out.Append(String(part))
		}
		return out, nil
	}},
}

// ---------------------------------------------------------------------------
// Map
// ---------------------------------------------------------------------------

var mapNatives = []NativeSpec{
	{Class: "Map", Name: "size", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		m, err := receiver[*Map](env, self, "Map")
		if err != nil {
			return nil, err
		}
		return Int(m.Len()), nil
	}},
	{Class: "Map", Name: "containsKey", Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		m, err := receiver[*Map](env, self, "Map")
		if err != nil {
			return nil, err
		}
		h, err := env.vm.mapKey(args[0])
		if err != nil {
			return nil, err
		}
		_, ok := m.get(h)
		return Bool(ok), nil
	}},
	{Class: "Map", Name: "remove", Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		m, err := receiver[*Map](env, self, "Map")
		if err != nil {
			return nil, err
		}
		h, err := env.vm.mapKey(args[0])
		if err != nil {
			return nil, err
		}
		v, _ := m.remove(h)
		return v, nil
	}},
	{Class: "Map", Name: "keys", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		m, err := receiver[*Map](env, self, "Map")
		if err != nil {
			return nil, err
		}
		return NewArray(append([]Value(nil), m.Keys()...)...), nil
	}},
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

var errorNatives = []NativeSpec{
	{Class: "Error", Name: InitializerName, Arity: 1, Fn: func(env *Env, self Value, args []Value) (Value, error) {
		e, err := receiver[*ErrorObject](env, self, "Error")
		if err != nil {
			return nil, err
		}
		msg, err := env.vm.Str(args[0])
		if err != nil {
			return nil, err
		}
		e.Message = msg
		return nil, nil
	}},
	{Class: "Error", Name: "message", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		e, err := receiver[*ErrorObject](env, self, "Error")
		if err != nil {
			return nil, err
		}
		return String(e.Message), nil
	}},
	{Class: "Error", Name: "stackTrace", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		e, err := receiver[*ErrorObject](env, self, "Error")
		if err != nil {
			return nil, err
		}
		out := NewArray()
		for _, t := range e.Trace {
			out.Append(String(t.String()))
		}
		return out, nil
	}},
	{Class: "Error", Name: "printStackTrace", Fn: func(env *Env, self Value, _ []Value) (Value, error) {
		e, err := receiver[*ErrorObject](env, self, "Error")
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Fprint(env.vm.stdout, env.vm.Render(e)); err != nil {
			return nil, env.vm.newError(env.vm.IOErrorClass, "%v", err)
		}
		return nil, nil
	}},
}
