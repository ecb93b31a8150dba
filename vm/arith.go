package vm

import (
	"math"
	"strings"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// operatorSymbols name operators in error messages.
var operatorSymbols = map[chunk.Opcode]string{
	chunk.OpADD:      "+",
	chunk.OpSUB:      "-",
	chunk.OpMUL:      "*",
	chunk.OpDIV:      "/",
	chunk.OpMOD:      "%",
	chunk.OpGT:       ">",
	chunk.OpGTEQ:     ">=",
	chunk.OpLT:       "<",
	chunk.OpLTEQ:     "<=",
	chunk.OpLS:       "<<",
	chunk.OpRS:       ">>",
	chunk.OpRANGE:    "..",
	chunk.OpNEGATIVE: "-",
	chunk.OpPOSITIVE: "+",
}

// protocolMethods maps operators to the methods user classes may define to
// overload them.
var protocolMethods = map[chunk.Opcode]string{
	chunk.OpADD:      "_add",
	chunk.OpSUB:      "_sub",
	chunk.OpMUL:      "_mul",
	chunk.OpDIV:      "_div",
	chunk.OpMOD:      "_mod",
	chunk.OpGT:       "_gt",
	chunk.OpGTEQ:     "_gteq",
	chunk.OpLT:       "_lt",
	chunk.OpLTEQ:     "_lteq",
	chunk.OpNEGATIVE: "_negative",
	chunk.OpPOSITIVE: "_positive",
}

// protocolMethod returns the user defined method name of v, if any.
func protocolMethod(v Value, name string) (Callable, bool) {
	o, ok := v.(object)
	if !ok {
		return nil, false
	}
	return o.instance().Class.LookupMethod(name)
}

func (vm *VM) operatorError(op chunk.Opcode, a, b Value) *ErrorObject {
	return vm.typeError("The operator '%s' can't apply to types: %s and %s.",
		operatorSymbols[op], vm.typeName(a), vm.typeName(b))
}

// binary applies a binary arithmetic, comparison or shift operator.
func (vm *VM) binary(op chunk.Opcode, a, b Value) (Value, error) {
	if name, ok := protocolMethods[op]; ok {
		if m, ok := protocolMethod(a, name); ok {
			return vm.Call(&BoundMethod{Receiver: a, Method: m}, b)
		}
	}
	switch op {
	case chunk.OpADD:
		return vm.add(a, b)
	case chunk.OpMUL:
		if s, n, ok := stringRepeat(a, b); ok {
			if n < 0 {
				n = 0
			}
			return String(strings.Repeat(string(s), int(n))), nil
		}
		return vm.arith(op, a, b)
	case chunk.OpSUB, chunk.OpDIV, chunk.OpMOD:
		return vm.arith(op, a, b)
	case chunk.OpGT, chunk.OpGTEQ, chunk.OpLT, chunk.OpLTEQ:
		return vm.compare(op, a, b)
	case chunk.OpLS, chunk.OpRS:
		x, ok1 := a.(Int)
		y, ok2 := b.(Int)
		if !ok1 || !ok2 {
			return nil, vm.operatorError(op, a, b)
		}
		shift := uint64(y) & 63
		if op == chunk.OpLS {
			return x << shift, nil
		}
		return x >> shift, nil
	}
	return nil, vm.nativeError("not a binary operator: %s", op)
}

func stringRepeat(a, b Value) (String, Int, bool) {
	if s, ok := a.(String); ok {
		if n, ok := b.(Int); ok {
			return s, n, true
		}
	}
	if n, ok := a.(Int); ok {
		if s, ok := b.(String); ok {
			return s, n, true
		}
	}
	return "", 0, false
}

func (vm *VM) add(a, b Value) (Value, error) {
	_, as := a.(String)
	_, bs := b.(String)
	if as || bs {
		x, err := vm.Str(a)
		if err != nil {
			return nil, err
		}
		y, err := vm.Str(b)
		if err != nil {
			return nil, err
		}
		return String(x + y), nil
	}
	switch x := a.(type) {
	case *Array:
		if y, ok := b.(*Array); ok {
			elems := make([]Value, 0, len(x.Elems)+len(y.Elems))
			elems = append(append(elems, x.Elems...), y.Elems...)
			return &Array{Elems: elems}, nil
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			elems := make([]Value, 0, len(x.Elems)+len(y.Elems))
			elems = append(append(elems, x.Elems...), y.Elems...)
			return &Tuple{Elems: elems}, nil
		}
	}
	return vm.arith(chunk.OpADD, a, b)
}

// arith implements + - * / % on numbers. An integer pair stays integral;
// any double operand promotes both sides.
func (vm *VM) arith(op chunk.Opcode, a, b Value) (Value, error) {
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return vm.intArith(op, x, y)
		case Double:
			return doubleArith(op, float64(x), float64(y)), nil
		}
	case Double:
		switch y := b.(type) {
		case Int:
			return doubleArith(op, float64(x), float64(y)), nil
		case Double:
			return doubleArith(op, float64(x), float64(y)), nil
		}
	}
	return nil, vm.operatorError(op, a, b)
}

func (vm *VM) intArith(op chunk.Opcode, x, y Int) (Value, error) {
	switch op {
	case chunk.OpADD:
		return x + y, nil
	case chunk.OpSUB:
		return x - y, nil
	case chunk.OpMUL:
		return x * y, nil
	case chunk.OpDIV:
		if y == 0 {
			return nil, vm.nativeError("division by zero")
		}
		return x / y, nil
	case chunk.OpMOD:
		if y == 0 {
			return nil, vm.nativeError("division by zero")
		}
		return x % y, nil
	}
	return nil, vm.operatorError(op, x, y)
}

func doubleArith(op chunk.Opcode, x, y float64) Value {
	switch op {
	case chunk.OpADD:
		return Double(x + y)
	case chunk.OpSUB:
		return Double(x - y)
	case chunk.OpMUL:
		return Double(x * y)
	case chunk.OpDIV:
		return Double(x / y)
	}
	return Double(math.Mod(x, y))
}

func toFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Int:
		return float64(v), true
	case Double:
		return float64(v), true
	}
	return 0, false
}

// compare orders numbers as doubles and strings lexically.
func (vm *VM) compare(op chunk.Opcode, a, b Value) (Value, error) {
	var c int
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return nil, vm.operatorError(op, a, b)
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		case x != y: // NaN
			return False, nil
		}
	} else if x, ok := a.(String); ok {
		y, ok := b.(String)
		if !ok {
			return nil, vm.operatorError(op, a, b)
		}
		c = strings.Compare(string(x), string(y))
	} else {
		return nil, vm.operatorError(op, a, b)
	}
	switch op {
	case chunk.OpGT:
		return Bool(c > 0), nil
	case chunk.OpGTEQ:
		return Bool(c >= 0), nil
	case chunk.OpLT:
		return Bool(c < 0), nil
	}
	return Bool(c <= 0), nil
}

// unary applies NEGATIVE or POSITIVE.
func (vm *VM) unary(op chunk.Opcode, v Value) (Value, error) {
	if m, ok := protocolMethod(v, protocolMethods[op]); ok {
		return vm.Call(&BoundMethod{Receiver: v, Method: m})
	}
	switch x := v.(type) {
	case Int:
		if op == chunk.OpNEGATIVE {
			return -x, nil
		}
		return x, nil
	case Double:
		if op == chunk.OpNEGATIVE {
			return -x, nil
		}
		return x, nil
	}
	return nil, vm.typeError("The operator '%s' can't apply to type: %s.", operatorSymbols[op], vm.typeName(v))
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equals compares a and b: numbers by value across Int and Double, strings
// by content, tuples and arrays element by element, user instances through
// _equals, and everything else by identity.
func (vm *VM) Equals(a, b Value) (bool, error) {
	switch x := a.(type) {
	case nil, nullValue:
		return IsNull(b), nil
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y, nil
		case Double:
			return float64(x) == float64(y), nil
		}
		return false, nil
	case Double:
		switch y := b.(type) {
		case Int:
			return float64(x) == float64(y), nil
		case Double:
			return x == y, nil
		}
		return false, nil
	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok {
			return false, nil
		}
		return vm.elemsEqual(x.Elems, y.Elems)
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		pair := [2]*Array{x, y}
		if vm.comparing[pair] {
			return true, nil
		}
		if vm.comparing == nil {
			vm.comparing = make(map[[2]*Array]bool)
		}
		vm.comparing[pair] = true
		defer delete(vm.comparing, pair)
		return vm.elemsEqual(x.Elems, y.Elems)
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y, nil
	}
	if m, ok := protocolMethod(a, "_equals"); ok {
		r, err := vm.Call(&BoundMethod{Receiver: a, Method: m}, b)
		if err != nil {
			return false, err
		}
		return Truthy(r), nil
	}
	if b == nil {
		b = Null
	}
	return a == b, nil
}

func (vm *VM) elemsEqual(xs, ys []Value) (bool, error) {
	if len(xs) != len(ys) {
		return false, nil
	}
	for i := range xs {
		eq, err := vm.Equals(xs[i], ys[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// String conversion
// ---------------------------------------------------------------------------

// Str converts v to its display string. User instances may override the
// conversion with _str, which must return a string.
func (vm *VM) Str(v Value) (string, error) {
	switch x := v.(type) {
	case *Array:
		if vm.rendering[x] {
			return "[...]", nil
		}
		defer vm.enterRender(x)()
		return vm.joinStr("[", x.Elems, "]")
	case *Tuple:
		return vm.joinStr("(", x.Elems, ")")
	case *Map:
		if vm.rendering[x] {
			return "{...}", nil
		}
		defer vm.enterRender(x)()
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			ks, err := vm.Str(k)
			if err != nil {
				return "", err
			}
			vs, err := vm.Str(x.values[i])
			if err != nil {
				return "", err
			}
			sb.WriteString(ks)
			sb.WriteString(": ")
			sb.WriteString(vs)
		}
		sb.WriteByte('}')
		return sb.String(), nil
	}
	if m, ok := protocolMethod(v, "_str"); ok {
		r, err := vm.Call(&BoundMethod{Receiver: v, Method: m})
		if err != nil {
			return "", err
		}
		s, ok := r.(String)
		if !ok {
			return "", vm.typeError("_str returned non-string (type %s)", vm.typeName(r))
		}
		return string(s), nil
	}
	return Repr(v), nil
}

// enterRender marks v as being rendered and returns the func that clears
// the mark. A container reached again while marked renders as "[...]" or
// "{...}".
func (vm *VM) enterRender(v Value) func() {
	if vm.rendering == nil {
		vm.rendering = make(map[Value]bool)
	}
	vm.rendering[v] = true
	return func() { delete(vm.rendering, v) }
}

func (vm *VM) joinStr(open string, elems []Value, close string) (string, error) {
	var sb strings.Builder
	sb.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		s, err := vm.Str(e)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	sb.WriteString(close)
	return sb.String(), nil
}

// ---------------------------------------------------------------------------
// Map keys
// ---------------------------------------------------------------------------

type instanceHash struct {
	class *Class
	code  any
}

// mapKey hashes key for map storage. Instances defining _hashCode hash by
// the returned code within their class; everything else uses hashKey.
func (vm *VM) mapKey(key Value) (any, error) {
	m, ok := protocolMethod(key, "_hashCode")
	if !ok {
		return hashKey(key), nil
	}
	code, err := vm.Call(&BoundMethod{Receiver: key, Method: m})
	if err != nil {
		return nil, err
	}
	return instanceHash{class: key.(object).instance().Class, code: hashKey(code)}, nil
}
