package vm

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// GetAttr reads obj.name as GET_ATTR does. User classes may intercept the
// read with _getAttr.
func (vm *VM) GetAttr(obj Value, name string) (Value, error) {
	if m, ok := protocolMethod(obj, "_getAttr"); ok {
		return vm.Call(&BoundMethod{Receiver: obj, Method: m}, String(name))
	}
	return vm.rawGetAttr(obj, name)
}

// rawGetAttr resolves an attribute without the _getAttr hook.
func (vm *VM) rawGetAttr(obj Value, name string) (Value, error) {
	switch o := obj.(type) {
	case object:
		inst := o.instance()
		if v, ok := inst.Attr(name); ok {
			return v, nil
		}
		if b := inst.Class.BindMethod(name, obj); b != nil {
			return b, nil
		}
		if m, ok := inst.Class.LookupMethod("_getUnknownAttr"); ok {
			return vm.Call(&BoundMethod{Receiver: obj, Method: m}, String(name))
		}
	case *Class:
		switch name {
		case "className", "name":
			return String(o.Name), nil
		case "superClass":
			if o.Superclass == nil {
				return Null, nil
			}
			return o.Superclass, nil
		}
		if m, ok := o.LookupMethod(name); ok {
			return m, nil
		}
	case *Module:
		if v, ok := o.Attr(name); ok {
			return v, nil
		}
	case *Range:
		switch name {
		case "left":
			return Int(o.Left), nil
		case "right":
			return Int(o.Right), nil
		}
	case *Function:
		switch name {
		case "name":
			return String(o.Name()), nil
		case "arity":
			return Int(o.Arity()), nil
		case "vararg":
			return Bool(o.Info.HasVarArgs()), nil
		}
	}
	if _, ok := obj.(object); !ok {
		if b := vm.ClassOf(obj).BindMethod(name, obj); b != nil {
			return b, nil
		}
	}
	return nil, vm.attributeError("'%s' object has no attribute '%s'.", vm.typeName(obj), name)
}

// HasAttr reports whether obj.name resolves without the _getAttr hook.
func (vm *VM) HasAttr(obj Value, name string) bool {
	switch o := obj.(type) {
	case object:
		inst := o.instance()
		if _, ok := inst.Attr(name); ok {
			return true
		}
		_, ok := inst.Class.LookupMethod(name)
		return ok
	case *Module:
		_, ok := o.Attr(name)
		return ok
	}
	_, err := vm.rawGetAttr(obj, name)
	return err == nil
}

// SetAttr writes obj.name = v as SET_ATTR does. Only instances carry
// writable attributes; _setAttr intercepts the write.
func (vm *VM) SetAttr(obj Value, name string, v Value) error {
	if m, ok := protocolMethod(obj, "_setAttr"); ok {
		_, err := vm.Call(&BoundMethod{Receiver: obj, Method: m}, String(name), v)
		return err
	}
	return vm.rawSetAttr(obj, name, v)
}

func (vm *VM) rawSetAttr(obj Value, name string, v Value) error {
	if o, ok := obj.(object); ok {
		o.instance().SetAttr(name, v)
		return nil
	}
	return vm.attributeError("'%s' object attribute '%s' is read-only.", vm.typeName(obj), name)
}

// ---------------------------------------------------------------------------
// Item access
// ---------------------------------------------------------------------------

// index resolves v against a sequence of length n. Negative indices count
// from the end, so -1 is the last element.
func (vm *VM) index(v Value, n int) (int, error) {
	i, ok := v.(Int)
	if !ok {
		return 0, vm.typeError("indices must be integers, not %s.", vm.typeName(v))
	}
	pos := int64(i)
	if pos < 0 {
		pos += int64(n)
	}
	if pos < 0 || pos >= int64(n) {
		return 0, vm.rangeError("index %d out of range [%d, %d).", i, -n, n)
	}
	return int(pos), nil
}

// GetItem reads obj[key].
func (vm *VM) GetItem(obj, key Value) (Value, error) {
	switch o := obj.(type) {
	case *Array:
		i, err := vm.index(key, len(o.Elems))
		if err != nil {
			return nil, err
		}
		return o.Elems[i], nil
	case *Tuple:
		i, err := vm.index(key, len(o.Elems))
		if err != nil {
			return nil, err
		}
		return o.Elems[i], nil
	case String:
		r := []rune(string(o))
		i, err := vm.index(key, len(r))
		if err != nil {
			return nil, err
		}
		return String(r[i]), nil
	case *Map:
		h, err := vm.mapKey(key)
		if err != nil {
			return nil, err
		}
		if v, ok := o.get(h); ok {
			return v, nil
		}
		ks, err := vm.Str(key)
		if err != nil {
			return nil, err
		}
		return nil, vm.attributeError("The key '%s' is not found in the map.", ks)
	}
	if m, ok := protocolMethod(obj, "_getItem"); ok {
		return vm.Call(&BoundMethod{Receiver: obj, Method: m}, key)
	}
	return nil, vm.typeError("'%s' object is not subscriptable.", vm.typeName(obj))
}

// SetItem writes obj[key] = v.
func (vm *VM) SetItem(obj, key, v Value) error {
	switch o := obj.(type) {
	case *Array:
		i, err := vm.index(key, len(o.Elems))
		if err != nil {
			return err
		}
		o.Elems[i] = v
		return nil
	case *Map:
		h, err := vm.mapKey(key)
		if err != nil {
			return err
		}
		o.put(h, key, v)
		return nil
	case *Tuple, String:
		return vm.typeError("'%s' object does not support item assignment.", vm.typeName(obj))
	}
	if m, ok := protocolMethod(obj, "_setItem"); ok {
		_, err := vm.Call(&BoundMethod{Receiver: obj, Method: m}, key, v)
		return err
	}
	return vm.typeError("'%s' object does not support item assignment.", vm.typeName(obj))
}
