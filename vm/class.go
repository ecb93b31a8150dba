package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Class: single inheritance with copy-down method tables
// ---------------------------------------------------------------------------

// InitializerName is the method name of class initializers.
const InitializerName = "init"

// Class is a Candy class. Classes are values and are callable: calling one
// allocates an instance and runs the initializer with the instance bound as
// receiver.
type Class struct {
	Name       string
	Superclass *Class

	// Methods is the flattened method table. It starts as a copy of the
	// superclass table and is never consulted along the superclass chain, so
	// later changes to a superclass do not reach existing subclasses.
	Methods map[string]Callable

	// Initializer is the resolved init method, inherited like any method.
	Initializer Callable

	// Inheritable is false for builtin value classes such as Integer.
	Inheritable bool

	// alloc creates the raw object for a class call. Error classes allocate
	// *ErrorObject; nil means a plain *Instance.
	alloc func(c *Class) Value
}

func (*Class) candyValue() {}

// NewClass creates a class whose method table is a copy of superclass's.
func NewClass(name string, superclass *Class) *Class {
	c := &Class{
		Name:        name,
		Superclass:  superclass,
		Methods:     make(map[string]Callable),
		Inheritable: true,
	}
	if superclass != nil {
		for k, m := range superclass.Methods {
			c.Methods[k] = m
		}
		c.Initializer = superclass.Initializer
		c.alloc = superclass.alloc
	}
	return c
}

// DefineMethod adds or replaces a method in this class only.
func (c *Class) DefineMethod(name string, m Callable) {
	c.Methods[name] = m
	if name == InitializerName {
		c.Initializer = m
	}
}

// LookupMethod returns the method registered under name.
func (c *Class) LookupMethod(name string) (Callable, bool) {
	m, ok := c.Methods[name]
	return m, ok
}

// BindMethod returns name bound to receiver, or nil.
func (c *Class) BindMethod(name string, receiver Value) *BoundMethod {
	if m, ok := c.Methods[name]; ok {
		return &BoundMethod{Receiver: receiver, Method: m}
	}
	return nil
}

// MethodNames returns the sorted names of all methods.
func (c *Class) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSubclassOf returns true if c is a subclass of other (or is the same class).
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
	}
	return false
}

// FullName, Arity and VarArgsIndex make a class Callable. A class takes the
// arguments of its initializer minus the receiver.

func (c *Class) FullName() string { return c.Name }

func (c *Class) Arity() int {
	if c.Initializer == nil {
		return 0
	}
	return c.Initializer.Arity() - 1
}

func (c *Class) VarArgsIndex() int {
	if c.Initializer == nil {
		return -1
	}
	return c.Initializer.VarArgsIndex()
}

// newObject allocates the receiver of a class call.
func (c *Class) newObject() Value {
	if c.alloc != nil {
		return c.alloc(c)
	}
	return NewInstance(c)
}

// ---------------------------------------------------------------------------
// Instance
// ---------------------------------------------------------------------------

// Instance is an object of a user defined class. Attributes keep their
// definition order.
type Instance struct {
	Class *Class
	attrs *attrTable
}

// NewInstance creates an instance with no attributes.
func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, attrs: newAttrTable()}
}

func (*Instance) candyValue() {}

func (i *Instance) instance() *Instance { return i }

// Attr returns the attribute stored under name.
func (i *Instance) Attr(name string) (Value, bool) {
	return i.attrs.get(name)
}

// SetAttr stores an attribute.
func (i *Instance) SetAttr(name string, v Value) {
	i.attrs.set(name, v)
}

// AttrNames returns attribute names in definition order.
func (i *Instance) AttrNames() []string {
	return i.attrs.names
}

// object is implemented by values that carry an attribute table.
type object interface {
	Value
	instance() *Instance
}

type attrTable struct {
	names  []string
	values map[string]Value
}

func newAttrTable() *attrTable {
	return &attrTable{values: make(map[string]Value)}
}

func (t *attrTable) get(name string) (Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

func (t *attrTable) set(name string, v Value) {
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = v
}

// ---------------------------------------------------------------------------
// ClassTable: per-VM registry of named classes
// ---------------------------------------------------------------------------

// ClassTable maps class names to classes. Each VM owns one; builtin classes
// are registered during bootstrap.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	old := ct.classes[c.Name]
	ct.classes[c.Name] = c
	return old
}

// Lookup finds a class by name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}
