package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/candy/manifest"
	"github.com/chazu/candy/vm/chunk"
	"github.com/chazu/candy/vm/image"
)

var log = commonlog.GetLogger("candy.vm")

// ---------------------------------------------------------------------------
// VM: The Candy Virtual Machine
// ---------------------------------------------------------------------------

// VM is the Candy virtual machine. A VM runs one program at a time and is
// not safe for concurrent use; hosts wanting parallelism create one VM per
// goroutine.
type VM struct {
	// ID identifies this instance in logs.
	ID string

	Classes  *ClassTable
	Builtins map[string]Value

	// Well-known classes
	ObjectClass   *Class
	ClassClass    *Class
	NullClass     *Class
	BoolClass     *Class
	IntegerClass  *Class
	DoubleClass   *Class
	StringClass   *Class
	ArrayClass    *Class
	TupleClass    *Class
	MapClass      *Class
	RangeClass    *Class
	ModuleClass   *Class
	FunctionClass *Class

	// Error hierarchy
	ErrorClass              *Class
	TypeErrorClass          *Class
	ArgumentErrorClass      *Class
	AttributeErrorClass     *Class
	RangeErrorClass         *Class
	NameErrorClass          *Class
	ModuleErrorClass        *Class
	IOErrorClass            *Class
	AssertionErrorClass     *Class
	StackOverflowErrorClass *Class
	NativeErrorClass        *Class

	frames *FrameStack
	env    *Env
	main   *FileEnv

	// Modules
	modules   map[string]*Module
	importing map[string]bool
	loader    *image.Loader
	store     *image.Store
	manifest  *manifest.Manifest

	stdout        io.Writer
	stdin         *bufio.Reader
	maxFrameDepth int
	maxTraceLines int

	// containers currently inside Str and Equals
	rendering map[Value]bool
	comparing map[[2]*Array]bool
}

// ExitStatus is the outcome of a run that did not end in an unhandled
// error.
type ExitStatus struct {
	// Exited is set when the program halted through exit.
	Exited bool
	Code   int

	// Value is the result of the top-level code on normal completion.
	Value Value
}

// NewVM creates a VM with its builtin classes and natives installed.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		ID:            uuid.NewString(),
		Classes:       NewClassTable(),
		Builtins:      make(map[string]Value),
		modules:       make(map[string]*Module),
		importing:     make(map[string]bool),
		stdout:        os.Stdout,
		stdin:         bufio.NewReader(os.Stdin),
		maxFrameDepth: DefaultMaxFrameDepth,
		maxTraceLines: DefaultMaxTraceLines,
	}
	vm.env = &Env{vm: vm}

	for _, opt := range opts {
		opt(vm)
	}
	vm.frames = NewFrameStack(vm.maxFrameDepth)

	// Bootstrap core classes
	vm.bootstrap()

	log.Debugf("vm %s: created, max frame depth %d", vm.ID, vm.frames.Max())
	return vm
}

func (vm *VM) bootstrap() {
	vm.ObjectClass = vm.createClass("Object", nil)

	vm.ClassClass = vm.createBuiltinClass("Class")
	vm.NullClass = vm.createBuiltinClass("Null")
	vm.BoolClass = vm.createBuiltinClass("Bool")
	vm.IntegerClass = vm.createBuiltinClass("Integer")
	vm.DoubleClass = vm.createBuiltinClass("Double")
	vm.StringClass = vm.createBuiltinClass("String")
	vm.ArrayClass = vm.createBuiltinClass("Array")
	vm.TupleClass = vm.createBuiltinClass("Tuple")
	vm.MapClass = vm.createBuiltinClass("Map")
	vm.RangeClass = vm.createBuiltinClass("Range")
	vm.ModuleClass = vm.createBuiltinClass("Module")
	vm.FunctionClass = vm.createBuiltinClass("Function")

	vm.bootstrapErrorClasses()

	vm.mustRegister(builtinFunctions)
	vm.mustRegister(arrayNatives)
	vm.mustRegister(stringNatives)
	vm.mustRegister(mapNatives)
}

// createClass creates a class and registers it as a builtin global.
func (vm *VM) createClass(name string, superclass *Class) *Class {
	c := NewClass(name, superclass)
	vm.Classes.Register(c)
	vm.Builtins[name] = c
	return c
}

// createBuiltinClass creates a class for a builtin value type. Such classes
// can't be subclassed because their instances are not Candy objects.
func (vm *VM) createBuiltinClass(name string) *Class {
	c := vm.createClass(name, vm.ObjectClass)
	c.Inheritable = false
	return c
}

func (vm *VM) mustRegister(specs []NativeSpec) {
	if err := vm.RegisterNatives(specs); err != nil {
		panic(err)
	}
}

// ClassOf returns the class of any value.
func (vm *VM) ClassOf(v Value) *Class {
	switch x := v.(type) {
	case nil, nullValue:
		return vm.NullClass
	case Bool:
		return vm.BoolClass
	case Int:
		return vm.IntegerClass
	case Double:
		return vm.DoubleClass
	case String:
		return vm.StringClass
	case *Array:
		return vm.ArrayClass
	case *Tuple:
		return vm.TupleClass
	case *Map:
		return vm.MapClass
	case *Range:
		return vm.RangeClass
	case *Module:
		return vm.ModuleClass
	case *Class:
		return vm.ClassClass
	case *Function, *BoundMethod, *NativeFunction:
		return vm.FunctionClass
	case object:
		return x.instance().Class
	}
	return vm.ObjectClass
}

func (vm *VM) typeName(v Value) string {
	return vm.ClassOf(v).Name
}

// ---------------------------------------------------------------------------
// Host boundary
// ---------------------------------------------------------------------------

// Run executes the top-level code of c. An error no handler catches is
// returned as an *ErrorObject with its stack trace; exit halts the program
// with Exited set. The frame stack is empty afterwards either way, so the
// VM can run again.
func (vm *VM) Run(c *chunk.Chunk) (ExitStatus, error) {
	if c.Attrs.MaxLocal < 0 || c.Attrs.MaxStack < 0 {
		return ExitStatus{}, vm.nativeError("malformed chunk %s: negative frame size", c.SourceName)
	}
	vm.frames.Clear()
	vm.main = newFileEnv(c)
	if err := vm.frames.Push(newFrame(c.SimpleName(), c, &c.Attrs, 0, vm.main)); err != nil {
		return ExitStatus{}, vm.stackOverflow()
	}

	log.Infof("vm %s: running %s", vm.ID, c.SourceName)
	v, err := vm.execute(0)
	vm.frames.Clear()

	if err != nil {
		var exit *exitSignal
		if errors.As(err, &exit) {
			log.Infof("vm %s: exited with status %d", vm.ID, exit.code)
			return ExitStatus{Exited: true, Code: exit.code}, nil
		}
		e := vm.asErrorObject(err)
		log.Warningf("vm %s: unhandled %s", vm.ID, e.Error())
		return ExitStatus{}, e
	}

	log.Infof("vm %s: finished %s", vm.ID, c.SourceName)
	return ExitStatus{Value: orNull(v)}, nil
}

// RunFile loads a chunk image from path and runs it.
func (vm *VM) RunFile(path string) (ExitStatus, error) {
	c, err := image.ReadFile(path)
	if err != nil {
		return ExitStatus{}, fmt.Errorf("cannot load %s: %w", path, err)
	}
	return vm.Run(c)
}

// RunEntry runs the entry image named by the manifest's [vm] entry.
func (vm *VM) RunEntry() (ExitStatus, error) {
	if vm.manifest == nil || vm.manifest.EntryPath() == "" {
		return ExitStatus{}, errors.New("no entry image configured")
	}
	return vm.RunFile(vm.manifest.EntryPath())
}

// Global returns a global of the most recently run program.
func (vm *VM) Global(name string) (Value, bool) {
	if vm.main == nil {
		return nil, false
	}
	return vm.main.Lookup(name)
}

// Render formats an error with the configured trace limit.
func (vm *VM) Render(e *ErrorObject) string {
	return e.Render(vm.maxTraceLines)
}

// Close releases the module store, if one was opened.
func (vm *VM) Close() error {
	if vm.store == nil {
		return nil
	}
	err := vm.store.Close()
	vm.store = nil
	return err
}

// moduleLoader returns the configured loader, building one from the
// manifest on first use.
func (vm *VM) moduleLoader() (*image.Loader, error) {
	if vm.loader != nil {
		return vm.loader, nil
	}
	paths := []string{"."}
	storePath := ""
	if vm.manifest != nil {
		paths = vm.manifest.ModulePaths()
		storePath = vm.manifest.StorePath()
	}
	if storePath != "" {
		store, err := image.OpenStore(storePath)
		if err != nil {
			return nil, err
		}
		vm.store = store
	}
	vm.loader = image.NewLoader(vm.store, paths...)
	return vm.loader, nil
}
