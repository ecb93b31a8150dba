package vm

import (
	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// FileEnv: the globals of one compiled file
// ---------------------------------------------------------------------------

// FileEnv holds the global variables defined by one chunk. Functions created
// from the chunk keep a reference to it, so a module's functions see the
// module's globals no matter where they are called from.
type FileEnv struct {
	Chunk   *chunk.Chunk
	names   []string
	globals map[string]Value
}

func newFileEnv(c *chunk.Chunk) *FileEnv {
	return &FileEnv{Chunk: c, globals: make(map[string]Value, len(c.GlobalNames))}
}

// Lookup returns the global named name.
func (e *FileEnv) Lookup(name string) (Value, bool) {
	v, ok := e.globals[name]
	return v, ok
}

// Define creates or replaces a global.
func (e *FileEnv) Define(name string, v Value) {
	if _, ok := e.globals[name]; !ok {
		e.names = append(e.names, name)
	}
	e.globals[name] = v
}

// Set assigns an existing global and reports whether it existed.
func (e *FileEnv) Set(name string, v Value) bool {
	if _, ok := e.globals[name]; !ok {
		return false
	}
	e.globals[name] = v
	return true
}

// Names returns global names in definition order.
func (e *FileEnv) Names() []string {
	return e.names
}

// ---------------------------------------------------------------------------
// Module
// ---------------------------------------------------------------------------

// Module is the value an import binds: the globals of an executed file.
type Module struct {
	Name string
	Path string
	env  *FileEnv
}

func (*Module) candyValue() {}

// Attr returns the module global named name.
func (m *Module) Attr(name string) (Value, bool) {
	return m.env.Lookup(name)
}

// Names returns the exported global names in definition order.
func (m *Module) Names() []string {
	return m.env.Names()
}

// ---------------------------------------------------------------------------
// Global lookup
// ---------------------------------------------------------------------------

// lookupGlobal resolves name in the file environment, then in the builtins.
func (vm *VM) lookupGlobal(env *FileEnv, name string) (Value, error) {
	if env != nil {
		if v, ok := env.Lookup(name); ok {
			return v, nil
		}
	}
	if v, ok := vm.Builtins[name]; ok {
		return v, nil
	}
	return nil, vm.nameError("the variable '%s' not found.", name)
}
