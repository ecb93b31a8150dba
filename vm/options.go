package vm

import (
	"bufio"
	"io"

	"github.com/chazu/candy/manifest"
	"github.com/chazu/candy/vm/image"
)

// Option configures a VM.
type Option func(*VM)

// WithMaxFrameDepth limits the frame stack. Exceeding it raises
// StackOverflowError.
func WithMaxFrameDepth(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.maxFrameDepth = n
		}
	}
}

// WithMaxTraceLines limits the trace lines Render prints.
func WithMaxTraceLines(n int) Option {
	return func(vm *VM) {
		vm.maxTraceLines = n
	}
}

// WithStdout redirects program output.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) {
		vm.stdout = w
	}
}

// WithStdin sets the reader behind readLine.
func WithStdin(r io.Reader) Option {
	return func(vm *VM) {
		vm.stdin = bufio.NewReader(r)
	}
}

// WithLoader sets the module loader used by imports.
func WithLoader(l *image.Loader) Option {
	return func(vm *VM) {
		vm.loader = l
	}
}

// WithManifest applies the [vm] and [log] settings of m and resolves
// imports through its module paths and image store.
func WithManifest(m *manifest.Manifest) Option {
	return func(vm *VM) {
		vm.manifest = m
		m.ConfigureLogging()
		if m.VM.MaxFrameDepth > 0 {
			vm.maxFrameDepth = m.VM.MaxFrameDepth
		}
		if m.VM.MaxTraceLines > 0 {
			vm.maxTraceLines = m.VM.MaxTraceLines
		}
	}
}
