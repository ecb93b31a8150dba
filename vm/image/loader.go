package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/candy/vm/chunk"
)

// ---------------------------------------------------------------------------
// Loader: resolves module paths to chunks
// ---------------------------------------------------------------------------

// Loader finds module images. A module path is looked up as
// <dir>/<path>.candyc in each search directory in order; if no file matches
// and a Store is configured, the module index of the store is consulted.
type Loader struct {
	Paths []string
	Store *Store
}

// NewLoader creates a loader over the given search directories.
func NewLoader(store *Store, paths ...string) *Loader {
	return &Loader{Paths: paths, Store: store}
}

// ModuleNotFoundError reports a module path no source could resolve.
type ModuleNotFoundError struct {
	Path     string
	Searched []string
}

func (e *ModuleNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("module %q not found", e.Path)
	}
	return fmt.Sprintf("module %q not found (searched %s)", e.Path, strings.Join(e.Searched, ", "))
}

// Resolve returns the file that Load would read for path, or "" when the
// module is not on disk.
func (l *Loader) Resolve(path string) string {
	if filepath.Ext(path) == Extension || filepath.IsAbs(path) {
		if fileExists(path) {
			return path
		}
		return ""
	}
	rel := filepath.FromSlash(path) + Extension
	for _, dir := range l.Paths {
		candidate := filepath.Join(dir, rel)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// Load returns the chunk for the module path.
func (l *Loader) Load(path string) (*chunk.Chunk, error) {
	if file := l.Resolve(path); file != "" {
		log.Debugf("loading module %s from %s", path, file)
		return ReadFile(file)
	}
	if l.Store != nil {
		c, err := l.Store.LoadModule(path)
		if err == nil {
			log.Debugf("loading module %s from store %s", path, l.Store.path)
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, &ModuleNotFoundError{Path: path, Searched: l.searched()}
}

func (l *Loader) searched() []string {
	out := append([]string(nil), l.Paths...)
	if l.Store != nil {
		out = append(out, "store:"+l.Store.path)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
