// Package content loads and decodes segment and style resources.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

var ErrNotFound = errors.New("content: resource not found")

// FSLoader resolves resource names inside a file system. Legacy content
// names files with inconsistent case, so a name that does not exist exactly
// is matched case-insensitively one path element at a time.
type FSLoader struct {
	fsys fs.FS
}

func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// NewDirLoader loads resources below root.
func NewDirLoader(root string) *FSLoader {
	return NewFSLoader(os.DirFS(root))
}

func (l *FSLoader) Load(name string) ([]byte, error) {
	clean := cleanName(name)
	data, err := fs.ReadFile(l.fsys, clean)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	resolved, ok := l.resolve(clean)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fs.ReadFile(l.fsys, resolved)
}

func (l *FSLoader) resolve(name string) (string, bool) {
	fold := cases.Fold()
	dir := "."
	for _, elem := range strings.Split(name, "/") {
		entries, err := fs.ReadDir(l.fsys, dir)
		if err != nil {
			return "", false
		}
		want := fold.String(elem)
		found := ""
		for _, e := range entries {
			if fold.String(e.Name()) == want {
				found = e.Name()
				break
			}
		}
		if found == "" {
			return "", false
		}
		dir = path.Join(dir, found)
	}
	return dir, true
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// MapLoader serves resources from memory. Names are case-insensitive.
type MapLoader struct {
	mu    sync.Mutex
	fold  cases.Caser
	files map[string][]byte
}

func NewMapLoader() *MapLoader {
	return &MapLoader{fold: cases.Fold(), files: make(map[string][]byte)}
}

func (l *MapLoader) Add(name string, data []byte) {
	l.mu.Lock()
	l.files[l.fold.String(cleanName(name))] = data
	l.mu.Unlock()
}

func (l *MapLoader) Load(name string) ([]byte, error) {
	l.mu.Lock()
	data, ok := l.files[l.fold.String(cleanName(name))]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}
