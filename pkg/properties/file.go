package properties

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// File is a Store backed by one YAML document mapping component names to
// their values:
//
//	root.db:
//	  dsn: postgres://localhost:5432/app
//	  max_conns: "20"
//	root.http:
//	  port: "8080"
//
// The document is read when the store is opened and on Reload. Store
// rewrites the whole file.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]map[string]string
}

var _ Store = (*File)(nil)

// OpenFile loads path. A missing file is an empty store that is created on
// the first Store.
func OpenFile(path string) (*File, error) {
	if strings.Contains(path, "..") {
		return nil, sserr.New(sserr.CodeValidationFormat,
			"properties: file path must not contain directory traversal (..) sequences")
	}
	f := &File{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// MustFile is OpenFile that panics on error. Use it only at process
// bootstrap.
func MustFile(path string) *File {
	f, err := OpenFile(path)
	if err != nil {
		panic(err)
	}
	return f
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Reload re-reads the file.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = nil, nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalStorage,
			"properties: failed to read %s", f.path)
	}

	values := make(map[string]map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return sserr.Wrapf(err, sserr.CodeValidationFormat,
			"properties: failed to parse %s", f.path)
	}

	f.mu.Lock()
	f.values = values
	f.mu.Unlock()
	return nil
}

// Resolve returns the values of component named in names.
func (f *File) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.values[component], names), nil
}

// Store merges values into component's values and rewrites the file. The
// file is replaced atomically.
func (f *File) Store(ctx context.Context, component string, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]map[string]string, len(f.values)+1)
	for k, v := range f.values {
		next[k] = maps.Clone(v)
	}
	if next[component] == nil {
		next[component] = make(map[string]string, len(values))
	}
	maps.Copy(next[component], values)

	data, err := yaml.Marshal(next)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalStorage, "properties: failed to encode values")
	}
	if err := writeAtomic(f.path, data); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalStorage,
			"properties: failed to write %s", f.path)
	}
	f.values = next
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
