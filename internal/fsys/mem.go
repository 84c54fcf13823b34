package fsys

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mem is an in-memory FS used by tests. Paths are cleaned with filepath.Clean
// and compared case-sensitively, like a Linux filesystem.
type Mem struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	dir     bool
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// NewMem returns an empty in-memory filesystem containing only the root.
func NewMem() *Mem {
	m := &Mem{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	m.entries[string(filepath.Separator)] = &memEntry{dir: true, mode: fs.ModeDir | 0755, modTime: m.now()}
	return m
}

func clean(name string) string {
	p := filepath.Clean(name)
	if !filepath.IsAbs(p) {
		p = string(filepath.Separator) + p
	}
	return p
}

func pathErr(op, name string, err error) error {
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// Stat returns file info for name.
func (m *Mem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := clean(name)
	e, ok := m.entries[p]
	if !ok {
		return nil, pathErr("stat", name, fs.ErrNotExist)
	}
	return memInfo{name: filepath.Base(p), entry: e}, nil
}

// ReadDir lists the direct children of name sorted by file name.
func (m *Mem) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := clean(name)
	e, ok := m.entries[p]
	if !ok {
		return nil, pathErr("readdir", name, fs.ErrNotExist)
	}
	if !e.dir {
		return nil, pathErr("readdir", name, fs.ErrInvalid)
	}

	var out []fs.DirEntry
	for path, child := range m.entries {
		if path == p || filepath.Dir(path) != p {
			continue
		}
		out = append(out, fs.FileInfoToDirEntry(memInfo{name: filepath.Base(path), entry: child}))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// ReadFile returns a copy of the file content.
func (m *Mem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[clean(name)]
	if !ok {
		return nil, pathErr("open", name, fs.ErrNotExist)
	}
	if e.dir {
		return nil, pathErr("read", name, fs.ErrInvalid)
	}
	return append([]byte(nil), e.data...), nil
}

// WriteFile creates or truncates name. The parent directory must exist.
func (m *Mem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	parent, ok := m.entries[filepath.Dir(p)]
	if !ok || !parent.dir {
		return pathErr("open", name, fs.ErrNotExist)
	}
	if e, ok := m.entries[p]; ok && e.dir {
		return pathErr("open", name, fs.ErrInvalid)
	}
	m.entries[p] = &memEntry{data: append([]byte(nil), data...), mode: perm, modTime: m.now()}
	return nil
}

// MkdirAll creates name and any missing parents.
func (m *Mem) MkdirAll(name string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	var missing []string
	for cur := p; ; cur = filepath.Dir(cur) {
		if e, ok := m.entries[cur]; ok {
			if !e.dir {
				return pathErr("mkdir", cur, fs.ErrExist)
			}
			break
		}
		missing = append(missing, cur)
		if cur == filepath.Dir(cur) {
			break
		}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		m.entries[missing[i]] = &memEntry{dir: true, mode: fs.ModeDir | perm, modTime: m.now()}
	}
	return nil
}

// RemoveAll deletes name and everything below it. Missing paths are not an error.
func (m *Mem) RemoveAll(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	prefix := p + string(filepath.Separator)
	for path := range m.entries {
		if path == p || strings.HasPrefix(path, prefix) {
			delete(m.entries, path)
		}
	}
	return nil
}

// Rename moves oldpath and its subtree to newpath. Renaming a directory onto
// an existing path fails; a file may replace another file.
func (m *Mem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, to := clean(oldpath), clean(newpath)
	src, ok := m.entries[from]
	if !ok {
		return pathErr("rename", oldpath, fs.ErrNotExist)
	}
	if parent, ok := m.entries[filepath.Dir(to)]; !ok || !parent.dir {
		return pathErr("rename", newpath, fs.ErrNotExist)
	}
	if dst, ok := m.entries[to]; ok && (src.dir || dst.dir) {
		return pathErr("rename", newpath, fs.ErrExist)
	}
	if from == to {
		return nil
	}

	prefix := from + string(filepath.Separator)
	moved := make(map[string]*memEntry)
	for path, e := range m.entries {
		switch {
		case path == from:
			moved[to] = e
		case strings.HasPrefix(path, prefix):
			moved[to+string(filepath.Separator)+strings.TrimPrefix(path, prefix)] = e
		}
	}
	for path := range m.entries {
		if path == from || strings.HasPrefix(path, prefix) {
			delete(m.entries, path)
		}
	}
	for path, e := range moved {
		m.entries[path] = e
	}
	return nil
}

// SetModTime overrides the modification time of name.
func (m *Mem) SetModTime(name string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[clean(name)]; ok {
		e.modTime = t
	}
}

// Paths returns every file path under root, sorted. Directories are omitted.
func (m *Mem) Paths(root string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := clean(root)
	prefix := p + string(filepath.Separator)
	var out []string
	for path, e := range m.entries {
		if !e.dir && strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

type memInfo struct {
	name  string
	entry *memEntry
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return int64(len(i.entry.data)) }
func (i memInfo) Mode() fs.FileMode  { return i.entry.mode }
func (i memInfo) ModTime() time.Time { return i.entry.modTime }
func (i memInfo) IsDir() bool        { return i.entry.dir }
func (i memInfo) Sys() any           { return nil }
