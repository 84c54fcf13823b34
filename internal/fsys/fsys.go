// Package fsys isolates the filesystem operations used by archive persistence
// behind a narrow interface, so directory canonicalization and merging can be
// exercised against an in-memory tree.
package fsys

import (
	"io/fs"
	"os"
)

// FS is the set of filesystem operations the profile services need.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(name string, perm fs.FileMode) error
	RemoveAll(name string) error
	Rename(oldpath, newpath string) error
}

// OS is the real filesystem.
type OS struct{}

// NewOS returns the real filesystem.
func NewOS() OS { return OS{} }

func (OS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (OS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OS) ReadFile(name string) ([]byte, error)       { return os.ReadFile(name) }
func (OS) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(name, perm)
}
func (OS) RemoveAll(name string) error { return os.RemoveAll(name) }
func (OS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
func (OS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}
