package fsys

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxMergeDepth bounds directory walks so a cyclic or corrupt tree cannot run away.
const maxMergeDepth = 64

// Exists reports whether name exists.
func Exists(fsys FS, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}

// IsDir reports whether name exists and is a directory.
func IsDir(fsys FS, name string) bool {
	info, err := fsys.Stat(name)
	return err == nil && info.IsDir()
}

// IsFile reports whether name exists and is a regular file.
func IsFile(fsys FS, name string) bool {
	info, err := fsys.Stat(name)
	return err == nil && !info.IsDir()
}

// SplitRelative splits a relative reference on both slash styles, dropping empty parts.
func SplitRelative(rel string) []string {
	return strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' })
}

// Within reports whether child is parent or lies below it.
func Within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "" {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ResolveFold joins rel onto base one segment at a time. Each segment first
// tries an exact match and then a case-insensitive match among the entries
// of the current directory. It returns false when a segment cannot be found
// or when rel climbs out of base with a ".." segment.
func ResolveFold(fsys FS, base, rel string) (string, bool) {
	current := base
	for _, part := range SplitRelative(rel) {
		switch part {
		case ".":
			continue
		case "..":
			return "", false
		}
		direct := filepath.Join(current, part)
		if Exists(fsys, direct) {
			current = direct
			continue
		}

		entries, err := fsys.ReadDir(current)
		if err != nil {
			return "", false
		}
		found := ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), part) {
				found = filepath.Join(current, e.Name())
				break
			}
		}
		if found == "" {
			return "", false
		}
		current = found
	}
	return current, true
}

// FindDirFold returns the child directory of parent whose name matches name
// case-insensitively.
func FindDirFold(fsys FS, parent, name string) (string, bool) {
	entries, err := fsys.ReadDir(parent)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(parent, e.Name()), true
		}
	}
	return "", false
}

// CopyFile copies src to dst, creating dst's directory and overwriting any
// existing file.
func CopyFile(fsys FS, src, dst string) error {
	data, err := fsys.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return fsys.WriteFile(dst, data, info.Mode().Perm())
}

// MergeDir copies the tree under src into dst. Files already present in dst
// are overwritten; files only in dst are kept. The walk is iterative.
func MergeDir(fsys FS, src, dst string) error {
	type pair struct {
		src, dst string
		depth    int
	}

	stack := []pair{{src: src, dst: dst}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.depth > maxMergeDepth {
			return fmt.Errorf("merge %s: directory tree deeper than %d levels", src, maxMergeDepth)
		}

		entries, err := fsys.ReadDir(p.src)
		if err != nil {
			return err
		}
		if err := fsys.MkdirAll(p.dst, 0755); err != nil {
			return err
		}

		for _, e := range entries {
			from := filepath.Join(p.src, e.Name())
			to := filepath.Join(p.dst, e.Name())
			if e.IsDir() {
				stack = append(stack, pair{src: from, dst: to, depth: p.depth + 1})
				continue
			}
			if err := CopyFile(fsys, from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

// Walk visits every file and directory below root. Paths passed to fn are relative to root using forward slashes.
func Walk(fsys FS, root string, fn func(rel string, isDir bool) error) error {
	type item struct {
		path  string
		depth int
	}

	stack := []item{{path: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > maxMergeDepth {
			return fmt.Errorf("walk %s: directory tree deeper than %d levels", root, maxMergeDepth)
		}

		entries, err := fsys.ReadDir(it.path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rel, err := filepath.Rel(root, filepath.Join(it.path, e.Name()))
			if err != nil {
				return err
			}
			if err := fn(filepath.ToSlash(rel), e.IsDir()); err != nil {
				return err
			}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].IsDir() {
				stack = append(stack, item{path: filepath.Join(it.path, entries[i].Name()), depth: it.depth + 1})
			}
		}
	}
	return nil
}
