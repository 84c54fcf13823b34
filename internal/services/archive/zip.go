package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

// unpack extracts the container at archivePath into destDir.
func unpack(fs fsys.FS, archivePath, destDir string) error {
	data, err := fs.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return invalidArchive(err, "Invalid archive: not a zip container")
	}

	for _, file := range reader.File {
		name := strings.ReplaceAll(file.Name, `\`, "/")
		destPath := filepath.Join(destDir, filepath.FromSlash(name))

		// Check for zip slip
		if !isSubPath(destDir, destPath) {
			return invalidArchive(nil, "Invalid archive: entry %s escapes the archive root", file.Name)
		}

		if file.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			if err := fs.MkdirAll(destPath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := fs.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}
		if err := extractFile(fs, file, destPath); err != nil {
			return err
		}
	}
	return nil
}

// pack writes every file and directory under srcDir into a new container at
// outputPath, replacing any existing file.
func pack(fs fsys.FS, srcDir, outputPath string) error {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	err := fsys.Walk(fs, srcDir, func(rel string, isDir bool) error {
		if isDir {
			_, err := w.Create(rel + "/")
			return err
		}
		data, err := fs.ReadFile(filepath.Join(srcDir, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		entry, err := w.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
		if err != nil {
			return err
		}
		_, err = entry.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", srcDir, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	if err := fs.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	if err := fs.RemoveAll(outputPath); err != nil {
		return err
	}
	return fs.WriteFile(outputPath, buf.Bytes(), 0644)
}

// isSubPath checks if child is inside parent (prevents zip slip)
func isSubPath(parent, child string) bool {
	return fsys.Within(parent, child)
}

func extractFile(fs fsys.FS, file *zip.File, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	return fs.WriteFile(destPath, data, mode)
}
