// Package archive builds the single-entry zip payloads submitted as imports
// and unpacks the zip files returned by exports.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 64 << 20

// Pack returns a zip archive holding data under name.
func Pack(name string, data []byte) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("archive: entry name must not be empty")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return nil, fmt.Errorf("archive: create entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("archive: write entry %q: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Extract unpacks every entry of the zip in data below dir and returns the
// written paths in archive order. Entries that would land outside dir are
// rejected.
func Extract(data []byte, dir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve %q: %w", dir, err)
	}

	paths := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return paths, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return paths, fmt.Errorf("archive: mkdir %q: %w", target, err)
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return paths, err
		}
		paths = append(paths, target)
	}
	return paths, nil
}

func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive: entry %q escapes %q", name, root)
	}
	return target, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir for %q: %w", target, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("archive: open entry %q: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("archive: create %q: %w", target, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("archive: write %q: %w", target, err)
	}
	if n > maxEntrySize {
		return fmt.Errorf("archive: entry %q exceeds %d bytes", f.Name, maxEntrySize)
	}
	return nil
}
