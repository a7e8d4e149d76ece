// Package filex holds filesystem helpers used while handling uploads.
package filex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by Spool when the source exceeds the size limit.
var ErrTooLarge = errors.New("upload exceeds maximum size")

func EnsureSubdDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// SpooledFile is a seekable, random-access copy of an upload body backed by
// a temporary file. Close removes the file.
type SpooledFile struct {
	*os.File
	size int64
}

// Size returns the number of bytes spooled.
func (f *SpooledFile) Size() int64 { return f.size }

// Close closes and deletes the temporary file.
func (f *SpooledFile) Close() error {
	name := f.Name()
	cerr := f.File.Close()
	rerr := os.Remove(name)
	if cerr != nil {
		return cerr
	}
	if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return rerr
	}
	return nil
}

// Spool copies r into a new temporary file inside dir (the OS temp dir when
// empty) and rewinds it. At most maxBytes are accepted when maxBytes > 0.
func Spool(dir string, r io.Reader, maxBytes int64) (*SpooledFile, error) {
	f, err := os.CreateTemp(dir, "upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	sf := &SpooledFile{File: f}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = sf.Close()
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		_ = sf.Close()
		return nil, ErrTooLarge
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = sf.Close()
		return nil, fmt.Errorf("rewind: %w", err)
	}
	sf.size = n
	return sf, nil
}
