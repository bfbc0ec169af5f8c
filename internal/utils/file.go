package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HashBlockSize is the read size used while hashing local files.
const HashBlockSize = 4096

// FileHash returns the hex MD5 of the file, read in HashBlockSize blocks.
func FileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return HashReader(file)
}

func HashReader(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, HashBlockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// AtomicFile is a hidden temp file next to its target that only becomes
// visible at the target path on Commit.
type AtomicFile struct {
	*os.File
	target    string
	committed bool
}

func NewAtomicFile(target string) (*AtomicFile, error) {
	if err := EnsureParent(target); err != nil {
		return nil, fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}

	return &AtomicFile{File: tmp, target: target}, nil
}

// Commit flushes the temp file to disk and renames it over the target.
func (f *AtomicFile) Commit() error {
	if f.committed {
		return nil
	}
	if err := f.Sync(); err != nil {
		f.Abort()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		f.Abort()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("rename temp to %s: %w", f.target, err)
	}
	f.committed = true
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.committed {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

// CopyFile copies src over dst through an AtomicFile and carries over the
// source modification time.
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := NewAtomicFile(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Abort()
		return err
	}

	if err := dstFile.Commit(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
