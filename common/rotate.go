package common

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// rotatingFile is an append-only log file that rotates itself once a write
// would take it past maxSize. Rotated files are gzip-compressed next to it
// and at most maxBackups of them are kept.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	size       int64
	maxSize    int64
	maxBackups int
}

func openRotatingFile(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	if isSymlink(path) {
		return nil, errors.New("security error: log file is a symlink")
	}
	r := &rotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}

	if info, err := os.Stat(path); err == nil && info.Size() >= maxSize {
		r.archive()
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	r.file = file
	r.size = info.Size()
	return nil
}

// Write appends p, rotating first if needed.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate archives the current file and starts a new one. Callers hold r.mu.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil
	r.archive()
	return r.open()
}

// archive compresses the file at r.path away and prunes old archives.
func (r *rotatingFile) archive() {
	stamp := time.Now().Format("20060102-150405.000000000")
	archived := fmt.Sprintf("%s.%s.gz", r.path, stamp)

	if err := gzipFile(r.path, archived); err != nil {
		// Keep the content uncompressed rather than lose it
		os.Remove(archived)
		os.Rename(r.path, archived[:len(archived)-len(".gz")])
	} else {
		os.Remove(r.path)
	}
	r.prune()
}

// prune removes the oldest archives beyond maxBackups.
func (r *rotatingFile) prune() {
	matches, err := filepath.Glob(r.path + ".*")
	if err != nil || len(matches) <= r.maxBackups {
		return
	}

	// Archive names sort by their timestamp
	sort.Strings(matches)
	for _, m := range matches[:len(matches)-r.maxBackups] {
		os.Remove(m)
	}
}

// Close closes the current file.
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return err
	}
	return gz.Close()
}

// isSymlink checks if a path is a symbolic link.
// Returns false if path doesn't exist (safe to create).
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
