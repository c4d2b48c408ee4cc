// Package storage resolves requested file names to readable files and
// generates synthetic payloads for transfer exercises.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrNotFound       = errors.New("file not found")
	errNotRegularFile = errors.New("not a regular file")
)

// File is an open, sized, random-access handle. Sender sessions re-read
// arbitrary segments during recovery, so sequential readers are not enough.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Store maps wire-requested names to files.
type Store interface {
	Open(name string) (File, error)
}

// Dir serves regular files out of a single directory. Requested names are
// flattened to their base component, so a peer cannot address anything
// outside the root.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) Open(name string) (File, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNotFound)
	}
	path := filepath.Join(d.root, filepath.Base(filepath.Clean("/"+name)))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errNotRegularFile, name)
	}
	return &localFile{f: f, size: info.Size()}, nil
}

type localFile struct {
	f    *os.File
	size int64
}

func (lf *localFile) ReadAt(p []byte, off int64) (int, error) { return lf.f.ReadAt(p, off) }
func (lf *localFile) Close() error                            { return lf.f.Close() }
func (lf *localFile) Size() int64                             { return lf.size }
