//go:build !unix

package aio

import (
	"errors"
	"io"
	"os"
)

// File is an open file used for positional I/O.
type File struct {
	f    *os.File
	path string
	ref  fdRef
}

// Create opens path for reading and writing, creating or truncating it.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// Open opens an existing file for reading and writing.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

func (f *File) closeFD() error {
	return f.f.Close()
}

func (f *File) pwrite(b []byte, off int64) (int, error) {
	return f.f.WriteAt(b, off)
}

// io.EOF is reported by the read loop, not per call.
func (f *File) pread(b []byte, off int64) (int, error) {
	n, err := f.f.ReadAt(b, off)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (f *File) sync() error {
	return f.f.Sync()
}

func isTransient(err error) bool {
	return false
}
