//go:build unix

package aio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// File is a file descriptor used for positional I/O.
type File struct {
	fd   int
	path string
	ref  fdRef
}

// Create opens path for reading and writing, creating or truncating it.
func Create(path string) (*File, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_TRUNC|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aio: open %s: %w", path, err)
	}
	return &File{fd: fd, path: path}, nil
}

// Open opens an existing file for reading and writing.
func Open(path string) (*File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("aio: open %s: %w", path, err)
	}
	return &File{fd: fd, path: path}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

func (f *File) closeFD() error {
	return unix.Close(f.fd)
}

func (f *File) pwrite(b []byte, off int64) (int, error) {
	n, err := unix.Pwrite(f.fd, b, off)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (f *File) pread(b []byte, off int64) (int, error) {
	n, err := unix.Pread(f.fd, b, off)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (f *File) sync() error {
	return unix.Fsync(f.fd)
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
