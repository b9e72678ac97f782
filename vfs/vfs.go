// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package vfs abstracts the filesystem operations the storage layer needs so
// that tests can run against an in-memory implementation and so that I/O can
// be wrapped with counting or fault-injecting middleware.
package vfs

import (
	"io"
	"os"
	"path/filepath"
)

// File is a readable and writable file handle. Files opened for reading are
// accessed through ReadAt; files opened for writing are append-only.
type File interface {
	io.Closer
	io.ReaderAt
	io.Writer

	// Sync flushes buffered writes to stable storage.
	Sync() error
	// Stat returns metadata for the file.
	Stat() (os.FileInfo, error)
}

// FS is a namespace of files.
type FS interface {
	// Create creates the named file for writing, truncating it if it already
	// exists.
	Create(name string) (File, error)

	// Open opens the named file for reading.
	Open(name string) (File, error)

	// Remove removes the named file.
	Remove(name string) error

	// Rename renames a file, overwriting the file at newname if one exists.
	Rename(oldname, newname string) error

	// List returns the names of the files within dir.
	List(dir string) ([]string, error)

	// Stat returns metadata for the named file.
	Stat(name string) (os.FileInfo, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(dir string, perm os.FileMode) error

	// PathJoin joins path elements with the FS-specific separator.
	PathJoin(elem ...string) string
}

// Default is the FS backed by the underlying operating system's filesystem.
var Default FS = defaultFS{}

type defaultFS struct{}

func (defaultFS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (defaultFS) Open(name string) (File, error) {
	return os.Open(name)
}

func (defaultFS) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) PathJoin(elem ...string) string {
	return filepath.Join(elem...)
}
