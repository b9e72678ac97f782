// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package vfs

import (
	"sync/atomic"
)

// IOCounters accumulates bytes read and written through an FS wrapped with
// WithCounters. Jobs snapshot the counters before starting and diff them
// afterwards to attribute I/O.
type IOCounters struct {
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64
}

// WithCounters wraps fs so that every byte read from or written to its files
// is added to c.
func WithCounters(fs FS, c *IOCounters) FS {
	return &countingFS{FS: fs, c: c}
}

type countingFS struct {
	FS
	c *IOCounters
}

func (fs *countingFS) Create(name string) (File, error) {
	f, err := fs.FS.Create(name)
	if err != nil {
		return nil, err
	}
	return &countingFile{File: f, c: fs.c}, nil
}

func (fs *countingFS) Open(name string) (File, error) {
	f, err := fs.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return &countingFile{File: f, c: fs.c}, nil
}

type countingFile struct {
	File
	c *IOCounters
}

func (f *countingFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	f.c.BytesRead.Add(uint64(n))
	return n, err
}

func (f *countingFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	f.c.BytesWritten.Add(uint64(n))
	return n, err
}
