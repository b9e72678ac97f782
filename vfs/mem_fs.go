// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package vfs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors/oserror"
)

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{files: make(map[string]*memFile)}
}

// MemFS is an in-memory FS implementation. Safe for concurrent use.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

type memFile struct {
	name    string
	mu      sync.Mutex
	data    []byte
	modTime time.Time
	synced  bool
}

func (fs *MemFS) clean(name string) string {
	return path.Clean(strings.ReplaceAll(name, string(os.PathSeparator), "/"))
}

// Create implements FS.Create.
func (fs *MemFS) Create(name string) (File, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := &memFile{name: name, modTime: time.Now()}
	fs.files[name] = f
	return &memFileHandle{f: f}, nil
}

// Open implements FS.Open.
func (fs *MemFS) Open(name string) (File, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: oserror.ErrNotExist}
	}
	return &memFileHandle{f: f}, nil
}

// Remove implements FS.Remove.
func (fs *MemFS) Remove(name string) error {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: oserror.ErrNotExist}
	}
	delete(fs.files, name)
	return nil
}

// Rename implements FS.Rename.
func (fs *MemFS) Rename(oldname, newname string) error {
	oldname, newname = fs.clean(oldname), fs.clean(newname)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[oldname]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldname, Err: oserror.ErrNotExist}
	}
	delete(fs.files, oldname)
	f.name = newname
	fs.files[newname] = f
	return nil
}

// List implements FS.List.
func (fs *MemFS) List(dir string) ([]string, error) {
	dir = fs.clean(dir)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	prefix := dir + "/"
	if dir == "." || dir == "/" {
		prefix = ""
	}
	for name := range fs.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, strings.TrimPrefix(name, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stat implements FS.Stat.
func (fs *MemFS) Stat(name string) (os.FileInfo, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: oserror.ErrNotExist}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return memFileInfo{name: path.Base(name), size: int64(len(f.data)), modTime: f.modTime}, nil
}

// MkdirAll implements FS.MkdirAll. Directories are implicit in MemFS.
func (fs *MemFS) MkdirAll(dir string, perm os.FileMode) error { return nil }

// PathJoin implements FS.PathJoin.
func (fs *MemFS) PathJoin(elem ...string) string { return path.Join(elem...) }

type memFileHandle struct {
	f      *memFile
	closed bool
}

func (h *memFileHandle) Close() error {
	h.closed = true
	return nil
}

func (h *memFileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if off >= int64(len(h.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *memFileHandle) Write(p []byte) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	h.f.data = append(h.f.data, p...)
	h.f.modTime = time.Now()
	h.f.synced = false
	return len(p), nil
}

func (h *memFileHandle) Sync() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	h.f.synced = true
	return nil
}

func (h *memFileHandle) Stat() (os.FileInfo, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return memFileInfo{
		name:    path.Base(h.f.name),
		size:    int64(len(h.f.data)),
		modTime: h.f.modTime,
	}, nil
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() os.FileMode  { return 0666 }
func (fi memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() interface{}   { return nil }
