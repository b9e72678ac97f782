// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"sync"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
)

// BlobFileHandle is an open, exclusively owned output blob file. The handle
// is handed from the manager to a writer; once the writer closes the file,
// the handle's File must not be used again but its FileNum and Path remain
// valid for publication or deletion.
type BlobFileHandle struct {
	FileNum base.DiskFileNum
	File    vfs.File
	Path    string
}

// FinishedBlobFile pairs a finished output file's metadata with its handle
// for batch publication.
type FinishedBlobFile struct {
	Meta   *BlobFileMeta
	Handle *BlobFileHandle
}

// BlobFileManager allocates output blob files and publishes or discards
// them as an atomic batch. Publication is all-or-nothing: either every file
// of a batch becomes normal, or none does and the caller deletes them all.
type BlobFileManager interface {
	// NewFile allocates a fresh blob file open for writing.
	NewFile() (*BlobFileHandle, error)

	// BatchFinishFiles durably publishes files under cf: a manifest edit
	// records them, then their in-memory state transitions to normal. On
	// error, no file was published and the caller must delete the handles.
	BatchFinishFiles(cfID base.ColumnFamilyID, files []FinishedBlobFile) error

	// BatchDeleteFiles removes unpublished output files from the
	// filesystem.
	BatchDeleteFiles(handles []*BlobFileHandle) error
}

// NewBlobFileManager returns the standard manager backed by opts.FS and the
// blob file set's manifest. mu is the engine mutex; BatchFinishFiles
// acquires it around manifest and metadata mutation.
func NewBlobFileManager(opts *Options, mu *sync.Mutex, set *BlobFileSet) BlobFileManager {
	return &fileManager{
		fs:      opts.FS,
		dirname: opts.Dirname,
		logger:  opts.Logger,
		mu:      mu,
		set:     set,
	}
}

type fileManager struct {
	fs      vfs.FS
	dirname string
	logger  base.Logger
	mu      *sync.Mutex
	set     *BlobFileSet
}

func (m *fileManager) NewFile() (*BlobFileHandle, error) {
	fileNum := m.set.NewFileNum()
	path := makeBlobFilepath(m.fs, m.dirname, fileNum)
	f, err := m.fs.Create(path)
	if err != nil {
		return nil, err
	}
	return &BlobFileHandle{FileNum: fileNum, File: f, Path: path}, nil
}

func (m *fileManager) BatchFinishFiles(cfID base.ColumnFamilyID, files []FinishedBlobFile) error {
	if len(files) == 0 {
		return nil
	}
	edit := VersionEdit{ColumnFamilyID: cfID}
	for _, f := range files {
		edit.AddBlobFile(AddedBlobFile{
			FileNum:      f.Meta.FileNum(),
			FileSize:     f.Meta.FileSize(),
			EntryCount:   f.Meta.EntryCount(),
			Smallest:     f.Meta.SmallestKey(),
			Largest:      f.Meta.LargestKey(),
			LiveDataSize: f.Meta.LiveDataSize(),
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.set.logAndSync(&edit); err != nil {
		return err
	}
	storage := m.set.Storage(cfID)
	for _, f := range files {
		f.Meta.markNormal()
		storage.AddFile(f.Meta)
	}
	storage.ComputeGCScore()
	return nil
}

func (m *fileManager) BatchDeleteFiles(handles []*BlobFileHandle) error {
	var firstErr error
	for _, h := range handles {
		if err := m.fs.Remove(h.Path); err != nil {
			m.logger.Errorf("basalt: delete blob file %s failed: %v", h.FileNum, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
