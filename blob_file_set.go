// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"
	"sync/atomic"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/swiss"
)

// blobStorage tracks the blob files of one column family. All mutation and
// all reads of mutable file state happen with the engine mutex held.
type blobStorage struct {
	cfID  base.ColumnFamilyID
	files swiss.Map[base.DiskFileNum, *BlobFileMeta]

	// ratioLevels counts non-obsolete files per discardable-ratio bucket.
	ratioLevels [numDiscardableRatioLevels]int

	// gcScores is recomputed by ComputeGCScore after liveness changes and
	// consumed by the GC picker, ordered by descending score.
	gcScores []gcScore
}

// gcScore ranks a blob file for garbage collection. Score is the file's
// discardable ratio.
type gcScore struct {
	fileNum base.DiskFileNum
	score   float64
}

func newBlobStorage(cfID base.ColumnFamilyID) *blobStorage {
	s := &blobStorage{cfID: cfID}
	s.files.Init(16)
	return s
}

// AddFile registers a blob file.
func (s *blobStorage) AddFile(m *BlobFileMeta) {
	s.files.Put(m.fileNum, m)
	if !m.IsObsolete() {
		s.ratioLevels[m.discardableRatioLevel()]++
	}
}

// FindFile returns the metadata of the blob file with the given number, or
// nil if the storage does not know the file.
func (s *blobStorage) FindFile(fileNum base.DiskFileNum) *BlobFileMeta {
	m, _ := s.files.Get(fileNum)
	return m
}

// NumFiles returns the number of tracked files.
func (s *blobStorage) NumFiles() int { return s.files.Len() }

// updateLiveDataSize applies a live-size delta to file m, keeping the
// ratio-level buckets consistent.
func (s *blobStorage) updateLiveDataSize(m *BlobFileMeta, delta int64) {
	if !m.IsObsolete() {
		s.ratioLevels[m.discardableRatioLevel()]--
	}
	m.UpdateLiveDataSize(delta)
	if !m.IsObsolete() {
		s.ratioLevels[m.discardableRatioLevel()]++
	}
}

// markObsolete transitions file m to obsolete at seq, keeping the
// ratio-level buckets consistent.
func (s *blobStorage) markObsolete(m *BlobFileMeta, seq base.SeqNum) {
	if !m.IsObsolete() {
		s.ratioLevels[m.discardableRatioLevel()]--
	}
	m.MarkObsolete(seq)
}

// ComputeGCScore recomputes the per-file GC scores, ordered by descending
// discardable ratio. Only normal-state files participate.
func (s *blobStorage) ComputeGCScore() {
	s.gcScores = s.gcScores[:0]
	s.files.All(func(_ base.DiskFileNum, m *BlobFileMeta) bool {
		if m.State() == BlobFileStateNormal {
			s.gcScores = append(s.gcScores, gcScore{
				fileNum: m.fileNum,
				score:   m.DiscardableRatio(),
			})
		}
		return true
	})
	sort.Slice(s.gcScores, func(i, j int) bool {
		if s.gcScores[i].score != s.gcScores[j].score {
			return s.gcScores[i].score > s.gcScores[j].score
		}
		return s.gcScores[i].fileNum < s.gcScores[j].fileNum
	})
}

// BlobFileSet owns the blob manifest and the per-column-family blob
// storages. Manifest edits are applied through LogAndApply: the edit is made
// durable in the manifest before the in-memory state changes.
//
// File numbers are allocated from the set's counter and are not reused while
// the set is open. The counter is persisted only through manifest edits: on
// reopen it resumes from the highest number the manifest records, so a
// number that was allocated but never recorded (an unpublished output or a
// shadow file) can be allocated again. Methods that touch per-file mutable state require the engine mutex, as
// does LogAndApply.
type BlobFileSet struct {
	opts    *Options
	fs      vfs.FS
	dirname string

	manifest    vfs.File
	nextFileNum atomic.Uint64

	// storages is guarded by the engine mutex.
	storages map[base.ColumnFamilyID]*blobStorage

	editBuf []byte
}

// OpenBlobFileSet opens the blob file set in opts.Dirname, replaying an
// existing manifest if one is present.
func OpenBlobFileSet(opts *Options) (*BlobFileSet, error) {
	s := &BlobFileSet{
		opts:     opts,
		fs:       opts.FS,
		dirname:  opts.Dirname,
		storages: make(map[base.ColumnFamilyID]*blobStorage),
	}
	if err := s.fs.MkdirAll(s.dirname, 0755); err != nil {
		return nil, err
	}
	path := s.fs.PathJoin(s.dirname, blobManifestName)
	if err := s.replay(path); err != nil {
		return nil, err
	}
	// The manifest is append-only for the lifetime of the set. Replayed
	// edits are rewritten to a fresh manifest so the old one can be
	// truncated.
	manifest, err := s.fs.Create(path + ".new")
	if err != nil {
		return nil, err
	}
	s.manifest = manifest
	if err := s.writeSnapshot(); err != nil {
		_ = manifest.Close()
		return nil, err
	}
	if err := s.fs.Rename(path+".new", path); err != nil {
		_ = manifest.Close()
		return nil, err
	}
	return s, nil
}

// replay reads an existing manifest and applies its edits.
func (s *BlobFileSet) replay(path string) error {
	f, err := s.fs.Open(path)
	if err != nil {
		if oserror.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	br := bufio.NewReader(io.NewSectionReader(f, 0, fi.Size()))
	for {
		payload, err := readManifestRecord(br)
		if err == io.EOF {
			// Obsolete files are not carried across a reopen: no snapshot
			// predates it, and writeSnapshot leaves them out of the new
			// manifest.
			for _, storage := range s.storages {
				var obsolete []base.DiskFileNum
				storage.files.All(func(fileNum base.DiskFileNum, m *BlobFileMeta) bool {
					if m.IsObsolete() {
						obsolete = append(obsolete, fileNum)
					}
					return true
				})
				for _, fileNum := range obsolete {
					storage.files.Delete(fileNum)
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
		var edit VersionEdit
		if err := edit.Decode(payload); err != nil {
			return err
		}
		s.apply(&edit)
	}
}

// writeSnapshot writes the current state as a sequence of edits to the new
// manifest.
func (s *BlobFileSet) writeSnapshot() error {
	for cfID, storage := range s.storages {
		edit := VersionEdit{
			ColumnFamilyID: cfID,
			NextFileNum:    base.DiskFileNum(s.nextFileNum.Load()),
		}
		storage.files.All(func(_ base.DiskFileNum, m *BlobFileMeta) bool {
			if m.IsObsolete() {
				return true
			}
			edit.AddBlobFile(AddedBlobFile{
				FileNum:      m.fileNum,
				FileSize:     m.fileSize,
				EntryCount:   m.entryCount,
				Smallest:     m.smallest,
				Largest:      m.largest,
				LiveDataSize: m.liveDataSize,
			})
			return true
		})
		if err := s.logEdit(&edit); err != nil {
			return err
		}
	}
	return s.manifest.Sync()
}

// NewFileNum allocates a fresh file number.
func (s *BlobFileSet) NewFileNum() base.DiskFileNum {
	return base.DiskFileNum(s.nextFileNum.Add(1))
}

// Storage returns the blob storage of the given column family, creating it
// on first use. The engine mutex must be held.
func (s *BlobFileSet) Storage(cfID base.ColumnFamilyID) *blobStorage {
	storage, ok := s.storages[cfID]
	if !ok {
		storage = newBlobStorage(cfID)
		s.storages[cfID] = storage
	}
	return storage
}

// LogAndApply makes edit durable in the manifest and then applies it to the
// in-memory state. The engine mutex must be held.
func (s *BlobFileSet) LogAndApply(edit *VersionEdit) error {
	if err := s.logAndSync(edit); err != nil {
		return err
	}
	s.apply(edit)
	return nil
}

// logAndSync makes edit durable in the manifest without applying it to the
// in-memory state. Used when the caller installs pre-built metadata itself.
func (s *BlobFileSet) logAndSync(edit *VersionEdit) error {
	if err := s.logEdit(edit); err != nil {
		return err
	}
	return s.manifest.Sync()
}

// logEdit appends one framed edit record to the manifest without syncing.
func (s *BlobFileSet) logEdit(edit *VersionEdit) error {
	payload := edit.Encode(s.editBuf[:0])
	s.editBuf = payload
	var hdr [binary.MaxVarintLen64 + 4]byte
	n := binary.PutUvarint(hdr[:], uint64(len(payload)))
	binary.LittleEndian.PutUint32(hdr[n:], uint32(xxhash.Sum64(payload)))
	if _, err := s.manifest.Write(hdr[:n+4]); err != nil {
		return err
	}
	_, err := s.manifest.Write(payload)
	return err
}

func readManifestRecord(br *bufio.Reader) ([]byte, error) {
	length, err := binary.ReadUvarint(br)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	var checksumBuf [4]byte
	if _, err := io.ReadFull(br, checksumBuf[:]); err != nil {
		return nil, base.CorruptionErrorf("basalt: truncated manifest record")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, base.CorruptionErrorf("basalt: truncated manifest record")
	}
	if uint32(xxhash.Sum64(payload)) != binary.LittleEndian.Uint32(checksumBuf[:]) {
		return nil, base.CorruptionErrorf("basalt: manifest record checksum mismatch")
	}
	return payload, nil
}

// apply mutates the in-memory state per edit.
func (s *BlobFileSet) apply(edit *VersionEdit) {
	if uint64(edit.NextFileNum) > s.nextFileNum.Load() {
		s.nextFileNum.Store(uint64(edit.NextFileNum))
	}
	storage := s.Storage(edit.ColumnFamilyID)
	for _, f := range edit.AddedFiles {
		if uint64(f.FileNum) > s.nextFileNum.Load() {
			s.nextFileNum.Store(uint64(f.FileNum))
		}
		m := NewBlobFileMeta(f.FileNum, f.FileSize, f.EntryCount, f.Smallest, f.Largest, f.LiveDataSize)
		storage.AddFile(m)
	}
	for _, f := range edit.DeletedFiles {
		m := storage.FindFile(f.FileNum)
		if m == nil || m.IsObsolete() {
			continue
		}
		storage.markObsolete(m, f.ObsoleteSeq)
	}
	if len(edit.AddedFiles) > 0 || len(edit.DeletedFiles) > 0 {
		storage.ComputeGCScore()
	}
}

// Close closes the manifest.
func (s *BlobFileSet) Close() error {
	if s.manifest == nil {
		return nil
	}
	err := s.manifest.Close()
	s.manifest = nil
	return err
}
