// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"sync"

	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
)

// numShadowLevels is the number of per-level shadow builders a GC job keeps.
// Deeper lookup levels are clamped to the last bucket.
const numShadowLevels = 7

func clampShadowLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level >= numShadowLevels {
		return numShadowLevels - 1
	}
	return level
}

// ShadowFileMeta describes one installed shadow file: an index-only side-car
// holding (user key, new blob index) entries for one lookup level, produced
// by a GC job running in shadow-rewrite mode.
type ShadowFileMeta struct {
	FileNum    base.DiskFileNum
	Level      int
	FileSize   uint64
	EntryCount uint32
	Smallest   []byte
	Largest    []byte
}

// ShadowSet tracks installed shadow files. It is shared between GC jobs and
// whatever component consumes shadow files; it has its own lock and is not
// guarded by the engine mutex.
type ShadowSet struct {
	mu    sync.Mutex
	files []*ShadowFileMeta
}

// NewShadowSet returns an empty shadow set.
func NewShadowSet() *ShadowSet {
	return &ShadowSet{}
}

// Install adds finished shadow files to the set.
func (s *ShadowSet) Install(metas []*ShadowFileMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, metas...)
}

// Files returns a snapshot of the installed shadow files.
func (s *ShadowSet) Files() []*ShadowFileMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ShadowFileMeta(nil), s.files...)
}

// shadowBuilder accumulates the shadow entries of one lookup level. Shadow
// files reuse the blob file format with the encoded new blob index as the
// record value.
type shadowBuilder struct {
	level   int
	fileNum base.DiskFileNum
	path    string
	writer  *blobfile.FileWriter
	scratch []byte
}
