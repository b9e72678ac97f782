// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/internal/bitset"
)

// BlobFileState describes where a blob file is in its lifecycle.
type BlobFileState uint8

const (
	// BlobFileStateNormal marks a published file readable by everyone.
	BlobFileStateNormal BlobFileState = iota
	// BlobFileStatePendingGC marks a GC output file that has not been
	// published yet. It is invisible to readers and is deleted, never
	// published, if the producing job fails.
	BlobFileStatePendingGC
	// BlobFileStateObsolete marks a file no BlobIndex installed at or after
	// its obsolete sequence references. It remains readable by snapshots
	// older than that sequence until physically deleted.
	BlobFileStateObsolete
)

// String implements the fmt.Stringer interface.
func (s BlobFileState) String() string {
	switch s {
	case BlobFileStateNormal:
		return "normal"
	case BlobFileStatePendingGC:
		return "pending-gc-output"
	case BlobFileStateObsolete:
		return "obsolete"
	default:
		return "unknown"
	}
}

// BlobFileMeta is the in-memory metadata of one blob file.
//
// The immutable fields (file number, size, entry count, bounds) are safe to
// read from any goroutine. The mutable fields (state, liveness bitmap, live
// data size) are read and written only while holding the engine mutex.
type BlobFileMeta struct {
	fileNum    base.DiskFileNum
	fileSize   uint64
	entryCount uint32
	smallest   []byte
	largest    []byte

	// Mutable state, guarded by the engine mutex.
	state        BlobFileState
	obsoleteSeq  base.SeqNum
	liveDataSize uint64
	liveness     bitset.Bitset
}

// NewBlobFileMeta constructs metadata for a blob file whose records are all
// live: the liveness bitmap starts with every bit set. liveDataSize is
// recorded as given.
func NewBlobFileMeta(
	fileNum base.DiskFileNum,
	fileSize uint64,
	entryCount uint32,
	smallest, largest []byte,
	liveDataSize uint64,
) *BlobFileMeta {
	return &BlobFileMeta{
		fileNum:      fileNum,
		fileSize:     fileSize,
		entryCount:   entryCount,
		smallest:     smallest,
		largest:      largest,
		liveDataSize: liveDataSize,
		liveness:     bitset.NewAllSet(int(entryCount)),
	}
}

// FileNum returns the blob file's number.
func (m *BlobFileMeta) FileNum() base.DiskFileNum { return m.fileNum }

// FileSize returns the blob file's size in bytes.
func (m *BlobFileMeta) FileSize() uint64 { return m.fileSize }

// EntryCount returns the number of records in the file.
func (m *BlobFileMeta) EntryCount() uint32 { return m.entryCount }

// SmallestKey returns the smallest user key in the file.
func (m *BlobFileMeta) SmallestKey() []byte { return m.smallest }

// LargestKey returns the largest user key in the file.
func (m *BlobFileMeta) LargestKey() []byte { return m.largest }

// State returns the file's lifecycle state. The engine mutex must be held.
func (m *BlobFileMeta) State() BlobFileState { return m.state }

// IsObsolete reports whether the file has been marked obsolete. The engine
// mutex must be held.
func (m *BlobFileMeta) IsObsolete() bool { return m.state == BlobFileStateObsolete }

// ObsoleteSeq returns the engine sequence at which the file became
// obsolete. Zero if the file is not obsolete.
func (m *BlobFileMeta) ObsoleteSeq() base.SeqNum { return m.obsoleteSeq }

// MarkObsolete transitions the file to the obsolete state. The engine mutex
// must be held.
func (m *BlobFileMeta) MarkObsolete(seq base.SeqNum) {
	m.state = BlobFileStateObsolete
	m.obsoleteSeq = seq
}

func (m *BlobFileMeta) markPendingGC() { m.state = BlobFileStatePendingGC }
func (m *BlobFileMeta) markNormal()    { m.state = BlobFileStateNormal }

// IsLive reports whether the record at the given ordinal may still be
// referenced from the base engine. Foreground writers never clear bits, so
// true is a conservative over-approximation that may be stale; false is
// authoritative. An ordinal outside the bitmap is treated as live.
//
// The engine mutex must be held.
func (m *BlobFileMeta) IsLive(order uint32) bool {
	if int(order) >= m.liveness.Len() {
		return true
	}
	return m.liveness.Get(int(order))
}

// SetLive updates the liveness bit for the record at the given ordinal.
// Ordinals outside the bitmap are ignored. The engine mutex must be held.
func (m *BlobFileMeta) SetLive(order uint32, live bool) {
	if int(order) < m.liveness.Len() {
		m.liveness.Set(int(order), live)
	}
}

// LiveDataSize returns the bytes of logically live records in the file. The
// engine mutex must be held.
func (m *BlobFileMeta) LiveDataSize() uint64 { return m.liveDataSize }

// UpdateLiveDataSize adjusts the live data size by delta. The engine mutex
// must be held.
func (m *BlobFileMeta) UpdateLiveDataSize(delta int64) {
	if delta < 0 && uint64(-delta) > m.liveDataSize {
		m.liveDataSize = 0
		return
	}
	m.liveDataSize = uint64(int64(m.liveDataSize) + delta)
}

// DiscardableRatio returns the fraction of the file's bytes that are known
// garbage. The engine mutex must be held.
func (m *BlobFileMeta) DiscardableRatio() float64 {
	if m.fileSize == 0 {
		return 0
	}
	live := m.liveDataSize
	if live > m.fileSize {
		live = m.fileSize
	}
	return float64(m.fileSize-live) / float64(m.fileSize)
}

// numDiscardableRatioLevels buckets discardable ratios for stats: [0,10%),
// [10,30%), [30,50%), [50,80%), [80,100%].
const numDiscardableRatioLevels = 5

// discardableRatioLevel returns the stats bucket of the file's current
// discardable ratio. The engine mutex must be held.
func (m *BlobFileMeta) discardableRatioLevel() int {
	r := m.DiscardableRatio()
	switch {
	case r < 0.1:
		return 0
	case r < 0.3:
		return 1
	case r < 0.5:
		return 2
	case r < 0.8:
		return 3
	default:
		return 4
	}
}
