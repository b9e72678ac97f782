// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"encoding/binary"

	"github.com/basaltdb/basalt/internal/base"
)

// ColumnFamilyHandle identifies a column family of the base engine for the
// duration of an operation. IsDropped is checked by long-running jobs to
// abort work against a column family that was dropped under them.
type ColumnFamilyHandle interface {
	ID() base.ColumnFamilyID
	Name() string
	IsDropped() bool
}

// WriteCallback gates a conditional write. The base engine invokes Callback
// while holding whatever locks it uses to serialize writes, immediately
// before committing the associated batch; the batch commits iff Callback
// returns nil. A callback that returns an error marked base.ErrBusy vetoes
// the write without failing the overall operation.
//
// The callback runs in the engine's write context and must not acquire the
// engine mutex.
type WriteCallback interface {
	Callback(lsm LSM) error

	// AllowWriteBatching reports whether the engine may group this write
	// with others. Callbacks that must observe a per-key decision return
	// false.
	AllowWriteBatching() bool
}

// LSM is the interface the blob storage layer requires of the base
// key-value engine.
type LSM interface {
	// GetWithLevel returns the current value of key in cf, whether that
	// value is an encoded blob index, and the level the key was found at.
	// Returns base.ErrNotFound (and level -1) if the key has no current
	// value. The level is informational only.
	GetWithLevel(cf ColumnFamilyHandle, key []byte) (value []byte, isBlobIndex bool, level int, err error)

	// ApplyWithCallback commits batch iff cb.Callback returns nil;
	// otherwise it returns the callback's error and the batch is not
	// applied.
	ApplyWithCallback(batch *Batch, cb WriteCallback) error

	// FlushWAL flushes the engine's write-ahead log, syncing it to stable
	// storage if sync is true.
	FlushWAL(sync bool) error

	// LatestSeqNum returns the engine's current latest sequence number.
	LatestSeqNum() base.SeqNum
}

// BatchOpKind distinguishes the mutations a Batch can carry.
type BatchOpKind uint8

const (
	// BatchOpSet stores a plain value for a key.
	BatchOpSet BatchOpKind = iota
	// BatchOpSetBlobIndex stores an encoded blob index for a key. The
	// engine records the value as an external pointer so that reads report
	// it as a blob index.
	BatchOpSetBlobIndex
)

// BatchOp is a single mutation within a Batch.
type BatchOp struct {
	Kind  BatchOpKind
	Key   []byte
	Value []byte
}

// Batch is an ordered set of mutations against one column family, applied
// atomically by the base engine.
type Batch struct {
	cfID base.ColumnFamilyID
	ops  []BatchOp
}

// MakeBatch returns an empty batch against cf.
func MakeBatch(cfID base.ColumnFamilyID) Batch {
	return Batch{cfID: cfID}
}

// ColumnFamilyID returns the column family the batch mutates.
func (b *Batch) ColumnFamilyID() base.ColumnFamilyID { return b.cfID }

// Ops returns the batch's mutations in application order.
func (b *Batch) Ops() []BatchOp { return b.ops }

// Set queues a plain put of value for key.
func (b *Batch) Set(key, value []byte) {
	b.ops = append(b.ops, BatchOp{Kind: BatchOpSet, Key: key, Value: value})
}

// SetBlobIndex queues a put of an encoded blob index for key.
func (b *Batch) SetBlobIndex(key, encodedIndex []byte) {
	b.ops = append(b.ops, BatchOp{Kind: BatchOpSetBlobIndex, Key: key, Value: encodedIndex})
}

// Len returns the batch's encoded size in bytes.
func (b *Batch) Len() int {
	n := 0
	for _, op := range b.ops {
		n += 1 + uvarintLen(uint64(len(op.Key))) + uvarintLen(uint64(len(op.Value))) +
			len(op.Key) + len(op.Value)
	}
	return n
}

func uvarintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}
