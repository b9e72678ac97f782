// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/cockroachdb/errors"
)

// gcWriteCallback re-verifies, at commit time, that a key still points at
// the blob record the GC job scanned. GC reads a key's blob index without
// any lock and rewrites it much later; foreground writers may have deleted
// or overwritten the key in between. The engine invokes the callback while
// serializing the write, so a nil result guarantees the rewrite does not
// clobber a newer value. Works like an optimistic transaction's conflict
// check, except that it must distinguish blob-index values, which a generic
// transaction cannot observe.
type gcWriteCallback struct {
	cf  ColumnFamilyHandle
	key []byte
	// blobIndex is the index the job scanned; the rewrite is valid only
	// while it is still the key's current value.
	blobIndex blobfile.BlobIndex
	// newBlobIndex is the replacement. Empty means the value was reinlined
	// in fallback mode.
	newBlobIndex blobfile.BlobIndex

	readBytes uint64
}

// Callback implements WriteCallback.
func (cb *gcWriteCallback) Callback(lsm LSM) error {
	value, isBlobIndex, _, err := lsm.GetWithLevel(cb.cf, cb.key)
	if err != nil && !errors.Is(err, base.ErrNotFound) {
		return err
	}
	cb.readBytes = uint64(len(cb.key) + len(value))
	switch {
	case errors.Is(err, base.ErrNotFound):
		// The key was deleted after the scan.
		return base.MarkBusy("key deleted")
	case !isBlobIndex:
		return base.MarkBusy("key overwritten with other value")
	}
	other, err := blobfile.DecodeBlobIndex(value)
	if err != nil {
		return err
	}
	if !cb.blobIndex.Equal(other) {
		return base.MarkBusy("key overwritten with other blob")
	}
	return nil
}

// AllowWriteBatching implements WriteCallback. Each rewrite commits as its
// own batch so that per-key callback decisions cannot be conflated.
func (cb *gcWriteCallback) AllowWriteBatching() bool { return false }

// blobRecordSize returns the on-disk size of the old blob record, used to
// attribute bytes to the overwritten/relocated/fallback counters.
func (cb *gcWriteCallback) blobRecordSize() uint64 { return cb.blobIndex.Handle.Size }
