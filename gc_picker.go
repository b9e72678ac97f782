// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

// PickGC selects the input set for one GC job from the storage's current GC
// scores: normal-state files whose discardable ratio is at least
// opts.BlobFileDiscardableRatio, best first, until opts.GCBatchSize worth of
// file bytes is reached. Returns nil if no file qualifies.
//
// The engine mutex must be held.
func PickGC(opts *Options, cf ColumnFamilyHandle, storage *blobStorage) *BlobGC {
	var inputs []*BlobFileMeta
	var totalSize uint64
	for _, sc := range storage.gcScores {
		if sc.score < opts.BlobFileDiscardableRatio {
			break
		}
		m := storage.FindFile(sc.fileNum)
		if m == nil || m.State() != BlobFileStateNormal {
			continue
		}
		if len(inputs) > 0 && totalSize+m.FileSize() > opts.GCBatchSize {
			break
		}
		inputs = append(inputs, m)
		totalSize += m.FileSize()
	}
	if len(inputs) == 0 {
		return nil
	}
	return NewBlobGC(cf, inputs)
}
