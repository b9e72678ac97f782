// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"testing"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/stretchr/testify/require"
)

func pickerStorage(files ...*BlobFileMeta) *blobStorage {
	s := newBlobStorage(1)
	for _, m := range files {
		s.AddFile(m)
	}
	s.ComputeGCScore()
	return s
}

func metaWithGarbage(fileNum base.DiskFileNum, fileSize, liveSize uint64) *BlobFileMeta {
	return NewBlobFileMeta(fileNum, fileSize, 1, nil, nil, liveSize)
}

func TestPickGCOrdersByGarbage(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	cf := &testCF{id: 1, name: "default"}
	s := pickerStorage(
		metaWithGarbage(1, 1000, 900), // 10% garbage: below threshold
		metaWithGarbage(2, 1000, 100), // 90%
		metaWithGarbage(3, 1000, 400), // 60%
	)
	gc := PickGC(opts, cf, s)
	require.NotNil(t, gc)
	require.Len(t, gc.Inputs(), 2)
	require.Equal(t, base.DiskFileNum(2), gc.Inputs()[0].FileNum())
	require.Equal(t, base.DiskFileNum(3), gc.Inputs()[1].FileNum())
}

func TestPickGCRespectsBatchSize(t *testing.T) {
	opts := (&Options{GCBatchSize: 1500}).EnsureDefaults()
	cf := &testCF{id: 1, name: "default"}
	s := pickerStorage(
		metaWithGarbage(1, 1000, 0),
		metaWithGarbage(2, 1000, 0),
		metaWithGarbage(3, 1000, 0),
	)
	gc := PickGC(opts, cf, s)
	require.NotNil(t, gc)
	// The first file always fits; the second would exceed the batch size.
	require.Len(t, gc.Inputs(), 1)
}

func TestPickGCNothingEligible(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	cf := &testCF{id: 1, name: "default"}
	s := pickerStorage(metaWithGarbage(1, 1000, 1000))
	require.Nil(t, PickGC(opts, cf, s))

	obsolete := metaWithGarbage(2, 1000, 0)
	s2 := pickerStorage(obsolete)
	s2.markObsolete(obsolete, 1)
	s2.ComputeGCScore()
	require.Nil(t, PickGC(opts, cf, s2))
}
