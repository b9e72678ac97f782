// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"testing"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestBlobIndexEncodeDecode(t *testing.T) {
	idx := BlobIndex{
		FileNum: 42,
		Handle:  Handle{Offset: 1 << 33, Size: 4096, Order: 17},
	}
	buf := idx.Encode(nil)
	require.LessOrEqual(t, len(buf), MaxBlobIndexLength)
	decoded, err := DecodeBlobIndex(buf)
	require.NoError(t, err)
	require.True(t, idx.Equal(decoded))

	// Equality is over all four fields.
	other := decoded
	other.Handle.Order++
	require.False(t, idx.Equal(other))
}

func TestBlobIndexDecodeErrors(t *testing.T) {
	idx := BlobIndex{FileNum: 1, Handle: Handle{Offset: 2, Size: 3, Order: 4}}
	buf := idx.Encode(nil)

	_, err := DecodeBlobIndex(buf[:len(buf)-1])
	require.True(t, errors.Is(err, base.ErrCorruption))

	_, err = DecodeBlobIndex(append(buf, 0x00))
	require.True(t, errors.Is(err, base.ErrCorruption))

	_, err = DecodeBlobIndex(nil)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestBlobIndexEmpty(t *testing.T) {
	require.True(t, BlobIndex{}.Empty())
	require.False(t, BlobIndex{FileNum: 1}.Empty())
}
