// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"encoding/binary"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/cockroachdb/redact"
)

// MaxBlobIndexLength is the maximum length of an encoded BlobIndex.
//
// BlobIndex fields are varint encoded, so maximum 10 bytes each for the
// 64-bit fields and 5 for the order.
const MaxBlobIndexLength = 3*binary.MaxVarintLen64 + binary.MaxVarintLen32

// Handle describes the location of a record stored within a blob file.
type Handle struct {
	// Offset is the byte offset of the record within the file.
	Offset uint64
	// Size is the length in bytes of the record as stored, including its
	// header.
	Size uint64
	// Order is the zero-based ordinal of the record within the file. It is
	// the record's position in the file's liveness bitmap.
	Order uint32
}

// String implements the fmt.Stringer interface.
func (h Handle) String() string {
	return redact.StringWithoutMarkers(h)
}

// SafeFormat implements redact.SafeFormatter.
func (h Handle) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("(off%d,len%d,ord%d)", h.Offset, h.Size, h.Order)
}

// BlobIndex points at a record stored in a blob file. It is the value the
// base engine stores for a user key whose actual value lives externally.
// Two blob indices are equal iff all four fields match; (FileNum, Order) is
// a stable identity for the record within the file's lifetime.
type BlobIndex struct {
	FileNum base.DiskFileNum
	Handle  Handle
}

// Empty reports whether the index is the zero sentinel, used by fallback
// rewrites to denote a value reinlined into the base engine.
func (i BlobIndex) Empty() bool {
	return i.FileNum == 0
}

// Equal reports whether two blob indices identify the same record.
func (i BlobIndex) Equal(o BlobIndex) bool {
	return i == o
}

// String implements the fmt.Stringer interface.
func (i BlobIndex) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i BlobIndex) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s%s", i.FileNum, i.Handle)
}

// Encode appends the varint encoding of the index to buf and returns the
// extended buffer.
func (i BlobIndex) Encode(buf []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(i.FileNum))
	buf = binary.AppendUvarint(buf, i.Handle.Offset)
	buf = binary.AppendUvarint(buf, i.Handle.Size)
	buf = binary.AppendUvarint(buf, uint64(i.Handle.Order))
	return buf
}

// DecodeBlobIndex decodes an index previously encoded with Encode. Trailing
// bytes are rejected: the index must occupy the whole of data.
func DecodeBlobIndex(data []byte) (BlobIndex, error) {
	var i BlobIndex
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return BlobIndex{}, base.CorruptionErrorf("blobfile: corrupt blob index")
	}
	i.FileNum = base.DiskFileNum(v)
	data = data[n:]
	if i.Handle.Offset, n = binary.Uvarint(data); n <= 0 {
		return BlobIndex{}, base.CorruptionErrorf("blobfile: corrupt blob index")
	}
	data = data[n:]
	if i.Handle.Size, n = binary.Uvarint(data); n <= 0 {
		return BlobIndex{}, base.CorruptionErrorf("blobfile: corrupt blob index")
	}
	data = data[n:]
	if v, n = binary.Uvarint(data); n <= 0 || v > (1<<32)-1 {
		return BlobIndex{}, base.CorruptionErrorf("blobfile: corrupt blob index")
	}
	i.Handle.Order = uint32(v)
	if len(data) != n {
		return BlobIndex{}, base.CorruptionErrorf("blobfile: %d trailing bytes after blob index", len(data)-n)
	}
	return i, nil
}
