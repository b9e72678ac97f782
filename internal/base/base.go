// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/redact"
)

// DiskFileNum identifies a physical file on disk: a blob file, a shadow file
// or a manifest. File numbers are allocated from a single monotonically
// increasing counter; the blob file set documents when a number can be
// allocated again after a reopen.
type DiskFileNum uint64

// String returns a string representation of the file number.
func (n DiskFileNum) String() string { return fmt.Sprintf("%06d", uint64(n)) }

// SafeFormat implements redact.SafeFormatter.
func (n DiskFileNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(n))
}

// SeqNum is a sequence number of the base key-value engine. Every committed
// write advances it. A blob file's obsolete sequence is the engine sequence
// at which the file stopped being referenced.
type SeqNum uint64

// SafeFormat implements redact.SafeFormatter.
func (s SeqNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeUint(s))
}

// ColumnFamilyID identifies a column family of the base engine.
type ColumnFamilyID uint32

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b.
type Compare func(a, b []byte) int

// Comparer defines a total ordering over the space of user keys.
type Comparer struct {
	Compare Compare

	// Name is the name of the comparer. The on-disk format of a column family
	// is tied to the comparer name used to write it.
	Name string
}

// DefaultComparer is the comparer used when one is not specified: bytewise
// ordering.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Name:    "basalt.BytewiseComparator",
}
