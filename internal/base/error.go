// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound means that a lookup did not find the requested key.
var ErrNotFound = errors.New("basalt: not found")

// ErrBusy marks the expected outcome of an optimistic write whose
// precondition no longer holds: the key was deleted or overwritten between
// the read and the commit. Callers detect it with errors.Is and retry or
// drop the write; it is never fatal.
var ErrBusy = errors.New("basalt: busy")

// MarkBusy annotates err so that errors.Is(err, ErrBusy) returns true.
func MarkBusy(msg string) error {
	return errors.Mark(errors.New(msg), ErrBusy)
}

// ErrShutdown is returned by long-running jobs that observe a shutdown
// request between two units of work.
var ErrShutdown = errors.New("basalt: shutting down")

// ErrColumnFamilyDropped is returned when an operation's column family was
// dropped while the operation was in flight.
var ErrColumnFamilyDropped = errors.New("basalt: column family dropped")

// ErrCorruption marks unrecoverable on-disk or in-flight data corruption,
// such as a blob index that fails to decode or a record checksum mismatch.
var ErrCorruption = errors.New("basalt: corruption")

// MarkCorruption annotates err so that errors.Is(err, ErrCorruption) returns
// true, preserving the underlying error.
func MarkCorruption(err error) error {
	return errors.Mark(err, ErrCorruption)
}

// CorruptionErrorf formats a new corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}
