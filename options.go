// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
)

// BlobRunMode controls what a GC job does with live records.
type BlobRunMode uint8

const (
	// BlobRunModeNormal relocates live records into new blob files.
	BlobRunModeNormal BlobRunMode = iota
	// BlobRunModeFallback reinlines live values into the base engine,
	// draining values out of blob storage.
	BlobRunModeFallback
)

// String implements the fmt.Stringer interface.
func (m BlobRunMode) String() string {
	switch m {
	case BlobRunModeNormal:
		return "normal"
	case BlobRunModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Options holds the configuration of the blob storage layer.
type Options struct {
	// FS provides the filesystem blob and shadow files are stored on.
	FS vfs.FS

	// Dirname is the directory holding blob files, shadow files and the blob
	// manifest.
	Dirname string

	// Comparer defines the ordering of user keys. Must match the base
	// engine's comparer for the column families using blob storage.
	Comparer *base.Comparer

	// Logger is used for informational and error messages.
	Logger base.Logger

	// Stats receives the metrics of completed GC jobs. Shared across jobs.
	Stats *Stats

	// BlobFileTargetSize caps the size of GC output blob files. When an
	// output file reaches the target, it is finalized and a new output file
	// is opened for subsequent records.
	BlobFileTargetSize uint64

	// BlobRunMode selects whether GC relocates live records into new blob
	// files or reinlines them into the base engine.
	BlobRunMode BlobRunMode

	// RewriteShadow diverts rewritten blob indices into side-car shadow
	// files instead of the base engine's write path. Mutually exclusive with
	// the write-callback rewrite; fixed for the lifetime of a job.
	RewriteShadow bool

	// ShadowTargetSize caps the size of shadow files when RewriteShadow is
	// set.
	ShadowTargetSize uint64

	// Compression selects the value compression of blob files written by GC.
	Compression blobfile.Compression

	// GCReadBytesPerSec paces the GC scan's blob reads. Zero disables
	// pacing.
	GCReadBytesPerSec int64

	// BlobFileDiscardableRatio is the minimum fraction of garbage bytes a
	// blob file must hold before the picker considers it for GC.
	BlobFileDiscardableRatio float64

	// GCBatchSize caps the total file size of one GC job's input set.
	GCBatchSize uint64
}

// EnsureDefaults fills in unset options with their default values, returning
// the receiver for convenience.
func (o *Options) EnsureDefaults() *Options {
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.Stats == nil {
		o.Stats = NewStats()
	}
	if o.BlobFileTargetSize == 0 {
		o.BlobFileTargetSize = 256 << 20 // 256 MB
	}
	if o.ShadowTargetSize == 0 {
		o.ShadowTargetSize = 64 << 20 // 64 MB
	}
	if o.BlobFileDiscardableRatio == 0 {
		o.BlobFileDiscardableRatio = 0.5
	}
	if o.GCBatchSize == 0 {
		o.GCBatchSize = 1 << 30 // 1 GB
	}
	return o
}
