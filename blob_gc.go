// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

// BlobGC is the input set of one garbage collection job: an immutable
// snapshot of the blob files selected for collection, plus the output files
// the job produces. Input files stay in the normal state for the whole job
// so concurrent readers can keep using them; they transition to obsolete
// only after their indices have been dropped from the base engine.
type BlobGC struct {
	cf      ColumnFamilyHandle
	inputs  []*BlobFileMeta
	outputs []*BlobFileMeta
}

// NewBlobGC constructs a GC input set over the given files.
func NewBlobGC(cf ColumnFamilyHandle, inputs []*BlobFileMeta) *BlobGC {
	return &BlobGC{cf: cf, inputs: inputs}
}

// ColumnFamily returns the column family the job collects.
func (gc *BlobGC) ColumnFamily() ColumnFamilyHandle { return gc.cf }

// Inputs returns the input files.
func (gc *BlobGC) Inputs() []*BlobFileMeta { return gc.inputs }

// AddOutputFile records an output file produced by the job.
func (gc *BlobGC) AddOutputFile(m *BlobFileMeta) {
	gc.outputs = append(gc.outputs, m)
}

// Outputs returns the output files produced so far.
func (gc *BlobGC) Outputs() []*BlobFileMeta { return gc.outputs }
