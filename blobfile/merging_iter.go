// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"container/heap"

	"github.com/basaltdb/basalt/internal/base"
)

// MergingIter merges the records of several blob files into a single cursor
// ordered by user key. Records with equal user keys are yielded newest file
// first: blob file numbers increase monotonically, so the record from the
// file with the larger number is the newer version.
//
// The MergingIter owns its per-file iterators and their readers; Close
// releases them all.
type MergingIter struct {
	cmp   base.Compare
	iters []*FileIterator
	h     iterHeap
	err   error
}

// NewMergingIter constructs a MergingIter over iters under cmp.
func NewMergingIter(cmp base.Compare, iters []*FileIterator) *MergingIter {
	return &MergingIter{cmp: cmp, iters: iters}
}

// First positions the cursor at the first record in key order. It returns
// true if a record is available.
func (m *MergingIter) First() bool {
	m.h = iterHeap{cmp: m.cmp}
	for _, it := range m.iters {
		if it.First() {
			m.h.items = append(m.h.items, it)
		} else if err := it.Error(); err != nil {
			m.err = err
			return false
		}
	}
	heap.Init(&m.h)
	return len(m.h.items) > 0
}

// Next advances the cursor. It returns true if a record is available.
func (m *MergingIter) Next() bool {
	if m.err != nil || len(m.h.items) == 0 {
		return false
	}
	cur := m.h.items[0]
	if cur.Next() {
		heap.Fix(&m.h, 0)
	} else {
		if err := cur.Error(); err != nil {
			m.err = err
			return false
		}
		heap.Pop(&m.h)
	}
	return len(m.h.items) > 0
}

// Key returns the current record's user key.
func (m *MergingIter) Key() []byte { return m.h.items[0].Key() }

// Value returns the current record's value.
func (m *MergingIter) Value() []byte { return m.h.items[0].Value() }

// BlobIndex returns the index addressing the current record in its source
// file.
func (m *MergingIter) BlobIndex() BlobIndex {
	it := m.h.items[0]
	return BlobIndex{FileNum: it.FileNum(), Handle: it.Handle()}
}

// Error returns the first error encountered by the merge or any of its
// inputs.
func (m *MergingIter) Error() error { return m.err }

// Close closes all per-file iterators, releasing their readers.
func (m *MergingIter) Close() error {
	var err error
	for _, it := range m.iters {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.iters = nil
	m.h.items = nil
	return err
}

// iterHeap is a min-heap of positioned file iterators, ordered by current
// key and, for equal keys, by descending file number.
type iterHeap struct {
	cmp   base.Compare
	items []*FileIterator
}

// Len implements sort.Interface.
func (h *iterHeap) Len() int { return len(h.items) }

// Less implements sort.Interface.
func (h *iterHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.cmp(a.Key(), b.Key()); c != 0 {
		return c < 0
	}
	return a.FileNum() > b.FileNum()
}

// Swap implements sort.Interface.
func (h *iterHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

// Push implements heap.Interface.
func (h *iterHeap) Push(x any) {
	h.items = append(h.items, x.(*FileIterator))
}

// Pop implements heap.Interface.
func (h *iterHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
