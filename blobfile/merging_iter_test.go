// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"fmt"
	"testing"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/stretchr/testify/require"
)

func buildIters(t *testing.T, fs vfs.FS, files map[base.DiskFileNum][][2]string) []*FileIterator {
	iters := make([]*FileIterator, 0, len(files))
	for fileNum, kvs := range files {
		name := fmt.Sprintf("%06d.blob", uint64(fileNum))
		fileLen, _ := writeTestFile(t, fs, name, fileNum, NoCompression, kvs)
		f, err := fs.Open(name)
		require.NoError(t, err)
		r, err := NewFileReader(f, fileNum, fileLen)
		require.NoError(t, err)
		iters = append(iters, r.NewIter())
	}
	return iters
}

func TestMergingIterOrder(t *testing.T) {
	fs := vfs.NewMem()
	iters := buildIters(t, fs, map[base.DiskFileNum][][2]string{
		1: {{"a", "a1"}, {"d", "d1"}, {"f", "f1"}},
		2: {{"b", "b2"}, {"c", "c2"}},
		3: {{"e", "e3"}},
	})
	m := NewMergingIter(base.DefaultComparer.Compare, iters)

	var got []string
	for valid := m.First(); valid; valid = m.Next() {
		got = append(got, string(m.Key())+"="+string(m.Value()))
	}
	require.NoError(t, m.Error())
	require.Equal(t,
		[]string{"a=a1", "b=b2", "c=c2", "d=d1", "e=e3", "f=f1"}, got)
	require.NoError(t, m.Close())
}

func TestMergingIterNewestFirstOnDuplicates(t *testing.T) {
	fs := vfs.NewMem()
	// Key "k" appears in all three files; file numbers increase with
	// recency, so file 9's version must come out first.
	iters := buildIters(t, fs, map[base.DiskFileNum][][2]string{
		4: {{"k", "old"}},
		7: {{"a", "a7"}, {"k", "mid"}},
		9: {{"k", "new"}, {"z", "z9"}},
	})
	m := NewMergingIter(base.DefaultComparer.Compare, iters)

	type rec struct {
		key     string
		value   string
		fileNum base.DiskFileNum
	}
	var got []rec
	for valid := m.First(); valid; valid = m.Next() {
		got = append(got, rec{string(m.Key()), string(m.Value()), m.BlobIndex().FileNum})
	}
	require.NoError(t, m.Error())
	require.Equal(t, []rec{
		{"a", "a7", 7},
		{"k", "new", 9},
		{"k", "mid", 7},
		{"k", "old", 4},
		{"z", "z9", 9},
	}, got)
	require.NoError(t, m.Close())
}

func TestMergingIterEmpty(t *testing.T) {
	m := NewMergingIter(base.DefaultComparer.Compare, nil)
	require.False(t, m.First())
	require.NoError(t, m.Error())
	require.NoError(t, m.Close())
}
