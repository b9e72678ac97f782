// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// testCF is a trivial column family handle.
type testCF struct {
	id      base.ColumnFamilyID
	name    string
	dropped atomic.Bool
}

func (cf *testCF) ID() base.ColumnFamilyID { return cf.id }
func (cf *testCF) Name() string            { return cf.name }
func (cf *testCF) IsDropped() bool         { return cf.dropped.Load() }

type testLSMEntry struct {
	value       []byte
	isBlobIndex bool
	level       int
}

// testLSM is an in-memory stand-in for the base engine: a per-column-family
// key map with a sequence number and a serialized conditional write path.
type testLSM struct {
	mu   sync.Mutex
	seq  uint64
	data map[base.ColumnFamilyID]map[string]testLSMEntry

	// writeMu serializes ApplyWithCallback, standing in for the engine's
	// write path locks; callbacks run while it is held.
	writeMu  sync.Mutex
	walSyncs int
	applyErr error
}

func newTestLSM() *testLSM {
	return &testLSM{data: make(map[base.ColumnFamilyID]map[string]testLSMEntry)}
}

func (l *testLSM) cfData(cf base.ColumnFamilyID) map[string]testLSMEntry {
	m, ok := l.data[cf]
	if !ok {
		m = make(map[string]testLSMEntry)
		l.data[cf] = m
	}
	return m
}

func (l *testLSM) set(cf base.ColumnFamilyID, key string, value []byte, isBlobIndex bool, level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.cfData(cf)[key] = testLSMEntry{value: value, isBlobIndex: isBlobIndex, level: level}
}

func (l *testLSM) delete(cf base.ColumnFamilyID, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	delete(l.cfData(cf), key)
}

func (l *testLSM) get(cf base.ColumnFamilyID, key string) (testLSMEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cfData(cf)[key]
	return e, ok
}

func (l *testLSM) GetWithLevel(
	cf ColumnFamilyHandle, key []byte,
) (value []byte, isBlobIndex bool, level int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cfData(cf.ID())[string(key)]
	if !ok {
		return nil, false, -1, base.ErrNotFound
	}
	return e.value, e.isBlobIndex, e.level, nil
}

func (l *testLSM) ApplyWithCallback(batch *Batch, cb WriteCallback) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.applyErr != nil {
		return l.applyErr
	}
	if err := cb.Callback(l); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	for _, op := range batch.Ops() {
		l.cfData(batch.ColumnFamilyID())[string(op.Key)] = testLSMEntry{
			value:       op.Value,
			isBlobIndex: op.Kind == BatchOpSetBlobIndex,
			level:       1,
		}
	}
	return nil
}

func (l *testLSM) FlushWAL(sync bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walSyncs++
	return nil
}

func (l *testLSM) LatestSeqNum() base.SeqNum {
	l.mu.Lock()
	defer l.mu.Unlock()
	return base.SeqNum(l.seq)
}

// gcHarness wires a MemFS-backed blob file set, manager and test engine
// together for GC job tests.
type gcHarness struct {
	t        *testing.T
	memFS    *vfs.MemFS
	opts     *Options
	mu       sync.Mutex
	set      *BlobFileSet
	manager  BlobFileManager
	lsm      *testLSM
	cf       *testCF
	shadows  *ShadowSet
	shutdown atomic.Bool
	stats    *Stats
}

func newGCHarness(t *testing.T, configure func(*Options)) *gcHarness {
	h := &gcHarness{
		t:       t,
		memFS:   vfs.NewMem(),
		lsm:     newTestLSM(),
		cf:      &testCF{id: 1, name: "default"},
		shadows: NewShadowSet(),
		stats:   NewStats(),
	}
	h.opts = &Options{
		FS:          vfs.WithCounters(h.memFS, h.stats.IOCounters()),
		Dirname:     "blob",
		Logger:      base.NoopLogger{},
		Stats:       h.stats,
		Compression: blobfile.NoCompression,
	}
	if configure != nil {
		configure(h.opts)
	}
	h.opts.EnsureDefaults()
	set, err := OpenBlobFileSet(h.opts)
	require.NoError(t, err)
	h.set = set
	h.manager = NewBlobFileManager(h.opts, &h.mu, set)
	return h
}

// writeInputFile writes a published blob file holding kvs and points the
// engine's keys at it.
func (h *gcHarness) writeInputFile(kvs map[string]string) (*BlobFileMeta, map[string]blobfile.BlobIndex) {
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	handle, err := h.manager.NewFile()
	require.NoError(h.t, err)
	w := blobfile.NewFileWriter(handle.FileNum, handle.File,
		blobfile.FileWriterOptions{Compression: h.opts.Compression})
	indices := make(map[string]blobfile.BlobIndex, len(kvs))
	for _, k := range keys {
		rh, err := w.AddRecord([]byte(k), []byte(kvs[k]))
		require.NoError(h.t, err)
		indices[k] = blobfile.BlobIndex{FileNum: handle.FileNum, Handle: rh}
	}
	stats, err := w.Close()
	require.NoError(h.t, err)

	meta := NewBlobFileMeta(handle.FileNum, stats.FileLen, stats.EntryCount,
		stats.SmallestKey, stats.LargestKey, stats.LiveDataSize)
	meta.markPendingGC()
	require.NoError(h.t, h.manager.BatchFinishFiles(h.cf.ID(),
		[]FinishedBlobFile{{Meta: meta, Handle: handle}}))

	for _, k := range keys {
		h.lsm.set(h.cf.ID(), k, indices[k].Encode(nil), true, 1)
	}
	return meta, indices
}

func (h *gcHarness) newJob(inputs []*BlobFileMeta) *BlobGCJob {
	gc := NewBlobGC(h.cf, inputs)
	return NewBlobGCJob(gc, h.lsm, &h.mu, h.opts, h.manager, h.set, h.shadows, &h.shutdown)
}

// runJob drives a job through all phases, closing it at the end.
func (h *gcHarness) runJob(inputs []*BlobFileMeta) (*BlobGCJob, error) {
	job := h.newJob(inputs)
	err := job.Prepare()
	if err == nil {
		err = job.Run()
	}
	if err == nil {
		h.mu.Lock()
		err = job.Finish()
		h.mu.Unlock()
	}
	job.Close()
	return job, err
}

// blobIndexOf decodes the engine's current blob index for key.
func (h *gcHarness) blobIndexOf(key string) blobfile.BlobIndex {
	e, ok := h.lsm.get(h.cf.ID(), key)
	require.True(h.t, ok, "key %q missing", key)
	require.True(h.t, e.isBlobIndex, "key %q not a blob index", key)
	idx, err := blobfile.DecodeBlobIndex(e.value)
	require.NoError(h.t, err)
	return idx
}

func requireCounterIdentity(t *testing.T, m *gcMetrics) {
	require.Equal(t, m.numKeysScanned,
		m.numKeysDiscardable+m.numKeysValid+m.numKeysSkippedOlder)
}

func TestGCRelocatesLiveKeys(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta", "c": "gamma"})

	job, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)

	outputs := job.gc.Outputs()
	require.Len(t, outputs, 1)
	out := outputs[0]
	require.Equal(t, BlobFileStateNormal, out.State())

	// Every key now points at the output file and reads back its value.
	f, err := h.opts.FS.Open(makeBlobFilepath(h.opts.FS, h.opts.Dirname, out.FileNum()))
	require.NoError(t, err)
	r, err := blobfile.NewFileReader(f, out.FileNum(), out.FileSize())
	require.NoError(t, err)
	defer r.Close()
	for key, want := range map[string]string{"a": "alpha", "b": "beta", "c": "gamma"} {
		idx := h.blobIndexOf(key)
		require.Equal(t, out.FileNum(), idx.FileNum)
		gotKey, gotValue, err := r.ReadRecord(idx.Handle)
		require.NoError(t, err)
		require.Equal(t, key, string(gotKey))
		require.Equal(t, want, string(gotValue))
	}

	require.True(t, input.IsObsolete())
	require.Equal(t, h.lsm.LatestSeqNum(), input.ObsoleteSeq())
	require.Equal(t, uint64(3), job.metrics.numKeysRelocated)
	require.Zero(t, job.metrics.numKeysOverwrittenCheck)
	require.Zero(t, job.metrics.numKeysOverwrittenCallback)
	require.GreaterOrEqual(t, h.lsm.walSyncs, 1)
	requireCounterIdentity(t, &job.metrics)
}

func TestGCFullyObsoleteInput(t *testing.T) {
	h := newGCHarness(t, nil)
	input, indices := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta"})

	// Both keys deleted; a previous job already proved the records dead, so
	// the bitset alone classifies them.
	h.lsm.delete(h.cf.ID(), "a")
	h.lsm.delete(h.cf.ID(), "b")
	h.mu.Lock()
	storage := h.set.Storage(h.cf.ID())
	for _, idx := range indices {
		input.SetLive(idx.Handle.Order, false)
		storage.updateLiveDataSize(input, -int64(idx.Handle.Size))
	}
	h.mu.Unlock()

	job, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)

	require.Empty(t, job.gc.Outputs())
	require.True(t, input.IsObsolete())
	require.Equal(t, uint64(2), job.metrics.numKeysOverwrittenCheck)
	// The bitset fast path never touched the engine.
	require.Zero(t, job.metrics.bytesReadCheck)
	requireCounterIdentity(t, &job.metrics)
}

func TestGCRaceLostAtCallback(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha"})

	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())

	// A foreground writer overwrites the key with another blob between the
	// scan and the rewrite.
	otherIdx := blobfile.BlobIndex{FileNum: 999, Handle: blobfile.Handle{Offset: 0, Size: 10, Order: 0}}
	h.lsm.set(h.cf.ID(), "a", otherIdx.Encode(nil), true, 1)

	h.mu.Lock()
	err := job.Finish()
	h.mu.Unlock()
	require.NoError(t, err)
	job.Close()

	// The output file was published with the stale record; its bit is
	// cleared and its live size zeroed.
	outputs := job.gc.Outputs()
	require.Len(t, outputs, 1)
	out := outputs[0]
	require.Equal(t, uint32(1), out.EntryCount())
	require.False(t, out.IsLive(0))
	require.Zero(t, out.LiveDataSize())

	require.Equal(t, uint64(1), job.metrics.numKeysOverwrittenCallback)
	require.Zero(t, job.metrics.numKeysRelocated)
	require.True(t, input.IsObsolete())

	// The foreground write is untouched.
	require.True(t, h.blobIndexOf("a").Equal(otherIdx))
}

func TestGCAllKeysOverwrittenAtCallback(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta"})

	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())
	h.lsm.set(h.cf.ID(), "a", []byte("inlined"), false, 0)
	h.lsm.delete(h.cf.ID(), "b")

	h.mu.Lock()
	err := job.Finish()
	h.mu.Unlock()
	require.NoError(t, err)
	job.Close()

	require.Equal(t, uint64(2), job.metrics.numKeysOverwrittenCallback)
	require.Zero(t, job.metrics.numKeysRelocated)
	require.True(t, input.IsObsolete())
}

func TestGCFallbackMode(t *testing.T) {
	h := newGCHarness(t, func(o *Options) { o.BlobRunMode = BlobRunModeFallback })
	input, _ := h.writeInputFile(map[string]string{"a": "0123456789"})

	job, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)

	require.Empty(t, job.gc.Outputs())
	e, ok := h.lsm.get(h.cf.ID(), "a")
	require.True(t, ok)
	require.False(t, e.isBlobIndex)
	require.Equal(t, "0123456789", string(e.value))
	require.Equal(t, uint64(1), job.metrics.numKeysFallback)
	require.True(t, input.IsObsolete())
}

func TestGCDuplicateNewestOnly(t *testing.T) {
	h := newGCHarness(t, nil)
	// The older version of "a" lives in the first file; writeInputFile
	// repoints the engine at each file in turn, so after the second call the
	// engine references the newer file.
	older, _ := h.writeInputFile(map[string]string{"a": "old"})
	newer, newerIdx := h.writeInputFile(map[string]string{"a": "new"})
	require.Greater(t, newer.FileNum(), older.FileNum())

	job, err := h.runJob([]*BlobFileMeta{older, newer})
	require.NoError(t, err)

	require.Len(t, job.gc.Outputs(), 1)
	require.Equal(t, uint32(1), job.gc.Outputs()[0].EntryCount())
	require.Equal(t, uint64(1), job.metrics.numKeysRelocated)
	require.Equal(t, uint64(1), job.metrics.numKeysSkippedOlder)
	require.True(t, older.IsObsolete())
	require.True(t, newer.IsObsolete())
	require.NotEqual(t, newerIdx["a"].FileNum, h.blobIndexOf("a").FileNum)
	requireCounterIdentity(t, &job.metrics)
}

// failingManager injects a publish failure.
type failingManager struct {
	BlobFileManager
	failFinish bool
}

func (m *failingManager) BatchFinishFiles(cfID base.ColumnFamilyID, files []FinishedBlobFile) error {
	if m.failFinish {
		return errors.New("injected publish failure")
	}
	return m.BlobFileManager.BatchFinishFiles(cfID, files)
}

func TestGCInstallFailure(t *testing.T) {
	h := newGCHarness(t, nil)
	input, indices := h.writeInputFile(map[string]string{"a": "alpha"})

	gc := NewBlobGC(h.cf, []*BlobFileMeta{input})
	job := NewBlobGCJob(gc, h.lsm, &h.mu, h.opts,
		&failingManager{BlobFileManager: h.manager, failFinish: true},
		h.set, h.shadows, &h.shutdown)
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())
	h.mu.Lock()
	err := job.Finish()
	h.mu.Unlock()
	require.ErrorContains(t, err, "injected publish failure")
	job.Close()

	// The engine is untouched, the input is still live, and the output file
	// was deleted.
	require.True(t, h.blobIndexOf("a").Equal(indices["a"]))
	require.False(t, input.IsObsolete())
	require.Zero(t, job.metrics.numKeysRelocated)
	names, lerr := h.memFS.List(h.opts.Dirname)
	require.NoError(t, lerr)
	require.ElementsMatch(t, []string{"MANIFEST-BLOB", "000001.blob"}, names)
}

func TestGCShutdownBeforeInstall(t *testing.T) {
	h := newGCHarness(t, nil)
	input, indices := h.writeInputFile(map[string]string{"a": "alpha"})

	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())

	h.shutdown.Store(true)
	h.mu.Lock()
	err := job.Finish()
	h.mu.Unlock()
	require.True(t, errors.Is(err, base.ErrShutdown))
	job.Close()
	h.shutdown.Store(false)

	// Nothing was published: the output file is gone, the input is intact.
	require.False(t, input.IsObsolete())
	require.True(t, h.blobIndexOf("a").Equal(indices["a"]))
	names, lerr := h.memFS.List(h.opts.Dirname)
	require.NoError(t, lerr)
	require.ElementsMatch(t, []string{"MANIFEST-BLOB", "000001.blob"}, names)
}

func TestGCShutdownDuringScan(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta"})

	h.shutdown.Store(true)
	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	err := job.Run()
	require.True(t, errors.Is(err, base.ErrShutdown))
	job.Close()
	h.shutdown.Store(false)

	require.False(t, input.IsObsolete())
}

func TestGCEmptyInputSet(t *testing.T) {
	h := newGCHarness(t, nil)
	job, err := h.runJob(nil)
	require.NoError(t, err)
	require.Empty(t, job.gc.Outputs())
	require.Zero(t, job.metrics.numKeysScanned)
}

func TestGCIdempotent(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta"})

	_, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)
	require.True(t, input.IsObsolete())

	// A second pass over the same inputs finds nothing live: every key now
	// points into the first pass's output file.
	job2, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)
	require.Empty(t, job2.gc.Outputs())
	require.Zero(t, job2.metrics.numKeysValid)
	require.Equal(t, uint64(2), job2.metrics.numKeysDiscardable)
	requireCounterIdentity(t, &job2.metrics)
}

func TestGCOutputRolling(t *testing.T) {
	// With compression off, each record is 4+1+1+1+1+8 = 16 bytes and a
	// fresh output file estimates 16+17 = 33 bytes after one record. A
	// target of 33 therefore rolls before every subsequent record.
	h := newGCHarness(t, func(o *Options) { o.BlobFileTargetSize = 33 })
	input, _ := h.writeInputFile(map[string]string{
		"a": "12345678", "b": "12345678", "c": "12345678",
	})

	job, err := h.runJob([]*BlobFileMeta{input})
	require.NoError(t, err)
	require.Len(t, job.gc.Outputs(), 3)
	for _, out := range job.gc.Outputs() {
		require.Equal(t, uint32(1), out.EntryCount())
	}
	require.Equal(t, uint64(3), job.metrics.numKeysRelocated)

	// One byte of slack keeps two records per file.
	h2 := newGCHarness(t, func(o *Options) { o.BlobFileTargetSize = 34 })
	input2, _ := h2.writeInputFile(map[string]string{
		"a": "12345678", "b": "12345678", "c": "12345678",
	})
	job2, err := h2.runJob([]*BlobFileMeta{input2})
	require.NoError(t, err)
	require.Len(t, job2.gc.Outputs(), 2)
	require.Equal(t, uint32(2), job2.gc.Outputs()[0].EntryCount())
	require.Equal(t, uint32(1), job2.gc.Outputs()[1].EntryCount())
}

func TestGCColumnFamilyDropped(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha"})

	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())
	h.cf.dropped.Store(true)
	h.mu.Lock()
	err := job.Finish()
	h.mu.Unlock()
	job.Close()
	h.cf.dropped.Store(false)

	require.True(t, errors.Is(err, base.ErrColumnFamilyDropped))
	// Published outputs stand; the inputs were not obsoleted.
	require.False(t, input.IsObsolete())
	require.Len(t, job.gc.Outputs(), 1)
}

func TestGCLiveDataSizeInvariant(t *testing.T) {
	h := newGCHarness(t, nil)
	input, _ := h.writeInputFile(map[string]string{"a": "alpha", "b": "beta"})

	job := h.newJob([]*BlobFileMeta{input})
	require.NoError(t, job.Prepare())
	require.NoError(t, job.Run())
	// One key lost, one key kept.
	h.lsm.delete(h.cf.ID(), "b")
	h.mu.Lock()
	require.NoError(t, job.Finish())
	h.mu.Unlock()
	job.Close()

	require.Len(t, job.gc.Outputs(), 1)
	out := job.gc.Outputs()[0]
	require.Equal(t, uint32(2), out.EntryCount())
	// "a" committed; "b" lost the race, so its bit is cleared in the output
	// file. The records were rewritten verbatim, so the dropped new record
	// is the same size as the old one counted at the callback, and
	// live_data_size + dropped bytes covers every byte written.
	require.True(t, out.IsLive(0))
	require.False(t, out.IsLive(1))
	require.Equal(t, job.metrics.bytesWrittenBlob,
		out.LiveDataSize()+job.metrics.bytesOverwrittenCallback)
	require.Equal(t, uint64(1), job.metrics.numKeysRelocated)
	require.Equal(t, uint64(1), job.metrics.numKeysOverwrittenCallback)
}
