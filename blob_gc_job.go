// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/basaltdb/basalt/blobfile"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// gcMetrics accumulates one job's counters. They are flushed into the
// shared Stats exactly once, when the job closes.
type gcMetrics struct {
	bytesReadBlob     uint64
	bytesReadCheck    uint64
	bytesReadCallback uint64
	bytesWrittenBlob  uint64
	bytesWrittenLSM   uint64

	numKeysOverwrittenCheck    uint64
	numKeysOverwrittenCallback uint64
	bytesOverwrittenCheck      uint64
	bytesOverwrittenCallback   uint64
	numKeysRelocated           uint64
	bytesRelocated             uint64
	numKeysFallback            uint64
	bytesFallback              uint64

	// Scan-loop accounting: every scanned record is classified exactly once,
	// so numKeysScanned == numKeysDiscardable + numKeysValid +
	// numKeysSkippedOlder on a completed scan.
	numKeysScanned      uint64
	numKeysValid        uint64
	numKeysDiscardable  uint64
	numKeysSkippedOlder uint64

	numInputFiles  uint64
	numOutputFiles uint64

	scanDuration   time.Duration
	updateDuration time.Duration
}

// rewriteBatch is one pending base-engine mutation: a single-key batch and
// the callback that re-verifies the key at commit time.
type rewriteBatch struct {
	batch Batch
	cb    *gcWriteCallback
}

type outputBlobFile struct {
	handle *BlobFileHandle
	writer *blobfile.FileWriter
}

// droppedRecords accumulates, per output file, the records whose rewrites
// lost the race at the write callback. The records were already written to
// the output file; their bits are cleared during install.
type droppedRecords struct {
	size   uint64
	orders []uint32
}

// BlobGCJob rewrites the live records of a set of input blob files into new
// blob files (or back into the base engine) and drops the input files.
//
// The job runs in three phases, called in order: Prepare, Run, Finish. Any
// non-nil result short-circuits the remaining phases; Close must always be
// called last and flushes the job's metrics and buffered log lines
// regardless of how far the job got.
//
// The blob manifest and the base engine's manifest are independent, so a
// crash between them must never leave the engine pointing at a blob file
// that does not exist. Finish therefore installs output blob files before
// any index rewrite reaches the engine, and marks input files obsolete only
// after the rewrites are synced to the WAL.
type BlobGCJob struct {
	gc          *BlobGC
	lsm         LSM
	mu          *sync.Mutex
	opts        *Options
	fileManager BlobFileManager
	fileSet     *BlobFileSet
	shadowSet   *ShadowSet
	logger      *base.BufferedLogger
	shutdown    *atomic.Bool
	stats       *Stats

	// shadowMode is fixed at construction: live indices go into side-car
	// shadow files instead of the engine write path. Fallback mode must go
	// through the engine write path, so it overrides RewriteShadow.
	shadowMode bool

	rewriteBatches []rewriteBatch
	outputs        []outputBlobFile

	shadowBuilders   [numShadowLevels]*shadowBuilder
	finishedShadows  []*ShadowFileMeta
	shadowsInstalled bool

	outputsResolved bool
	metrics         gcMetrics
	prevIORead      uint64
	prevIOWritten   uint64
	closed          bool
}

// NewBlobGCJob constructs a GC job over the input set gc. mu is the engine
// mutex; shutdown is the engine-wide shutdown flag, polled between units of
// work.
func NewBlobGCJob(
	gc *BlobGC,
	lsm LSM,
	mu *sync.Mutex,
	opts *Options,
	fileManager BlobFileManager,
	fileSet *BlobFileSet,
	shadowSet *ShadowSet,
	shutdown *atomic.Bool,
) *BlobGCJob {
	return &BlobGCJob{
		gc:          gc,
		lsm:         lsm,
		mu:          mu,
		opts:        opts,
		fileManager: fileManager,
		fileSet:     fileSet,
		shadowSet:   shadowSet,
		logger:      base.NewBufferedLogger(opts.Logger),
		shutdown:    shutdown,
		stats:       opts.Stats,
		shadowMode:  opts.RewriteShadow && opts.BlobRunMode == BlobRunModeNormal,
	}
}

// Prepare snapshots the filesystem I/O counters so Finish can attribute I/O
// deltas to the job. Must be called once, before Run.
func (j *BlobGCJob) Prepare() error {
	j.prevIORead, j.prevIOWritten = j.stats.IOBytes()
	return nil
}

// Run executes the scan/filter/rewrite pipeline over the input files.
func (j *BlobGCJob) Run() error {
	sw := base.MakeStopwatch()
	defer func() { j.metrics.scanDuration += sw.Elapsed() }()

	var totalSize, totalLive uint64
	for _, m := range j.gc.Inputs() {
		totalSize += m.FileSize()
		totalLive += m.LiveDataSize()
	}
	j.logger.Infof("[%s] blob GC start: %d files, %d bytes, %d live bytes, %d garbage bytes",
		j.gc.ColumnFamily().Name(), len(j.gc.Inputs()), totalSize, totalLive, totalSize-totalLive)

	return j.runGC()
}

func (j *BlobGCJob) runGC() error {
	it, err := j.buildIterator()
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	var pacer *gcPacer
	if j.opts.GCReadBytesPerSec > 0 {
		pacer = newGCPacer(j.opts.GCReadBytesPerSec)
	}

	var lastKey []byte
	lastKeyValid := false
	lastKeyIsFresh := false
	for valid := it.First(); valid; valid = it.Next() {
		j.metrics.numKeysScanned++
		if j.isShuttingDown() {
			err = base.ErrShutdown
			break
		}
		idx := it.BlobIndex()
		j.metrics.bytesReadBlob += idx.Handle.Size
		if pacer != nil {
			pacer.wait(idx.Handle.Size)
		}

		key := it.Key()
		if lastKeyValid && j.opts.Comparer.Compare(key, lastKey) == 0 {
			if lastKeyIsFresh {
				// Only the newest version gets rewritten. Blob files holding
				// the older versions are not purged while a snapshot still
				// references them.
				j.metrics.numKeysSkippedOlder++
				continue
			}
		} else {
			lastKey = append(lastKey[:0], key...)
			lastKeyValid = true
			lastKeyIsFresh = false
		}

		var discardable bool
		level := -1
		discardable, err = j.discardEntryWithBitset(idx)
		if err != nil {
			break
		}
		if !discardable {
			// The bitset only proves death; confirm liveness against the
			// engine and learn the key's level.
			discardable, level, err = j.discardEntry(key, idx)
			if err != nil {
				break
			}
		}
		if discardable {
			j.metrics.numKeysOverwrittenCheck++
			j.metrics.bytesOverwrittenCheck += idx.Handle.Size
			j.metrics.numKeysDiscardable++
			continue
		}
		j.metrics.numKeysValid++
		lastKeyIsFresh = true

		if j.opts.BlobRunMode == BlobRunModeFallback {
			j.appendRewriteBatch(key, it.Value(), idx, blobfile.BlobIndex{})
			continue
		}

		var out *outputBlobFile
		out, err = j.currentOutput()
		if err != nil {
			break
		}
		var h blobfile.Handle
		h, err = out.writer.AddRecord(key, it.Value())
		if err != nil {
			break
		}
		j.metrics.bytesWrittenBlob += h.Size
		newIdx := blobfile.BlobIndex{FileNum: out.handle.FileNum, Handle: h}

		if j.shadowMode {
			err = j.addToShadow(clampShadowLevel(level), key, newIdx)
			if err != nil {
				break
			}
		} else {
			j.appendRewriteBatch(key, nil, idx, newIdx)
		}
	}
	if err == nil {
		err = it.Error()
	}

	j.logger.Infof("[%s] blob GC scanned %d keys: %d valid, %d discardable, %d older versions",
		j.gc.ColumnFamily().Name(), j.metrics.numKeysScanned, j.metrics.numKeysValid,
		j.metrics.numKeysDiscardable, j.metrics.numKeysSkippedOlder)

	if err != nil {
		return err
	}
	if j.shadowMode {
		return j.finishShadowBuilders()
	}
	return nil
}

// buildIterator opens one iterator per input file and merges them.
func (j *BlobGCJob) buildIterator() (*blobfile.MergingIter, error) {
	inputs := j.gc.Inputs()
	iters := make([]*blobfile.FileIterator, 0, len(inputs))
	for _, m := range inputs {
		path := makeBlobFilepath(j.opts.FS, j.opts.Dirname, m.FileNum())
		f, err := j.opts.FS.Open(path)
		if err == nil {
			var r *blobfile.FileReader
			r, err = blobfile.NewFileReader(f, m.FileNum(), m.FileSize())
			if err != nil {
				_ = f.Close()
			} else {
				iters = append(iters, r.NewIter())
			}
		}
		if err != nil {
			for _, open := range iters {
				_ = open.Close()
			}
			return nil, err
		}
	}
	return blobfile.NewMergingIter(j.opts.Comparer.Compare, iters), nil
}

// discardEntryWithBitset consults the input file's liveness bitmap: a
// cleared bit proves the record dead without touching the engine.
func (j *BlobGCJob) discardEntryWithBitset(idx blobfile.BlobIndex) (bool, error) {
	var meta *BlobFileMeta
	for _, m := range j.gc.Inputs() {
		if m.FileNum() == idx.FileNum {
			meta = m
			break
		}
	}
	if meta == nil {
		return false, errors.AssertionFailedf(
			"basalt: blob file %s not in the GC input set", idx.FileNum)
	}
	j.mu.Lock()
	live := meta.IsLive(idx.Handle.Order)
	j.mu.Unlock()
	return !live, nil
}

// discardEntry is the authoritative liveness check: the record is live iff
// the engine's current value for the key is exactly the scanned blob index.
// The returned level is informational.
func (j *BlobGCJob) discardEntry(key []byte, idx blobfile.BlobIndex) (bool, int, error) {
	value, isBlobIndex, level, err := j.lsm.GetWithLevel(j.gc.ColumnFamily(), key)
	if err != nil && !errors.Is(err, base.ErrNotFound) {
		return false, level, err
	}
	j.metrics.bytesReadCheck += uint64(len(key) + len(value))
	if errors.Is(err, base.ErrNotFound) || !isBlobIndex {
		// Either the key is deleted or updated with a newer version which
		// is inlined in the base engine.
		return true, level, nil
	}
	other, err := blobfile.DecodeBlobIndex(value)
	if err != nil {
		return false, level, err
	}
	return !idx.Equal(other), level, nil
}

// currentOutput returns the output file to append to, rolling to a new one
// when the current file has reached the target size.
func (j *BlobGCJob) currentOutput() (*outputBlobFile, error) {
	if n := len(j.outputs); n > 0 &&
		j.outputs[n-1].writer.EstimatedSize() < j.opts.BlobFileTargetSize {
		return &j.outputs[n-1], nil
	}
	handle, err := j.fileManager.NewFile()
	if err != nil {
		return nil, err
	}
	j.logger.Infof("[%s] new blob GC output file %s",
		j.gc.ColumnFamily().Name(), handle.FileNum)
	writer := blobfile.NewFileWriter(handle.FileNum, handle.File,
		blobfile.FileWriterOptions{Compression: j.opts.Compression})
	j.outputs = append(j.outputs, outputBlobFile{handle: handle, writer: writer})
	return &j.outputs[len(j.outputs)-1], nil
}

// appendRewriteBatch queues a single-key engine mutation paired with the
// optimistic callback. An empty newIdx reinlines the value (fallback mode).
func (j *BlobGCJob) appendRewriteBatch(
	key, inlineValue []byte, oldIdx, newIdx blobfile.BlobIndex,
) {
	cb := &gcWriteCallback{
		cf:           j.gc.ColumnFamily(),
		key:          append([]byte(nil), key...),
		blobIndex:    oldIdx,
		newBlobIndex: newIdx,
	}
	batch := MakeBatch(j.gc.ColumnFamily().ID())
	if newIdx.Empty() {
		batch.Set(cb.key, append([]byte(nil), inlineValue...))
	} else {
		batch.SetBlobIndex(cb.key, newIdx.Encode(nil))
	}
	j.rewriteBatches = append(j.rewriteBatches, rewriteBatch{batch: batch, cb: cb})
}

// Finish publishes the job's outputs: blob files first, then either the
// engine rewrites followed by the WAL sync or, in shadow mode, the shadow
// install, and finally the manifest edit obsoleting the input files. The caller must hold the engine mutex;
// Finish releases it around all I/O.
func (j *BlobGCJob) Finish() error {
	// A shutdown observed before install leaves persistent state untouched:
	// the unpublished outputs are deleted when the job closes.
	if j.isShuttingDown() {
		return base.ErrShutdown
	}
	j.mu.Unlock()
	err := j.installOutputBlobFiles()
	if err == nil {
		if j.shadowMode {
			err = j.installOutputShadows()
		} else if err = j.rewriteValidKeysToLSM(); err != nil {
			j.logger.Errorf("[%s] blob GC failed to rewrite keys: %v",
				j.gc.ColumnFamily().Name(), err)
		}
	} else {
		j.logger.Errorf("[%s] blob GC failed to install output blob files: %v",
			j.gc.ColumnFamily().Name(), err)
	}
	j.mu.Lock()

	if err == nil && !j.gc.ColumnFamily().IsDropped() {
		err = j.deleteInputBlobFiles()
	}
	if err == nil {
		j.updateInternalOpStats()
	}
	return err
}

// installOutputBlobFiles finalizes every output blob file and publishes
// them as one batch: either all become normal, or all are deleted and the
// engine is never touched.
func (j *BlobGCJob) installOutputBlobFiles() error {
	if len(j.outputs) == 0 {
		j.outputsResolved = true
		return nil
	}
	writerStats := make([]blobfile.FileWriterStats, len(j.outputs))
	var g errgroup.Group
	for i := range j.outputs {
		i := i
		g.Go(func() error {
			stats, err := j.outputs[i].writer.Close()
			writerStats[i] = stats
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		finished := make([]FinishedBlobFile, len(j.outputs))
		for i := range j.outputs {
			stats := writerStats[i]
			meta := NewBlobFileMeta(j.outputs[i].handle.FileNum, stats.FileLen,
				stats.EntryCount, stats.SmallestKey, stats.LargestKey, stats.LiveDataSize)
			meta.markPendingGC()
			finished[i] = FinishedBlobFile{Meta: meta, Handle: j.outputs[i].handle}
		}
		err = j.fileManager.BatchFinishFiles(j.gc.ColumnFamily().ID(), finished)
		if err == nil {
			for _, f := range finished {
				j.gc.AddOutputFile(f.Meta)
				j.metrics.numOutputFiles++
				j.stats.OutputFileSize.Observe(float64(f.Meta.FileSize()))
			}
			j.outputsResolved = true
			return nil
		}
	}
	handles := make([]*BlobFileHandle, len(j.outputs))
	for i := range j.outputs {
		handles[i] = j.outputs[i].handle
	}
	j.logger.Errorf("[%s] blob GC deleting unpublished output files after install failure: %v",
		j.gc.ColumnFamily().Name(), err)
	if derr := j.fileManager.BatchDeleteFiles(handles); derr != nil {
		j.logger.Errorf("[%s] blob GC failed to delete output files: %v",
			j.gc.ColumnFamily().Name(), derr)
	}
	// The outputs are resolved either way; Close must not delete them twice.
	j.outputsResolved = true
	return err
}

// rewriteValidKeysToLSM commits the queued rewrites one batch at a time.
// Busy callbacks are expected losses, not errors: the freshly written
// record is already stale, so its bit in the output file is cleared and its
// bytes subtracted from the file's live size.
func (j *BlobGCJob) rewriteValidKeysToLSM() error {
	sw := base.MakeStopwatch()
	defer func() { j.metrics.updateDuration += sw.Elapsed() }()

	var err error
	dropped := make(map[base.DiskFileNum]*droppedRecords)
	for i := range j.rewriteBatches {
		if j.gc.ColumnFamily().IsDropped() {
			err = base.ErrColumnFamilyDropped
			break
		}
		if j.isShuttingDown() {
			err = base.ErrShutdown
			break
		}
		rb := &j.rewriteBatches[i]
		werr := j.lsm.ApplyWithCallback(&rb.batch, rb.cb)
		newIdx := rb.cb.newBlobIndex
		switch {
		case werr == nil:
			if !newIdx.Empty() {
				j.metrics.bytesWrittenLSM += uint64(rb.batch.Len())
				j.metrics.numKeysRelocated++
				j.metrics.bytesRelocated += rb.cb.blobRecordSize()
			} else {
				j.metrics.numKeysFallback++
				j.metrics.bytesFallback += rb.cb.blobRecordSize()
			}
		case errors.Is(werr, base.ErrBusy):
			j.metrics.numKeysOverwrittenCallback++
			j.metrics.bytesOverwrittenCallback += rb.cb.blobRecordSize()
			if !newIdx.Empty() {
				d := dropped[newIdx.FileNum]
				if d == nil {
					d = &droppedRecords{}
					dropped[newIdx.FileNum] = d
				}
				d.size += newIdx.Handle.Size
				d.orders = append(d.orders, newIdx.Handle.Order)
			}
		default:
			err = werr
		}
		j.metrics.bytesReadCallback += rb.cb.readBytes
		if err != nil {
			break
		}
	}

	if len(dropped) > 0 {
		j.mu.Lock()
		storage := j.fileSet.Storage(j.gc.ColumnFamily().ID())
		for fileNum, d := range dropped {
			m := storage.FindFile(fileNum)
			if m == nil {
				j.logger.Errorf("[%s] blob file %s not found during GC install",
					j.gc.ColumnFamily().Name(), fileNum)
				continue
			}
			for _, order := range d.orders {
				m.SetLive(order, false)
			}
			storage.updateLiveDataSize(m, -int64(d.size))
		}
		storage.ComputeGCScore()
		j.mu.Unlock()
	}

	if err == nil {
		err = j.lsm.FlushWAL(true)
	}
	return err
}

// installOutputShadows publishes the finished shadow files.
func (j *BlobGCJob) installOutputShadows() error {
	j.shadowSet.Install(j.finishedShadows)
	j.shadowsInstalled = true
	return nil
}

// deleteInputBlobFiles marks the input files obsolete through a manifest
// edit carrying the engine's current latest sequence number. Files already
// obsoleted by a concurrent range deletion are skipped. The engine mutex
// must be held.
func (j *BlobGCJob) deleteInputBlobFiles() error {
	obsoleteSeq := j.lsm.LatestSeqNum()
	edit := VersionEdit{ColumnFamilyID: j.gc.ColumnFamily().ID()}
	for _, m := range j.gc.Inputs() {
		j.metrics.numInputFiles++
		j.stats.InputFileSize.Observe(float64(m.FileSize()))
		if m.IsObsolete() {
			continue
		}
		j.logger.Infof("[%s] blob GC obsoleting file %s range [%x, %x]",
			j.gc.ColumnFamily().Name(), m.FileNum(), m.SmallestKey(), m.LargestKey())
		edit.DeleteBlobFile(m.FileNum(), obsoleteSeq)
	}
	return j.fileSet.LogAndApply(&edit)
}

func (j *BlobGCJob) isShuttingDown() bool {
	return j.shutdown != nil && j.shutdown.Load()
}

// Close releases the job's resources and flushes its metrics and buffered
// log lines. If the job failed before its outputs were installed, the
// unpublished files are deleted here. Close is idempotent.
func (j *BlobGCJob) Close() {
	if j.closed {
		return
	}
	j.closed = true

	if !j.outputsResolved && len(j.outputs) > 0 {
		handles := make([]*BlobFileHandle, len(j.outputs))
		for i := range j.outputs {
			j.outputs[i].writer.Abort()
			handles[i] = j.outputs[i].handle
		}
		if err := j.fileManager.BatchDeleteFiles(handles); err != nil {
			j.logger.Errorf("[%s] blob GC failed to delete output files: %v",
				j.gc.ColumnFamily().Name(), err)
		}
	}
	j.abortShadowFiles()
	j.flushMetrics()
	j.logger.Flush()
}

// abortShadowFiles deletes shadow files that never made it into the shadow
// set, and aborts builders still open.
func (j *BlobGCJob) abortShadowFiles() {
	for level, b := range j.shadowBuilders {
		if b == nil {
			continue
		}
		b.writer.Abort()
		_ = j.opts.FS.Remove(b.path)
		j.shadowBuilders[level] = nil
	}
	if !j.shadowsInstalled {
		for _, m := range j.finishedShadows {
			path := makeShadowFilepath(j.opts.FS, j.opts.Dirname, m.FileNum, m.Level)
			_ = j.opts.FS.Remove(path)
		}
		j.finishedShadows = nil
	}
}

func (j *BlobGCJob) flushMetrics() {
	s := j.stats
	m := &j.metrics
	s.BytesReadBlob.Add(float64(m.bytesReadBlob))
	s.BytesReadCheck.Add(float64(m.bytesReadCheck))
	s.BytesReadCallback.Add(float64(m.bytesReadCallback))
	s.BytesWrittenBlob.Add(float64(m.bytesWrittenBlob))
	s.BytesWrittenLSM.Add(float64(m.bytesWrittenLSM))
	s.KeysOverwrittenCheck.Add(float64(m.numKeysOverwrittenCheck))
	s.KeysOverwrittenCallback.Add(float64(m.numKeysOverwrittenCallback))
	s.BytesOverwrittenCheck.Add(float64(m.bytesOverwrittenCheck))
	s.BytesOverwrittenCallback.Add(float64(m.bytesOverwrittenCallback))
	s.KeysRelocated.Add(float64(m.numKeysRelocated))
	s.BytesRelocated.Add(float64(m.bytesRelocated))
	s.KeysFallback.Add(float64(m.numKeysFallback))
	s.BytesFallback.Add(float64(m.bytesFallback))
	s.InputFiles.Add(float64(m.numInputFiles))
	s.OutputFiles.Add(float64(m.numOutputFiles))
	s.recordScanDuration(m.scanDuration)
	s.recordUpdateDuration(m.updateDuration)
}

// updateInternalOpStats folds the job's totals into the per-column-family
// aggregate. Called once, from Finish, on success.
func (j *BlobGCJob) updateInternalOpStats() {
	read, written := j.stats.IOBytes()
	ops := j.stats.InternalOps(j.gc.ColumnFamily().ID())
	ops.Count.Add(1)
	ops.BytesRead.Add(j.metrics.bytesReadBlob + j.metrics.bytesReadCheck + j.metrics.bytesReadCallback)
	ops.BytesWritten.Add(j.metrics.bytesWrittenBlob + j.metrics.bytesWrittenLSM)
	ops.IOBytesRead.Add(read - j.prevIORead)
	ops.IOBytesWritten.Add(written - j.prevIOWritten)
	ops.InputFileNum.Add(j.metrics.numInputFiles)
	ops.OutputFileNum.Add(j.metrics.numOutputFiles)
}

// addToShadow appends (key, new index) to the level's shadow builder,
// rolling the builder when it reaches the shadow target size.
func (j *BlobGCJob) addToShadow(level int, key []byte, newIdx blobfile.BlobIndex) error {
	b := j.shadowBuilders[level]
	if b == nil {
		var err error
		b, err = j.newShadowBuilder(level)
		if err != nil {
			return err
		}
		j.shadowBuilders[level] = b
	}
	b.scratch = newIdx.Encode(b.scratch[:0])
	if _, err := b.writer.AddRecord(key, b.scratch); err != nil {
		return err
	}
	if b.writer.EstimatedSize() >= j.opts.ShadowTargetSize {
		return j.finishShadowBuilder(level)
	}
	return nil
}

func (j *BlobGCJob) newShadowBuilder(level int) (*shadowBuilder, error) {
	fileNum := j.fileSet.NewFileNum()
	path := makeShadowFilepath(j.opts.FS, j.opts.Dirname, fileNum, level)
	f, err := j.opts.FS.Create(path)
	if err != nil {
		return nil, err
	}
	j.logger.Infof("[%s] new blob GC shadow file %s level %d",
		j.gc.ColumnFamily().Name(), fileNum, level)
	writer := blobfile.NewFileWriter(fileNum, f,
		blobfile.FileWriterOptions{Compression: j.opts.Compression})
	return &shadowBuilder{level: level, fileNum: fileNum, path: path, writer: writer}, nil
}

func (j *BlobGCJob) finishShadowBuilder(level int) error {
	b := j.shadowBuilders[level]
	j.shadowBuilders[level] = nil
	stats, err := b.writer.Close()
	if err != nil {
		_ = j.opts.FS.Remove(b.path)
		return err
	}
	j.finishedShadows = append(j.finishedShadows, &ShadowFileMeta{
		FileNum:    b.fileNum,
		Level:      b.level,
		FileSize:   stats.FileLen,
		EntryCount: stats.EntryCount,
		Smallest:   stats.SmallestKey,
		Largest:    stats.LargestKey,
	})
	return nil
}

// finishShadowBuilders finalizes every still-open shadow builder at the end
// of the scan.
func (j *BlobGCJob) finishShadowBuilders() error {
	for level, b := range j.shadowBuilders {
		if b == nil {
			continue
		}
		if err := j.finishShadowBuilder(level); err != nil {
			return err
		}
	}
	return nil
}
