// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats aggregates GC metrics across jobs. Counters are prometheus
// collectors so that embedding processes can export them; the micro-timer
// distributions are kept in hdr histograms for in-process inspection.
//
// A GC job accumulates its counters locally and flushes them into Stats
// exactly once, when the job is closed.
type Stats struct {
	BytesReadBlob     prometheus.Counter
	BytesReadCheck    prometheus.Counter
	BytesReadCallback prometheus.Counter
	BytesWrittenBlob  prometheus.Counter
	BytesWrittenLSM   prometheus.Counter

	KeysOverwrittenCheck     prometheus.Counter
	KeysOverwrittenCallback  prometheus.Counter
	BytesOverwrittenCheck    prometheus.Counter
	BytesOverwrittenCallback prometheus.Counter
	KeysRelocated            prometheus.Counter
	BytesRelocated           prometheus.Counter
	KeysFallback             prometheus.Counter
	BytesFallback            prometheus.Counter

	InputFiles  prometheus.Counter
	OutputFiles prometheus.Counter

	InputFileSize  prometheus.Histogram
	OutputFileSize prometheus.Histogram

	io vfs.IOCounters

	mu struct {
		sync.Mutex
		scanMicros   *hdrhistogram.Histogram
		updateMicros *hdrhistogram.Histogram
		opStats      map[base.ColumnFamilyID]*InternalOpStats
	}
}

// NewStats constructs an empty Stats.
func NewStats() *Stats {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	sizeHistogram := func(name, help string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 12),
		})
	}
	s := &Stats{
		BytesReadBlob:     counter("basalt_gc_bytes_read_blob", "Bytes read from input blob files during GC scans."),
		BytesReadCheck:    counter("basalt_gc_bytes_read_check", "Bytes read from the base engine during GC liveness checks."),
		BytesReadCallback: counter("basalt_gc_bytes_read_callback", "Bytes read from the base engine in GC write callbacks."),
		BytesWrittenBlob:  counter("basalt_gc_bytes_written_blob", "Bytes written to GC output blob files."),
		BytesWrittenLSM:   counter("basalt_gc_bytes_written_lsm", "Bytes written to the base engine by GC rewrites."),

		KeysOverwrittenCheck:     counter("basalt_gc_num_keys_overwritten_check", "Keys found stale at the GC liveness check."),
		KeysOverwrittenCallback:  counter("basalt_gc_num_keys_overwritten_callback", "Keys found stale at the GC write callback."),
		BytesOverwrittenCheck:    counter("basalt_gc_bytes_overwritten_check", "Blob bytes discarded at the GC liveness check."),
		BytesOverwrittenCallback: counter("basalt_gc_bytes_overwritten_callback", "Blob bytes discarded at the GC write callback."),
		KeysRelocated:            counter("basalt_gc_num_keys_relocated", "Keys relocated into new blob files by GC."),
		BytesRelocated:           counter("basalt_gc_bytes_relocated", "Blob bytes relocated into new blob files by GC."),
		KeysFallback:             counter("basalt_gc_num_keys_fallback", "Keys reinlined into the base engine by fallback-mode GC."),
		BytesFallback:            counter("basalt_gc_bytes_fallback", "Blob bytes reinlined into the base engine by fallback-mode GC."),

		InputFiles:  counter("basalt_gc_num_input_files", "Input blob files consumed by GC jobs."),
		OutputFiles: counter("basalt_gc_num_output_files", "Output blob files produced by GC jobs."),

		InputFileSize:  sizeHistogram("basalt_gc_input_file_size", "Sizes of GC input blob files."),
		OutputFileSize: sizeHistogram("basalt_gc_output_file_size", "Sizes of GC output blob files."),
	}
	s.mu.scanMicros = hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 2)
	s.mu.updateMicros = hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 2)
	s.mu.opStats = make(map[base.ColumnFamilyID]*InternalOpStats)
	return s
}

// Register registers all prometheus collectors with reg.
func (s *Stats) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		s.BytesReadBlob, s.BytesReadCheck, s.BytesReadCallback,
		s.BytesWrittenBlob, s.BytesWrittenLSM,
		s.KeysOverwrittenCheck, s.KeysOverwrittenCallback,
		s.BytesOverwrittenCheck, s.BytesOverwrittenCallback,
		s.KeysRelocated, s.BytesRelocated,
		s.KeysFallback, s.BytesFallback,
		s.InputFiles, s.OutputFiles,
		s.InputFileSize, s.OutputFileSize,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IOCounters returns the counters an FS wrapped with vfs.WithCounters should
// feed so that jobs can attribute filesystem I/O.
func (s *Stats) IOCounters() *vfs.IOCounters { return &s.io }

// IOBytes returns the current cumulative filesystem bytes read and written.
func (s *Stats) IOBytes() (read, written uint64) {
	return s.io.BytesRead.Load(), s.io.BytesWritten.Load()
}

func (s *Stats) recordScanDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mu.scanMicros.RecordValue(d.Microseconds())
}

func (s *Stats) recordUpdateDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mu.updateMicros.RecordValue(d.Microseconds())
}

// ScanMicrosP99 returns the 99th percentile of per-job scan durations in
// microseconds.
func (s *Stats) ScanMicrosP99() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.scanMicros.ValueAtQuantile(99)
}

// UpdateMicrosP99 returns the 99th percentile of per-job base-engine update
// durations in microseconds.
func (s *Stats) UpdateMicrosP99() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.updateMicros.ValueAtQuantile(99)
}

// InternalOpStats is the per-column-family aggregate of GC activity.
type InternalOpStats struct {
	Count          atomic.Uint64
	BytesRead      atomic.Uint64
	BytesWritten   atomic.Uint64
	IOBytesRead    atomic.Uint64
	IOBytesWritten atomic.Uint64
	InputFileNum   atomic.Uint64
	OutputFileNum  atomic.Uint64
}

// InternalOps returns the per-column-family op stats, creating them on first
// use.
func (s *Stats) InternalOps(cf base.ColumnFamilyID) *InternalOpStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	os, ok := s.mu.opStats[cf]
	if !ok {
		os = &InternalOpStats{}
		s.mu.opStats[cf] = os
	}
	return os
}
