// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"encoding/binary"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/cockroachdb/errors"
)

var errWriterClosed = errors.New("blobfile: writer closed")

// FileWriterOptions are used to configure the FileWriter.
type FileWriterOptions struct {
	Compression Compression
}

func (o *FileWriterOptions) ensureDefaults() {
	if o.Compression == DefaultCompression {
		o.Compression = SnappyCompression
	}
}

// FileWriterStats aggregates statistics about a blob file written by a
// FileWriter.
type FileWriterStats struct {
	EntryCount             uint32
	FileLen                uint64
	UncompressedValueBytes uint64
	// LiveDataSize is the total on-disk size of the records written. Every
	// record of a freshly written file is live.
	LiveDataSize uint64
	SmallestKey  []byte
	LargestKey   []byte
}

// A FileWriter writes a blob file record by record. Records must be added in
// ascending key order. The FileWriter closes the underlying file but never
// deletes it; use Close to write the footer, sync and close, or Abort to
// close a partially written file without a footer.
type FileWriter struct {
	fileNum base.DiskFileNum
	f       vfs.File
	err     error
	closed  bool

	compression Compression
	off         uint64
	entryCount  uint32
	smallest    []byte
	largest     []byte

	stats FileWriterStats

	recordBuf []byte
	valueBuf  []byte
}

// NewFileWriter constructs a FileWriter writing to f.
func NewFileWriter(fileNum base.DiskFileNum, f vfs.File, opts FileWriterOptions) *FileWriter {
	opts.ensureDefaults()
	return &FileWriter{
		fileNum:     fileNum,
		f:           f,
		compression: opts.Compression,
	}
}

// FileNum returns the file number the writer was opened with.
func (w *FileWriter) FileNum() base.DiskFileNum { return w.fileNum }

// EntryCount returns the number of records added so far.
func (w *FileWriter) EntryCount() uint32 { return w.entryCount }

// EstimatedSize returns the size of the file if it were closed now.
func (w *FileWriter) EstimatedSize() uint64 { return w.off + fileFooterLength }

// Err returns the first error encountered by the writer.
func (w *FileWriter) Err() error { return w.err }

// AddRecord appends a record and returns the handle addressing it.
func (w *FileWriter) AddRecord(key, value []byte) (Handle, error) {
	if w.err != nil {
		return Handle{}, w.err
	}
	if w.closed {
		return Handle{}, errWriterClosed
	}

	stored, compression := compressValue(w.compression, value, w.valueBuf[:0])
	if compression != NoCompression {
		w.valueBuf = stored
	}

	buf := w.recordBuf[:0]
	buf = append(buf, 0, 0, 0, 0) // checksum, filled below
	buf = append(buf, byte(compression))
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = binary.AppendUvarint(buf, uint64(len(stored)))
	buf = append(buf, key...)
	buf = append(buf, stored...)
	binary.LittleEndian.PutUint32(buf[:4], recordChecksum(buf[4:]))
	w.recordBuf = buf

	if _, err := w.f.Write(buf); err != nil {
		w.err = err
		return Handle{}, err
	}

	h := Handle{Offset: w.off, Size: uint64(len(buf)), Order: w.entryCount}
	w.off += h.Size
	w.entryCount++
	w.stats.UncompressedValueBytes += uint64(len(value))
	w.stats.LiveDataSize += h.Size
	if w.smallest == nil {
		w.smallest = append([]byte(nil), key...)
	}
	w.largest = append(w.largest[:0], key...)
	return h, nil
}

// Close writes the footer, syncs and closes the file, and returns the
// file's stats.
func (w *FileWriter) Close() (FileWriterStats, error) {
	if w.closed {
		return FileWriterStats{}, errWriterClosed
	}
	w.closed = true
	if w.err != nil {
		_ = w.f.Close()
		return FileWriterStats{}, w.err
	}
	footer := appendFooter(w.recordBuf[:0], uint64(w.entryCount))
	if _, err := w.f.Write(footer); err != nil {
		_ = w.f.Close()
		return FileWriterStats{}, err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return FileWriterStats{}, err
	}
	if err := w.f.Close(); err != nil {
		return FileWriterStats{}, err
	}
	stats := w.stats
	stats.EntryCount = w.entryCount
	stats.FileLen = w.off + fileFooterLength
	stats.SmallestKey = w.smallest
	stats.LargestKey = w.largest
	return stats, nil
}

// Abort closes the underlying file without writing a footer. The caller is
// responsible for deleting the file.
func (w *FileWriter) Abort() {
	if !w.closed {
		w.closed = true
		_ = w.f.Close()
	}
}
