// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package blobfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
	"github.com/cespare/xxhash/v2"
)

func errUnknownCompression(c Compression) error {
	return base.CorruptionErrorf("blobfile: unknown compression %d", uint8(c))
}

// A FileReader reads a blob file. It validates the footer on open and
// provides random record access and sequential iteration. The FileReader
// owns the underlying file handle and closes it on Close.
type FileReader struct {
	f          vfs.File
	fileNum    base.DiskFileNum
	fileSize   uint64
	dataEnd    uint64
	entryCount uint64
}

// NewFileReader opens a blob file of the given size for reading.
func NewFileReader(f vfs.File, fileNum base.DiskFileNum, fileSize uint64) (*FileReader, error) {
	if fileSize < fileFooterLength {
		return nil, base.CorruptionErrorf("blobfile: file %s too small (%d bytes)", fileNum, fileSize)
	}
	var footer [fileFooterLength]byte
	if _, err := f.ReadAt(footer[:], int64(fileSize-fileFooterLength)); err != nil {
		return nil, err
	}
	if !bytes.Equal(footer[9:], []byte(fileMagic)) {
		return nil, base.CorruptionErrorf("blobfile: file %s bad magic", fileNum)
	}
	if format := FileFormat(footer[8]); format != FileFormatV1 {
		return nil, base.CorruptionErrorf("blobfile: file %s unsupported format %d", fileNum, format)
	}
	return &FileReader{
		f:          f,
		fileNum:    fileNum,
		fileSize:   fileSize,
		dataEnd:    fileSize - fileFooterLength,
		entryCount: binary.LittleEndian.Uint64(footer[:8]),
	}, nil
}

// FileNum returns the blob file's number.
func (r *FileReader) FileNum() base.DiskFileNum { return r.fileNum }

// EntryCount returns the number of records in the file.
func (r *FileReader) EntryCount() uint64 { return r.entryCount }

// ReadRecord reads the record addressed by h.
func (r *FileReader) ReadRecord(h Handle) (key, value []byte, err error) {
	if h.Offset+h.Size > r.dataEnd {
		return nil, nil, base.CorruptionErrorf(
			"blobfile: handle %s out of bounds in file %s", h, r.fileNum)
	}
	buf := make([]byte, h.Size)
	if _, err := r.f.ReadAt(buf, int64(h.Offset)); err != nil {
		return nil, nil, err
	}
	return decodeRecord(r.fileNum, buf)
}

// Close closes the underlying file.
func (r *FileReader) Close() error {
	return r.f.Close()
}

func decodeRecord(fileNum base.DiskFileNum, buf []byte) (key, value []byte, err error) {
	if len(buf) < 5 {
		return nil, nil, base.CorruptionErrorf("blobfile: truncated record in file %s", fileNum)
	}
	checksum := binary.LittleEndian.Uint32(buf[:4])
	if recordChecksum(buf[4:]) != checksum {
		return nil, nil, base.CorruptionErrorf("blobfile: checksum mismatch in file %s", fileNum)
	}
	compression := Compression(buf[4])
	rest := buf[5:]
	keyLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, nil, base.CorruptionErrorf("blobfile: corrupt record header in file %s", fileNum)
	}
	rest = rest[n:]
	valueLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, nil, base.CorruptionErrorf("blobfile: corrupt record header in file %s", fileNum)
	}
	rest = rest[n:]
	if uint64(len(rest)) != keyLen+valueLen {
		return nil, nil, base.CorruptionErrorf("blobfile: record length mismatch in file %s", fileNum)
	}
	key = rest[:keyLen]
	value, err = decompressValue(compression, rest[keyLen:], nil)
	if err != nil {
		return nil, nil, base.MarkCorruption(err)
	}
	return key, value, nil
}

// A FileIterator is a forward cursor over the records of a blob file in file
// order, which for GC output and flushed files is ascending key order. It
// reads sequentially through a buffered reader. A FileIterator owns its
// FileReader and closes it on Close.
type FileIterator struct {
	r         *FileReader
	br        *bufio.Reader
	off       uint64
	nextOrder uint32

	key    []byte
	value  []byte
	stored []byte
	handle Handle
	err    error
}

// NewIter returns an iterator over the file's records. The iterator takes
// ownership of the reader.
func (r *FileReader) NewIter() *FileIterator {
	return &FileIterator{r: r}
}

// FileNum returns the number of the file being iterated.
func (i *FileIterator) FileNum() base.DiskFileNum { return i.r.fileNum }

// First positions the iterator at the first record. It returns true if a
// record is available.
func (i *FileIterator) First() bool {
	i.off = 0
	i.nextOrder = 0
	i.err = nil
	i.br = bufio.NewReaderSize(
		io.NewSectionReader(i.r.f, 0, int64(i.r.dataEnd)), 64<<10)
	return i.step()
}

// Next advances to the next record. It returns true if a record is
// available.
func (i *FileIterator) Next() bool {
	if i.br == nil || i.err != nil {
		return false
	}
	return i.step()
}

// Key returns the current record's user key. The returned slice is only
// valid until the next call to First or Next.
func (i *FileIterator) Key() []byte { return i.key }

// Value returns the current record's value. The returned slice is only
// valid until the next call to First or Next.
func (i *FileIterator) Value() []byte { return i.value }

// Handle returns the handle addressing the current record.
func (i *FileIterator) Handle() Handle { return i.handle }

// Error returns the first error encountered by the iterator. Exhausting the
// file is not an error.
func (i *FileIterator) Error() error { return i.err }

// Close releases the iterator and its underlying reader.
func (i *FileIterator) Close() error {
	i.br = nil
	return i.r.Close()
}

func (i *FileIterator) step() bool {
	if i.off >= i.r.dataEnd {
		return false
	}
	digest := xxhash.New()

	var checksumBuf [4]byte
	if _, err := io.ReadFull(i.br, checksumBuf[:]); err != nil {
		i.err = base.CorruptionErrorf("blobfile: truncated record in file %s", i.r.fileNum)
		return false
	}
	checksum := binary.LittleEndian.Uint32(checksumBuf[:])

	compressionByte, err := i.br.ReadByte()
	if err != nil {
		i.err = base.CorruptionErrorf("blobfile: truncated record in file %s", i.r.fileNum)
		return false
	}
	_, _ = digest.Write([]byte{compressionByte})

	keyLen, n1, err := readUvarint(i.br, digest)
	if err != nil {
		i.err = err
		return false
	}
	valueLen, n2, err := readUvarint(i.br, digest)
	if err != nil {
		i.err = err
		return false
	}

	i.key = grow(i.key, int(keyLen))
	if _, err := io.ReadFull(i.br, i.key); err != nil {
		i.err = base.CorruptionErrorf("blobfile: truncated record in file %s", i.r.fileNum)
		return false
	}
	_, _ = digest.Write(i.key)

	i.stored = grow(i.stored, int(valueLen))
	if _, err := io.ReadFull(i.br, i.stored); err != nil {
		i.err = base.CorruptionErrorf("blobfile: truncated record in file %s", i.r.fileNum)
		return false
	}
	_, _ = digest.Write(i.stored)

	if uint32(digest.Sum64()) != checksum {
		i.err = base.CorruptionErrorf("blobfile: checksum mismatch in file %s", i.r.fileNum)
		return false
	}

	i.value, err = decompressValue(Compression(compressionByte), i.stored, i.value)
	if err != nil {
		i.err = base.MarkCorruption(err)
		return false
	}

	size := uint64(4+1+n1+n2) + keyLen + valueLen
	i.handle = Handle{Offset: i.off, Size: size, Order: i.nextOrder}
	i.off += size
	i.nextOrder++
	return true
}

// readUvarint reads a uvarint byte by byte, feeding the consumed bytes to
// the checksum digest, and returns the value and the number of bytes read.
func readUvarint(br *bufio.Reader, digest *xxhash.Digest) (uint64, int, error) {
	var v uint64
	var shift uint
	for n := 1; ; n++ {
		b, err := br.ReadByte()
		if err != nil {
			return 0, 0, base.CorruptionErrorf("blobfile: truncated varint")
		}
		_, _ = digest.Write([]byte{b})
		if b < 0x80 {
			if n > binary.MaxVarintLen64 || (n == binary.MaxVarintLen64 && b > 1) {
				return 0, 0, base.CorruptionErrorf("blobfile: varint overflow")
			}
			return v | uint64(b)<<shift, n, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
