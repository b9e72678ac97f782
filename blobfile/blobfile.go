// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package blobfile implements the on-disk format of blob files: append-only
// files of (key, value) records addressed by a BlobIndex stored in the base
// engine.
//
// A blob file is a sequence of records followed by a fixed-size footer:
//
//	record :=
//	  checksum    uint32 (le)   xxhash64 of the remainder, truncated
//	  compression uint8
//	  key length  uvarint
//	  value length uvarint      length of the value as stored
//	  key         bytes
//	  value       bytes         compressed per the compression byte
//
//	footer :=
//	  entry count uint64 (le)
//	  format      uint8
//	  magic       8 bytes
//
// A Handle addresses a record by (offset, size, order) where size is the
// full on-disk record length and order is the record's ordinal. Records are
// written in ascending key order.
package blobfile

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// FileFormat identifies the format version of a blob file.
type FileFormat uint8

const (
	// FileFormatV1 is the first version of the blob file format.
	FileFormatV1 FileFormat = 1
)

// String implements the fmt.Stringer interface.
func (f FileFormat) String() string {
	switch f {
	case FileFormatV1:
		return "blobV1"
	default:
		return "unknown"
	}
}

const (
	fileFooterLength = 17
	fileMagic        = "\xf0\x9f\xaa\xa8bslt" // 🪨
)

// Compression identifies the per-record value compression algorithm.
type Compression uint8

const (
	// DefaultCompression selects the engine default, snappy.
	DefaultCompression Compression = 0
	// NoCompression stores values verbatim.
	NoCompression Compression = 1
	// SnappyCompression compresses values with snappy.
	SnappyCompression Compression = 2
	// ZstdCompression compresses values with zstd.
	ZstdCompression Compression = 3
)

// String implements the fmt.Stringer interface.
func (c Compression) String() string {
	switch c {
	case DefaultCompression:
		return "default"
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	})
	return zstdEnc
}

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdDec
}

func compressValue(c Compression, value, buf []byte) ([]byte, Compression) {
	switch c {
	case SnappyCompression:
		compressed := snappy.Encode(buf, value)
		if len(compressed) >= len(value) {
			return value, NoCompression
		}
		return compressed, SnappyCompression
	case ZstdCompression:
		compressed := zstdEncoder().EncodeAll(value, buf[:0])
		if len(compressed) >= len(value) {
			return value, NoCompression
		}
		return compressed, ZstdCompression
	default:
		return value, NoCompression
	}
}

func decompressValue(c Compression, stored, buf []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return stored, nil
	case SnappyCompression:
		return snappy.Decode(buf, stored)
	case ZstdCompression:
		return zstdDecoder().DecodeAll(stored, buf[:0])
	default:
		return nil, errUnknownCompression(c)
	}
}

func recordChecksum(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

func appendFooter(buf []byte, entryCount uint64) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, entryCount)
	buf = append(buf, byte(FileFormatV1))
	buf = append(buf, fileMagic...)
	return buf
}
