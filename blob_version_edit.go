// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"encoding/binary"

	"github.com/basaltdb/basalt/internal/base"
)

// Tags for the versionEdit disk format.
const (
	tagColumnFamilyID  = 1
	tagNextFileNum     = 2
	tagAddedBlobFile   = 3
	tagDeletedBlobFile = 4
)

// AddedBlobFile records the publication of a blob file in a version edit.
type AddedBlobFile struct {
	FileNum      base.DiskFileNum
	FileSize     uint64
	EntryCount   uint32
	Smallest     []byte
	Largest      []byte
	LiveDataSize uint64
}

// DeletedBlobFile records the obsoletion of a blob file in a version edit.
// ObsoleteSeq is the engine sequence number at which no installed BlobIndex
// references the file any longer; snapshots older than it may still read
// the file.
type DeletedBlobFile struct {
	FileNum     base.DiskFileNum
	ObsoleteSeq base.SeqNum
}

// VersionEdit is one atomic mutation of the blob manifest.
type VersionEdit struct {
	ColumnFamilyID base.ColumnFamilyID
	NextFileNum    base.DiskFileNum
	AddedFiles     []AddedBlobFile
	DeletedFiles   []DeletedBlobFile
}

// AddBlobFile appends an added-file record.
func (e *VersionEdit) AddBlobFile(f AddedBlobFile) {
	e.AddedFiles = append(e.AddedFiles, f)
}

// DeleteBlobFile appends a deleted-file record carrying the obsolete
// sequence.
func (e *VersionEdit) DeleteBlobFile(fileNum base.DiskFileNum, obsoleteSeq base.SeqNum) {
	e.DeletedFiles = append(e.DeletedFiles, DeletedBlobFile{
		FileNum:     fileNum,
		ObsoleteSeq: obsoleteSeq,
	})
}

// Encode appends the edit's encoding to buf and returns the extended
// buffer.
func (e *VersionEdit) Encode(buf []byte) []byte {
	buf = binary.AppendUvarint(buf, tagColumnFamilyID)
	buf = binary.AppendUvarint(buf, uint64(e.ColumnFamilyID))
	if e.NextFileNum != 0 {
		buf = binary.AppendUvarint(buf, tagNextFileNum)
		buf = binary.AppendUvarint(buf, uint64(e.NextFileNum))
	}
	for _, f := range e.AddedFiles {
		buf = binary.AppendUvarint(buf, tagAddedBlobFile)
		buf = binary.AppendUvarint(buf, uint64(f.FileNum))
		buf = binary.AppendUvarint(buf, f.FileSize)
		buf = binary.AppendUvarint(buf, uint64(f.EntryCount))
		buf = appendLengthPrefixed(buf, f.Smallest)
		buf = appendLengthPrefixed(buf, f.Largest)
		buf = binary.AppendUvarint(buf, f.LiveDataSize)
	}
	for _, f := range e.DeletedFiles {
		buf = binary.AppendUvarint(buf, tagDeletedBlobFile)
		buf = binary.AppendUvarint(buf, uint64(f.FileNum))
		buf = binary.AppendUvarint(buf, uint64(f.ObsoleteSeq))
	}
	return buf
}

// Decode decodes an edit previously encoded with Encode.
func (e *VersionEdit) Decode(data []byte) error {
	d := editDecoder{data: data}
	for len(d.data) > 0 {
		tag := d.uvarint()
		switch tag {
		case tagColumnFamilyID:
			e.ColumnFamilyID = base.ColumnFamilyID(d.uvarint())
		case tagNextFileNum:
			e.NextFileNum = base.DiskFileNum(d.uvarint())
		case tagAddedBlobFile:
			var f AddedBlobFile
			f.FileNum = base.DiskFileNum(d.uvarint())
			f.FileSize = d.uvarint()
			f.EntryCount = uint32(d.uvarint())
			f.Smallest = d.bytes()
			f.Largest = d.bytes()
			f.LiveDataSize = d.uvarint()
			e.AddedFiles = append(e.AddedFiles, f)
		case tagDeletedBlobFile:
			var f DeletedBlobFile
			f.FileNum = base.DiskFileNum(d.uvarint())
			f.ObsoleteSeq = base.SeqNum(d.uvarint())
			e.DeletedFiles = append(e.DeletedFiles, f)
		default:
			return base.CorruptionErrorf("basalt: unknown version edit tag %d", tag)
		}
		if d.err != nil {
			return d.err
		}
	}
	return d.err
}

func appendLengthPrefixed(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

type editDecoder struct {
	data []byte
	err  error
}

func (d *editDecoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 {
		d.err = base.CorruptionErrorf("basalt: corrupt version edit")
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *editDecoder) bytes() []byte {
	n := d.uvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.data)) {
		d.err = base.CorruptionErrorf("basalt: corrupt version edit")
		return nil
	}
	b := append([]byte(nil), d.data[:n]...)
	d.data = d.data[n:]
	return b
}
