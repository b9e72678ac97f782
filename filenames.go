// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"fmt"

	"github.com/basaltdb/basalt/internal/base"
	"github.com/basaltdb/basalt/vfs"
)

// blobManifestName is the name of the blob storage manifest within the blob
// directory.
const blobManifestName = "MANIFEST-BLOB"

// makeBlobFilepath returns the path of the blob file with the given number.
func makeBlobFilepath(fs vfs.FS, dirname string, fileNum base.DiskFileNum) string {
	return fs.PathJoin(dirname, fmt.Sprintf("%06d.blob", uint64(fileNum)))
}

// makeShadowFilepath returns the path of the shadow file with the given
// number and level.
func makeShadowFilepath(fs vfs.FS, dirname string, fileNum base.DiskFileNum, level int) string {
	return fs.PathJoin(dirname, fmt.Sprintf("%06d_%d.shadow", uint64(fileNum), level))
}
