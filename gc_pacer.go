// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package basalt

import (
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// gcPacer rations the bytes a GC scan reads from blob files so that
// background GC cannot monopolize disk bandwidth. One token is one byte.
type gcPacer struct {
	tb tokenbucket.TokenBucket
}

func newGCPacer(bytesPerSec int64) *gcPacer {
	p := &gcPacer{}
	p.tb.Init(tokenbucket.TokensPerSecond(bytesPerSec), tokenbucket.Tokens(bytesPerSec))
	return p
}

// wait blocks until n bytes of read budget are available.
func (p *gcPacer) wait(n uint64) {
	for {
		ok, d := p.tb.TryToFulfill(tokenbucket.Tokens(n))
		if ok {
			return
		}
		time.Sleep(d)
	}
}
