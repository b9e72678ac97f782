// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"time"

	"github.com/cockroachdb/crlib/crtime"
)

// Stopwatch measures elapsed monotonic time.
type Stopwatch struct {
	start crtime.Mono
}

// MakeStopwatch returns a running Stopwatch.
func MakeStopwatch() Stopwatch {
	return Stopwatch{start: crtime.NowMono()}
}

// Elapsed returns the time elapsed since the stopwatch was made.
func (w Stopwatch) Elapsed() time.Duration {
	return w.start.Elapsed()
}
