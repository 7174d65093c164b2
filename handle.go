// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync/atomic"

// Handle identifies a task scheduled on a particular Scheduler.  The zero
// Handle is never issued by a Scheduler and is reserved to mean "invalid".
type Handle uint64

// Valid returns whether h was actually issued by a Scheduler.
func (h Handle) Valid() bool {
	return h != 0
}

// sequence is a monotonically increasing generator of Handles.  Its zero
// value is ready to use and yields 1, 2, 3, ... ; 0 is never produced, so
// it remains available as the sentinel "invalid" value.
type sequence struct {
	next uint64
}

// newHandle returns the next Handle in the sequence.  It is safe for
// concurrent use.
func (s *sequence) newHandle() Handle {
	return Handle(atomic.AddUint64(&s.next, 1))
}
