// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements a thread-pool-backed task scheduler.  Clients
// submit callbacks tagged with a due time, optionally periodic, and a
// configurable number of worker goroutines execute each callback as close
// to its due time as the underlying clock allows.
//
// The scheduler is built around a pluggable Clock: a RealClock delegates to
// the operating system, while a MockClock lets tests drive virtual time
// directly, making the due-time and preemption logic deterministically
// testable without sleeping real wall-clock time.
//
// A Scheduler moves through the states IDLE, STARTED, STOPPING and STOPPED.
// Tasks may be scheduled in any state, but only a STARTED scheduler runs
// them; tasks still queued when it stops are discarded without running.
// Cancellation is
// supported both as a non-blocking best-effort operation and as a blocking
// operation that waits for an in-flight execution to finish.
package sched
