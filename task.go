// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "time"

// Callback is a task body. It runs on a worker goroutine, outside the
// scheduler's mutex, and is invoked at most once per due time — periodic
// tasks get a fresh call each time they come due.
type Callback func()

// Task is the scheduler's unit of work: a callback tagged with a due time
// and, for periodic tasks, a period.
//
// index is this Task's current slot in the scheduler's priority queue.
// container/heap's documented priority-queue pattern requires each element
// to know its slot so that arbitrary-index removal is possible, which is
// what lets Cancel remove a queued task in O(log N) given only its
// Handle. index is -1 whenever the task is not in the queue, i.e. while
// it is executing on a worker, or before it is first queued.
type Task struct {
	handle   Handle
	callback Callback
	dueTime  time.Time
	period   time.Duration // zero means one-shot

	cancelled bool
	index     int
}

// Handle returns the identifier by which this task can be cancelled.
func (t *Task) Handle() Handle {
	return t.handle
}

// periodic reports whether t re-arms itself after running.
func (t *Task) periodic() bool {
	return t.period > 0
}

// nextDueTime computes the due time of the next occurrence of a periodic
// task that just finished running at wall time now: advance by whole
// periods to the first period boundary at or after now (and by at least
// one period), so an overrunning task skips missed intervals instead of
// firing a backlog.
func (t *Task) nextDueTime(now time.Time) time.Time {
	k := int64(1)
	if elapsed := now.Sub(t.dueTime); elapsed > 0 {
		periods := int64(elapsed / t.period)
		if elapsed%t.period != 0 {
			periods++
		}
		if periods > k {
			k = periods
		}
	}
	return t.dueTime.Add(time.Duration(k) * t.period)
}
