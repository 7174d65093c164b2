// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"
)

// A Clock is an abstract time source.  It exists so that the scheduler's
// due-time logic can be driven by a MockClock in tests, instead of by the
// wall clock.
//
// AwaitWithDeadline is the bounded condition wait at the heart of the
// scheduler: it is the Clock-pluggable generalization of the wait loop
// v.io/x/lib/nsync.CV.WaitWithDeadline performs against the real clock.
// The caller must hold the lock associated with cond (cond.L) on entry;
// AwaitWithDeadline releases it for the duration of the wait and
// reacquires it before returning, exactly as cond.Wait does.
//
// AwaitWithDeadline returns predicate() evaluated after the wait ends.
// Spurious wakeups are permitted: callers must not infer the return
// value's cause, only its value.
type Clock interface {
	// Now returns the clock's current time.
	Now() time.Time

	// SleepFor blocks the calling goroutine until d has elapsed.
	SleepFor(d time.Duration)

	// SleepUntil blocks the calling goroutine until t is reached.
	SleepUntil(t time.Time)

	// AwaitWithDeadline atomically releases cond.L and suspends the
	// calling goroutine until predicate() becomes true, Now() reaches or
	// passes deadline(), or a spurious wakeup occurs; it then reacquires
	// cond.L and returns predicate().
	//
	// deadline is a function rather than a fixed time.Time because the
	// wait must track the scheduler's current queue head rather than a
	// value captured when the wait began: the head (and hence the
	// deadline) can change while this call is blocked, as new,
	// earlier-due tasks are scheduled. deadline is re-evaluated on every
	// wakeup, under the same mutex-guarded state as predicate.
	AwaitWithDeadline(cond *sync.Cond, predicate func() bool, deadline func() time.Time) bool
}

// await is the unbounded counterpart of Clock.AwaitWithDeadline: it loops
// calling cond.Wait() until predicate() holds. It needs no Clock, since
// there is no deadline to honor.
func await(cond *sync.Cond, predicate func() bool) {
	for !predicate() {
		cond.Wait()
	}
}

// farFuture stands in for "no deadline": a Clock.AwaitWithDeadline call
// with this deadline never expires on its own, matching nsync.NoDeadline.
var farFuture = time.Unix(1<<62, 0)

// realClock implements Clock by delegating to the operating system.
type realClock struct{}

// RealClock is the Clock implementation backed by the OS wall clock and
// OS timers. It is the default Clock used by NewScheduler.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) SleepFor(d time.Duration) { time.Sleep(d) }

func (realClock) SleepUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

func (realClock) AwaitWithDeadline(cond *sync.Cond, predicate func() bool, deadline func() time.Time) bool {
	// The timer callback takes cond.L before broadcasting.  The waiter
	// holds cond.L from the moment it arms the timer until it is parked
	// inside cond.Wait, so the broadcast cannot slip into that window
	// and go unheard.
	wake := func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	}
	for {
		if predicate() {
			return true
		}
		d := deadline()
		if !d.Before(farFuture) {
			cond.Wait()
			continue
		}
		if !time.Now().Before(d) {
			return predicate()
		}
		timer := time.AfterFunc(time.Until(d), wake)
		cond.Wait()
		timer.Stop()
	}
}
