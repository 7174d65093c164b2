// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"
)

// MockClock is a Clock whose notion of "now" is a stored virtual time,
// advanced only by explicit calls to AdvanceTime or SetTime. It exists so
// that scheduler tests can exercise due-time and preemption logic without
// depending on real elapsed wall-clock time.
//
// The zero MockClock is ready to use; its virtual time starts at the Unix
// epoch, matching the nsync package's convention of zero-valued,
// ready-to-use synchronization primitives (nsync.Mu, nsync.CV).
//
// MockClock is safe for concurrent use. Internally it keeps a set of
// listeners — goroutines currently parked in AwaitWithDeadline or
// SleepUntil — and, whenever virtual time advances, wakes all of them so
// each can re-examine its own predicate and deadline against the new
// time. Standard timed waits arm against the OS clock and cannot be
// re-armed when virtual time moves, so MockClock pushes the re-arming
// itself, as a notification, instead.
type MockClock struct {
	mu        sync.Mutex
	now       time.Time
	listeners map[int]*sync.Cond
	nextID    int
}

// NewMockClock returns a MockClock whose virtual time starts at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the clock's current virtual time.
func (mc *MockClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.zeroed()
}

// zeroed returns mc.now, defaulting to the Unix epoch for a zero-valued
// MockClock. Requires mc.mu held.
func (mc *MockClock) zeroed() time.Time {
	if mc.now.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return mc.now
}

// SleepFor blocks the calling goroutine until the virtual clock has
// advanced by at least d.
func (mc *MockClock) SleepFor(d time.Duration) {
	mc.SleepUntil(mc.Now().Add(d))
}

// SleepUntil blocks the calling goroutine until the virtual clock reaches
// t. Unlike AwaitWithDeadline, this has no associated predicate or mutex;
// it is implemented with a private condition variable woken by
// AdvanceTime/SetTime.
func (mc *MockClock) SleepUntil(t time.Time) {
	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	mu.Lock()
	defer mu.Unlock()
	id := mc.addListener(cond)
	defer mc.removeListener(id)
	for mc.Now().Before(t) {
		cond.Wait()
	}
}

// AdvanceTime moves the virtual clock forward by delta and wakes any
// waiters whose deadline may now have passed. delta must not be negative.
func (mc *MockClock) AdvanceTime(delta time.Duration) {
	if delta < 0 {
		panic("sched: MockClock.AdvanceTime called with a negative duration")
	}
	mc.mu.Lock()
	next := mc.zeroed().Add(delta)
	mc.now = next
	mc.mu.Unlock()
	mc.notifyListeners()
}

// SetTime sets the virtual clock to t, which must not precede the current
// virtual time. It panics otherwise: going backwards would let a
// previously-satisfied deadline become unsatisfied again, which
// AwaitWithDeadline's callers never expect.
func (mc *MockClock) SetTime(t time.Time) {
	mc.mu.Lock()
	if t.Before(mc.zeroed()) {
		mc.mu.Unlock()
		panic("sched: MockClock.SetTime called with a time before the current virtual time")
	}
	mc.now = t
	mc.mu.Unlock()
	mc.notifyListeners()
}

// AwaitWithDeadline implements Clock.AwaitWithDeadline against virtual
// time: the caller holds cond.L on entry, and it is released for the
// duration of the wait. It registers a single listener for the whole
// call and re-evaluates both predicate and deadline on every wakeup, so
// it is unaffected by deadline changing between wakeups.
func (mc *MockClock) AwaitWithDeadline(cond *sync.Cond, predicate func() bool, deadline func() time.Time) bool {
	id := mc.addListener(cond)
	defer mc.removeListener(id)
	for {
		if predicate() {
			return true
		}
		d := deadline()
		if d.Before(farFuture) && !mc.Now().Before(d) {
			return predicate()
		}
		cond.Wait()
	}
}

// addListener registers cond to be broadcast on whenever virtual time
// advances, and returns a token to later unregister it with
// removeListener.
func (mc *MockClock) addListener(cond *sync.Cond) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.listeners == nil {
		mc.listeners = make(map[int]*sync.Cond)
	}
	mc.nextID++
	id := mc.nextID
	mc.listeners[id] = cond
	return id
}

func (mc *MockClock) removeListener(id int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.listeners, id)
}

// notifyListeners broadcasts every registered listener's condition
// variable, holding each listener's own lock (cond.L) around the
// broadcast.  Taking cond.L serializes the notification with the
// listener's check-then-Wait sequence: the listener holds cond.L from
// the moment it examines the clock until it is parked inside cond.Wait,
// so the broadcast lands either before the check (which then sees the
// new time) or after the listener is parked — never in between, where
// it would be lost.
//
// mc.mu must not be held while broadcasting: waiters call back into the
// clock (Now, removeListener) while holding cond.L, so holding both
// locks here would invert that order and deadlock.
func (mc *MockClock) notifyListeners() {
	mc.mu.Lock()
	conds := make([]*sync.Cond, 0, len(mc.listeners))
	for _, c := range mc.listeners {
		conds = append(conds, c)
	}
	mc.mu.Unlock()
	for _, c := range conds {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	}
}
