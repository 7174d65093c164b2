// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"v.io/x/lib/nsync"
	"v.io/x/lib/vlog"
)

// State is a snapshot of a Scheduler's position in its lifecycle.
type State int32

const (
	// IDLE is the initial state: no workers are running.
	IDLE State = iota
	// STARTED: workers are running and fetching tasks.
	STARTED
	// STOPPING: Stop has been called; workers are being woken and joined.
	STOPPING
	// STOPPED is the terminal state.
	STOPPED
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case STARTED:
		return "STARTED"
	case STOPPING:
		return "STOPPING"
	case STOPPED:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrCancelled is returned by WaitUntilAllWorkersAsleep when the scheduler
// leaves STARTED before quiescence could be observed.
var ErrCancelled = errors.New("sched: scheduler left STARTED before quiescence was observed")

// Options configures a new Scheduler.
type Options struct {
	// NumWorkers is the number of worker goroutines to run. It must be
	// at least 1; NewScheduler panics if it is zero, rather than guess a
	// pool size the caller didn't choose.
	NumWorkers uint16

	// Clock is the time source used for all due-time comparisons and
	// timed waits. Defaults to RealClock.
	Clock Clock

	// StartNow, if true, causes NewScheduler to call Start before
	// returning.
	StartNow bool
}

// Scheduler coordinates a priority queue of due-time-tagged tasks and a
// pool of worker goroutines that execute them.
//
// Exactly one mutex guards the scheduler's mutable state: the registry,
// queue, event-due flag, lifecycle state, and workers. That mutex is a
// v.io/x/lib/nsync.Mu, which the nsync package documents as interoperable
// with sync.Cond; Scheduler pairs it with a *sync.Cond for exactly that
// reason, so the worker loop's waits are built on nsync's
// condition-capable mutex rather than a bespoke one.
type Scheduler struct {
	clock Clock

	mu   nsync.Mu
	cond *sync.Cond

	seq      sequence
	reg      *registry
	queue    taskQueue
	eventDue bool
	state    State
	workers  []*worker
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler per opts. It panics if
// opts.NumWorkers == 0: that is a programmer error, not a recoverable
// condition.
func NewScheduler(opts Options) *Scheduler {
	if opts.NumWorkers == 0 {
		panic("sched: Options.NumWorkers must be at least 1")
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock
	}
	s := &Scheduler{
		clock: clock,
		reg:   newRegistry(),
	}
	s.cond = sync.NewCond(&s.mu)
	s.workers = make([]*worker, opts.NumWorkers)
	for i := range s.workers {
		s.workers[i] = &worker{id: i}
	}
	if opts.StartNow {
		s.Start()
	}
	return s
}

// State returns a snapshot of the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of tasks currently known to the scheduler,
// whether queued or in flight.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.len()
}

// Start transitions the scheduler from IDLE to STARTED, spawning
// NumWorkers worker goroutines. Start is idempotent: calling it again
// once STARTED (or later) is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state != IDLE {
		s.mu.Unlock()
		return
	}
	s.state = STARTED
	workers := s.workers
	s.mu.Unlock()

	vlog.VI(1).Infof("sched: starting %d workers", len(workers))
	for _, w := range workers {
		s.wg.Add(1)
		go s.runWorker(w)
	}
}

// Stop transitions the scheduler to STOPPED, waking and joining all
// workers, and discarding the queue and registry. Concurrent Stop calls
// block until the first one finishes; calling Stop before Start
// transitions directly from IDLE to STOPPED.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case STOPPED:
		s.mu.Unlock()
		return
	case STOPPING:
		// Another goroutine is already stopping; wait for it.
		for s.state == STOPPING {
			s.cond.Wait()
		}
		s.mu.Unlock()
		return
	case IDLE:
		s.state = STOPPED
		s.mu.Unlock()
		return
	}
	// STARTED: we are the one to drive the transition.
	s.state = STOPPING
	s.cond.Broadcast()
	s.mu.Unlock()

	vlog.VI(1).Infof("sched: stopping")
	s.wg.Wait()

	s.mu.Lock()
	s.reg = newRegistry()
	s.queue = nil
	s.eventDue = false
	s.state = STOPPED
	s.cond.Broadcast()
	s.mu.Unlock()
	vlog.VI(1).Infof("sched: stopped")
}

// recomputeEventDue recomputes the cached event-due flag: true iff the
// queue's head exists, is not cancelled, and is due now. Cancelled heads
// never occur here in practice (cancellation removes the task from the
// queue outright), but the check keeps the flag's definition exact.
// Requires s.mu held.
//
// This cache is refreshed at mutation points (scheduling, cancellation,
// re-arming, popping the head) and right after fetchTask's bounded wait
// returns; in between, it goes stale the instant the clock
// advances past the head's due time with no other mutation occurring,
// which is exactly what happens while a worker is parked in
// Clock.AwaitWithDeadline. headIsDueNow, not this field, is what readers
// needing a current answer must use.
func (s *Scheduler) recomputeEventDue() {
	s.eventDue = s.headIsDueNow()
}

// headIsDueNow reports, freshly, whether the queue's head exists, is not
// cancelled, and is due at the clock's current time. Unlike the eventDue
// field, this is always current: it is what fetchTask's bounded wait
// polls, since that wait can be woken purely by the clock advancing,
// with no queue or registry mutation to refresh a cached flag. Requires
// s.mu held.
func (s *Scheduler) headIsDueNow() bool {
	head := s.queue.peekMin()
	return head != nil && !head.cancelled && !head.dueTime.After(s.clock.Now())
}

// headDeadline returns the current queue head's due time, or farFuture
// if the queue is empty. Requires s.mu held. This is passed to
// Clock.AwaitWithDeadline as a function so it tracks queue mutations
// live, rather than a value frozen at wait-start.
func (s *Scheduler) headDeadline() time.Time {
	if head := s.queue.peekMin(); head != nil {
		return head.dueTime
	}
	return farFuture
}

// scheduleTask allocates, registers, and queues a new task. Requires the
// scheduler is not holding s.mu on entry (it acquires it itself).
func (s *Scheduler) scheduleTask(cb Callback, due time.Time, period time.Duration) Handle {
	s.mu.Lock()
	h := s.seq.newHandle()
	t := &Task{
		handle:   h,
		callback: cb,
		dueTime:  due,
		period:   period,
		index:    -1,
	}
	s.reg.put(t)
	s.queue.push(t)
	s.recomputeEventDue()
	s.cond.Broadcast()
	s.mu.Unlock()
	return h
}

// ScheduleNow schedules cb to run as soon as a worker is available.
func (s *Scheduler) ScheduleNow(cb Callback) Handle {
	return s.scheduleTask(cb, s.clock.Now(), 0)
}

// ScheduleAt schedules cb to run at (or after) t.
func (s *Scheduler) ScheduleAt(cb Callback, t time.Time) Handle {
	return s.scheduleTask(cb, t, 0)
}

// ScheduleIn schedules cb to run after delay has elapsed.
func (s *Scheduler) ScheduleIn(cb Callback, delay time.Duration) Handle {
	return s.scheduleTask(cb, s.clock.Now().Add(delay), 0)
}

// ScheduleRecurring schedules cb to run immediately, and then every
// period thereafter.
func (s *Scheduler) ScheduleRecurring(cb Callback, period time.Duration) Handle {
	return s.scheduleTask(cb, s.clock.Now(), period)
}

// ScheduleRecurringAt schedules cb to first run at t, and then every
// period thereafter.
func (s *Scheduler) ScheduleRecurringAt(cb Callback, t time.Time, period time.Duration) Handle {
	return s.scheduleTask(cb, t, period)
}

// ScheduleRecurringIn schedules cb to first run after delay, and then
// every period thereafter.
func (s *Scheduler) ScheduleRecurringIn(cb Callback, delay, period time.Duration) Handle {
	return s.scheduleTask(cb, s.clock.Now().Add(delay), period)
}

// Cancel removes the task identified by h from the queue if it has not
// yet started executing, and reports whether it did so. If the task is
// already executing, Cancel marks it so a periodic task is not re-armed,
// and returns false. Cancel of an unknown or completed handle returns
// false. Cancel never blocks.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.reg.get(h)
	if !ok {
		return false
	}
	t.cancelled = true
	if t.index < 0 {
		// Currently executing: the worker will see cancelled and drop
		// it instead of re-arming, but it has already started.
		return false
	}
	s.queue.removeTask(t)
	s.reg.remove(h)
	s.recomputeEventDue()
	return true
}

// BlockingCancel is like Cancel, but if the task is currently executing
// it waits for that execution to finish before returning. The returned
// bool still reports whether the queued entry was removed (false if the
// task was already executing when BlockingCancel was called).
func (s *Scheduler) BlockingCancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.reg.get(h)
	if !ok {
		return false
	}
	t.cancelled = true
	if t.index < 0 {
		for {
			if _, stillPresent := s.reg.get(h); !stillPresent {
				return false
			}
			s.cond.Wait()
		}
	}
	s.queue.removeTask(t)
	s.reg.remove(h)
	s.recomputeEventDue()
	return true
}

// WaitUntilAllWorkersAsleep blocks until every worker is parked inside
// fetchTask's wait and no task is due. It is intended for use with a
// MockClock in tests: with RealClock, due tasks arrive continuously as
// real time passes, so quiescence is not a stable observation. It
// returns ErrCancelled if the scheduler leaves STARTED before quiescence
// is observed.
func (s *Scheduler) WaitUntilAllWorkersAsleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.state != STARTED {
			return ErrCancelled
		}
		if s.allAsleepLocked() {
			return nil
		}
		s.cond.Wait()
	}
}

// allAsleepLocked reports whether every worker is parked in fetchTask and
// nothing is due. The head check must be the live one: right after the
// clock advances past the head's due time, the cached eventDue flag is
// still false until the owning worker wakes and refreshes it, and
// trusting it here would declare quiescence with a due task still
// unexecuted. Requires s.mu held.
func (s *Scheduler) allAsleepLocked() bool {
	if s.headIsDueNow() {
		return false
	}
	for _, w := range s.workers {
		if !w.sleeping {
			return false
		}
	}
	return true
}
