// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"

	"v.io/x/lib/timing"
	"v.io/x/lib/vlog"
)

// worker holds one worker goroutine's state. sleeping is read by
// WaitUntilAllWorkersAsleep and is true for exactly the duration this
// worker spends blocked inside fetchTask's waits. timer traces the most
// recently executed callbacks for diagnostics.
type worker struct {
	id       int
	sleeping bool
	timer    timing.Timer
}

// executionTimings returns the timing.Interval tree of the callbacks this
// worker has run so far, or nil if none has run yet.
func (w *worker) executionTimings() timing.Interval {
	if w.timer == nil {
		return nil
	}
	return w.timer.Root()
}

// runWorker is the body of one worker goroutine: it repeatedly fetches a
// task and runs it, until fetchTask signals shutdown.
func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()
	var last *Task
	for {
		task, ok := s.fetchTask(w, last)
		if !ok {
			return
		}
		s.runTask(w, task)
		last = task
	}
}

// fetchTask selects the next task for w to run, under s.mu:
//
//  1. Re-queue or erase the just-completed task (last), if any.
//  2. Wait for a non-empty queue or shutdown.
//  3. Return (nil, false) if the scheduler has left STARTED.
//  4. Wait for the queue head to become due, or shutdown.
//  5. Return (nil, false) if the scheduler has left STARTED.
//  6. Pop the head; if cancelled, erase it and go to 2; else return it.
func (s *Scheduler) fetchTask(w *worker, last *Task) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last != nil {
		s.requeueOrRetire(last)
	}

	for {
		w.sleeping = true
		s.cond.Broadcast()
		await(s.cond, func() bool {
			return s.queue.Len() > 0 || s.state > STARTED
		})
		w.sleeping = false

		if s.state > STARTED {
			return nil, false
		}

		w.sleeping = true
		s.cond.Broadcast()
		s.clock.AwaitWithDeadline(s.cond, func() bool {
			return s.state > STARTED || s.headIsDueNow()
		}, s.headDeadline)
		w.sleeping = false
		s.eventDue = s.headIsDueNow()
		s.cond.Broadcast()

		if s.state > STARTED {
			return nil, false
		}
		if !s.eventDue {
			// Spurious wakeup, or the head changed but isn't due yet:
			// recheck from the top.
			continue
		}

		task := s.queue.popMin()
		s.recomputeEventDue()
		if task.cancelled {
			s.reg.remove(task.handle)
			s.cond.Broadcast()
			continue
		}
		return task, true
	}
}

// requeueOrRetire disposes of a just-completed task: a non-cancelled
// periodic task is re-armed with its next due time and pushed back onto
// the queue; anything else is erased from the registry. Requires s.mu
// held.
func (s *Scheduler) requeueOrRetire(t *Task) {
	if !t.cancelled && t.periodic() {
		t.dueTime = t.nextDueTime(s.clock.Now())
		s.queue.push(t)
	} else {
		s.reg.remove(t.handle)
	}
	s.recomputeEventDue()
	s.cond.Broadcast()
}

// runTask invokes task's callback outside the scheduler mutex. A panic
// in the callback is recovered, logged, and treated the same way a
// cancellation is: the task is not re-armed even if periodic, and the
// worker stays alive to fetch the next task.
func (s *Scheduler) runTask(w *worker, task *Task) {
	if w.timer == nil {
		w.timer = timing.NewFullTimer("worker")
	}
	w.timer.Push(fmt.Sprintf("task:%d", task.handle))
	defer w.timer.Pop()

	defer func() {
		if r := recover(); r != nil {
			vlog.Errorf("sched: task %d panicked: %v", task.handle, r)
			s.mu.Lock()
			task.cancelled = true
			s.mu.Unlock()
		}
	}()
	task.callback()
}
