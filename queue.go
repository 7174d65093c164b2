// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "container/heap"

// taskQueue is a min-heap of *Task ordered by due time, the earliest due
// time at the root. It implements heap.Interface directly, following the
// standard library's documented priority-queue idiom (and the same shape
// as the deadline-ordered priQueue in v.io/x/lib/nsync's wait example):
// each element tracks its own index so heap.Fix/heap.Remove can operate
// on an arbitrary element, not just the root.
//
// Ties in due time break arbitrarily; this implementation does not
// attempt to make any particular tie-break observable.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].dueTime.Before(q[j].dueTime)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// push inserts t into the queue.
func (q *taskQueue) push(t *Task) {
	heap.Push(q, t)
}

// popMin removes and returns the task with the earliest due time. The
// caller must check q.Len() != 0 first.
func (q *taskQueue) popMin() *Task {
	return heap.Pop(q).(*Task)
}

// peekMin returns the task with the earliest due time without removing
// it, or nil if the queue is empty.
func (q taskQueue) peekMin() *Task {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// removeTask removes t from the queue given its current index.
// heap.Remove does the sift-then-pop internally, so there is no need to
// fake an earlier due time to float the task to the root first.
func (q *taskQueue) removeTask(t *Task) {
	heap.Remove(q, t.index)
}
