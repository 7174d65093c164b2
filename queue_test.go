// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"testing"
	"time"
)

func mkTask(h Handle, due time.Time) *Task {
	return &Task{handle: h, dueTime: due, index: -1}
}

func TestTaskQueueOrdersByDueTime(t *testing.T) {
	base := time.Unix(1000, 0)
	var q taskQueue
	order := []int{5, 3, 1, 4, 2}
	for _, n := range order {
		q.push(mkTask(Handle(n), base.Add(time.Duration(n)*time.Second)))
	}
	if got, want := q.Len(), len(order); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	for want := 1; q.Len() > 0; want++ {
		got := q.popMin()
		if int(got.handle) != want {
			t.Fatalf("popMin() = task %d, want task %d", got.handle, want)
		}
	}
}

func TestTaskQueuePeekMinDoesNotRemove(t *testing.T) {
	var q taskQueue
	if got := q.peekMin(); got != nil {
		t.Fatalf("peekMin() on empty queue = %v, want nil", got)
	}
	base := time.Unix(0, 0)
	a := mkTask(1, base.Add(time.Second))
	b := mkTask(2, base.Add(2*time.Second))
	q.push(a)
	q.push(b)
	if got := q.peekMin(); got != a {
		t.Fatalf("peekMin() = task %d, want task %d", got.handle, a.handle)
	}
	if got := q.Len(); got != 2 {
		t.Fatalf("Len() after peekMin = %d, want 2", got)
	}
}

func TestTaskQueueRemoveTaskArbitraryIndex(t *testing.T) {
	base := time.Unix(0, 0)
	var q taskQueue
	tasks := make([]*Task, 0, 5)
	for i := 1; i <= 5; i++ {
		tk := mkTask(Handle(i), base.Add(time.Duration(i)*time.Second))
		q.push(tk)
		tasks = append(tasks, tk)
	}
	// Remove a task from the middle of the heap and confirm the rest
	// still pop out in due-time order.
	mid := tasks[2]
	q.removeTask(mid)
	if mid.index != -1 {
		t.Errorf("removed task's index = %d, want -1", mid.index)
	}

	var got []Handle
	for q.Len() > 0 {
		got = append(got, q.popMin().handle)
	}
	want := []Handle{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("pop order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestTaskNextDueTimeSkipsMissedPeriods(t *testing.T) {
	due := time.Unix(0, 0)
	tk := &Task{dueTime: due, period: 5 * time.Second}

	// Ran right on time: next occurrence is exactly one period later.
	if got, want := tk.nextDueTime(due), due.Add(5*time.Second); !got.Equal(want) {
		t.Errorf("nextDueTime(on-time) = %v, want %v", got, want)
	}

	// Ran 12s late (overran by more than two periods): the next due time
	// skips the missed occurrences rather than firing a backlog, landing
	// on the next period boundary strictly after now.
	late := due.Add(12 * time.Second)
	got := tk.nextDueTime(late)
	want := due.Add(15 * time.Second)
	if !got.Equal(want) {
		t.Errorf("nextDueTime(late) = %v, want %v", got, want)
	}
	if !got.After(late) {
		t.Errorf("nextDueTime(late) = %v, want strictly after %v", got, late)
	}
}
