// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command schedutil is a small demonstration driver for v.io/x/sched.
// It schedules a one-shot task and a periodic task against a real
// scheduler and reports how many times each fired before it was told to
// stop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"v.io/x/lib/cmd/flagvar"
	"v.io/x/lib/cmdline"

	"v.io/x/sched"
)

var flags struct {
	Workers uint          `cmdline:"workers,2,number of scheduler worker goroutines"`
	After   time.Duration `cmdline:"after,1s,delay before the one-shot task runs"`
	Every   time.Duration `cmdline:"every,500ms,period of the recurring task"`
	RunFor  time.Duration `cmdline:"for,5s,how long to run before stopping"`
}

var cmdSchedUtil = &cmdline.Command{
	Name:   "schedutil",
	Short:  "Run a demonstration task scheduler",
	Long:   "Command schedutil runs a task scheduler with a one-shot and a periodic task, then reports how many times each fired.",
	Runner: cmdline.RunnerFunc(runSchedUtil),
}

func main() {
	cmdline.Main(cmdSchedUtil)
}

func runSchedUtil(env *cmdline.Env, _ []string) error {
	if flags.Workers == 0 || flags.Workers > 1<<16-1 {
		return env.UsageErrorf("--workers must be between 1 and %d", 1<<16-1)
	}
	s := sched.NewScheduler(sched.Options{
		NumWorkers: uint16(flags.Workers),
		StartNow:   true,
	})
	defer s.Stop()

	var onceCount, periodicCount int64
	s.ScheduleIn(func() {
		atomic.AddInt64(&onceCount, 1)
		fmt.Fprintln(env.Stdout, "one-shot task ran")
	}, flags.After)
	s.ScheduleRecurring(func() {
		atomic.AddInt64(&periodicCount, 1)
	}, flags.Every)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-time.After(flags.RunFor):
	case <-interrupt:
	}

	fmt.Fprintf(env.Stdout, "one-shot executions: %d\n", atomic.LoadInt64(&onceCount))
	fmt.Fprintf(env.Stdout, "periodic executions: %d\n", atomic.LoadInt64(&periodicCount))
	return nil
}

func init() {
	if err := flagvar.RegisterFlagsInStruct(&cmdSchedUtil.Flags, "cmdline", &flags, nil, nil); err != nil {
		panic(err)
	}
}
