// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package scheduler drives check callbacks from interval and cron triggers.
//
// Each job runs in its own goroutine and invokes its callback
// synchronously, so a job never re-enters itself. Missed firings coalesce
// to at most one make-up run. The job table is keyed by check name and is
// the canonical source of scheduled work.
package scheduler

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/DataDog/picket/pkg/trigger"
	"github.com/DataDog/picket/pkg/util/log"
)

// Scheduler owns the job table and the goroutines firing each job.
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	stopped bool
	wg      sync.WaitGroup
}

type job struct {
	name     string
	trig     *trigger.Trigger
	callback func()
	cancel   chan struct{}

	mu   sync.Mutex
	next time.Time
}

// New returns a scheduler on the system clock.
func New() *Scheduler {
	return NewWithClock(clock.New())
}

// NewWithClock returns a scheduler on the provided clock.
func NewWithClock(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clk:  clk,
		jobs: make(map[string]*job),
	}
}

// Add registers a job under name. The trigger must be valid and the name
// unused; callbacks begin firing once the scheduler is started.
func (s *Scheduler) Add(name string, trig *trigger.Trigger, callback func()) error {
	if err := trig.Validate(); err != nil {
		return fmt.Errorf("trigger for %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already scheduled", name)
	}
	j := &job{
		name:     name,
		trig:     trig,
		callback: callback,
		cancel:   make(chan struct{}),
	}
	s.jobs[name] = j
	if s.started {
		s.wg.Add(1)
		go s.runJob(j)
	}
	log.Debugf("Scheduled job %s: %s", name, trigger.Format(trig))
	return nil
}

// Remove unschedules the named job. Removing an unknown name is a no-op;
// an in-flight callback runs to completion.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	close(j.cancel)
	delete(s.jobs, name)
	log.Debugf("Removed job %s from schedule", name)
}

// Contains reports whether a job is scheduled under name.
func (s *Scheduler) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// NextRun returns the next planned firing of the named job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next, !j.next.IsZero()
}

// Start launches all registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(j)
	}
	log.Debugf("Scheduler started with %d jobs", len(s.jobs))
}

// Stop unschedules every job and waits for in-flight callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for name, j := range s.jobs {
		close(j.cancel)
		delete(s.jobs, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
	log.Debugf("Scheduler stopped")
}

func (s *Scheduler) runJob(j *job) {
	defer s.wg.Done()

	start, end := j.trig.Window()
	now := s.clk.Now()
	anchor := now
	if !start.IsZero() && start.After(now) {
		anchor = start
	}

	for {
		var next time.Time
		switch {
		case j.trig.Interval != nil:
			next = anchor.Add(j.trig.Interval.Period())
		case j.trig.Cron != nil:
			from := s.clk.Now()
			if !start.IsZero() && start.After(from) {
				from = start
			}
			t, ok := j.trig.Cron.Next(from)
			if !ok {
				log.Infof("No further firings for job %s", j.name)
				return
			}
			next = t
		}
		if !end.IsZero() && next.After(end) {
			log.Infof("Job %s passed end_date, unscheduling", j.name)
			return
		}
		fireAt := next
		if jit := j.trig.JitterSeconds(); jit > 0 {
			fireAt = fireAt.Add(time.Duration(rand.Float64() * float64(jit) * float64(time.Second)))
		}
		j.mu.Lock()
		j.next = fireAt
		j.mu.Unlock()

		delay := fireAt.Sub(s.clk.Now())
		if delay < 0 {
			delay = 0
		}
		timer := s.clk.Timer(delay)
		select {
		case <-j.cancel:
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case <-j.cancel:
			return
		default:
		}
		j.callback()

		if j.trig.Interval != nil {
			// keep the firing grid; realign after falling more than
			// one period behind so backlog coalesces to one make-up run
			anchor = next
			if p := j.trig.Interval.Period(); anchor.Add(p).Before(s.clk.Now()) {
				anchor = s.clk.Now()
			}
		}
	}
}
