// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package scheduler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/picket/pkg/trigger"
)

func intervalTrigger(seconds int) *trigger.Trigger {
	return &trigger.Trigger{Interval: &trigger.Interval{Seconds: seconds}}
}

func TestAddValidation(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Add("a", intervalTrigger(10), func() {}))
	assert.Error(t, s.Add("a", intervalTrigger(10), func() {}), "duplicate name")
	assert.Error(t, s.Add("b", &trigger.Trigger{}, func() {}), "invalid trigger")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
}

func TestRemoveIdempotent(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Add("a", intervalTrigger(10), func() {}))
	s.Remove("a")
	assert.False(t, s.Contains("a"))
	s.Remove("a")
	s.Remove("never-added")
}

func TestAddAfterStop(t *testing.T) {
	s := New()
	s.Stop()
	assert.Error(t, s.Add("a", intervalTrigger(10), func() {}))
}

func TestNextRunUnknown(t *testing.T) {
	s := New()
	defer s.Stop()
	_, ok := s.NextRun("nope")
	assert.False(t, ok)
}

func TestIntervalFiring(t *testing.T) {
	mock := clock.NewMock()
	s := NewWithClock(mock)
	fired := make(chan time.Time, 16)
	require.NoError(t, s.Add("tick", intervalTrigger(10), func() {
		fired <- mock.Now()
	}))
	s.Start()
	defer s.Stop()

	// let the job goroutine arm its first timer
	require.Eventually(t, func() bool {
		_, ok := s.NextRun("tick")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	first, _ := s.NextRun("tick")

	mock.Add(10 * time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	// wait for the job to re-arm before advancing again
	require.Eventually(t, func() bool {
		next, ok := s.NextRun("tick")
		return ok && next.After(first)
	}, 2*time.Second, 10*time.Millisecond)

	mock.Add(10 * time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire a second time")
	}
}

func TestRemoveStopsFiring(t *testing.T) {
	mock := clock.NewMock()
	s := NewWithClock(mock)
	fired := make(chan struct{}, 16)
	require.NoError(t, s.Add("tick", intervalTrigger(10), func() {
		fired <- struct{}{}
	}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, ok := s.NextRun("tick")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	s.Remove("tick")
	mock.Add(time.Minute)
	select {
	case <-fired:
		t.Fatal("removed job fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopWaitsForCallback(t *testing.T) {
	mock := clock.NewMock()
	s := NewWithClock(mock)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, s.Add("slow", intervalTrigger(10), func() {
		close(started)
		<-release
	}))
	s.Start()

	require.Eventually(t, func() bool {
		_, ok := s.NextRun("slow")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	mock.Add(10 * time.Second)
	<-started

	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Stop returned while a callback was running")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the callback finished")
	}
}

func TestEndDateUnschedules(t *testing.T) {
	mock := clock.NewMock()
	// mock clock starts at the unix epoch, well past this window
	trig := &trigger.Trigger{Interval: &trigger.Interval{
		Seconds: 10,
		EndDate: "01 Jan 1960 00:00 UTC",
	}}
	s := NewWithClock(mock)
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Add("past", trig, func() { fired <- struct{}{} }))
	s.Start()
	defer s.Stop()

	mock.Add(time.Minute)
	select {
	case <-fired:
		t.Fatal("job fired past its end date")
	case <-time.After(100 * time.Millisecond):
	}
}
