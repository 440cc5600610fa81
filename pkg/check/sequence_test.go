// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceAggregation(t *testing.T) {
	seq := New("all", TypeSequence, nil)
	require.NotNil(t, seq)
	seq.SetState(StatePass)
	rec := &recordAction{name: "rec", result: true}
	seq.AddAction(rec)

	// b sorts before a by priority despite insertion order
	a, _ := newScripted(t, "alpha", StateFail, StateFail)
	a.Priority = 2
	b, _ := newScripted(t, "beta", StatePass, StateFail)
	b.Priority = 1
	seq.AddSubCheck(a)
	seq.AddSubCheck(b)

	fs := seq.Update()
	assert.Equal(t, FailState("alpha"), fs)
	assert.Equal(t, []string{"FAIL"}, rec.events)
	assert.Equal(t, StateFail, a.FailState, "sub-check ran its own state machine")
	assert.Equal(t, StatePass, b.FailState)

	// membership change in an already failing sequence is a new transition
	fs = seq.Update()
	assert.Equal(t, FailState("beta,alpha"), fs, "failing names in priority order")
	assert.Equal(t, []string{"FAIL", "FAIL"}, rec.events)

	// same membership does not notify again
	a.prober.(*scriptProbe).verdicts = []FailState{StateFail, StateFail, StateFail}
	a.prober.(*scriptProbe).calls = 0
	b.prober.(*scriptProbe).verdicts = []FailState{StateFail}
	b.prober.(*scriptProbe).calls = 0
	seq.Update()
	assert.Equal(t, []string{"FAIL", "FAIL"}, rec.events)
}

func TestSequenceRecovery(t *testing.T) {
	seq := New("all", TypeSequence, nil)
	seq.SetState(StatePass)
	rec := &recordAction{name: "rec", result: true}
	seq.AddAction(rec)
	a, _ := newScripted(t, "alpha", StateFail, StatePass)
	seq.AddSubCheck(a)

	seq.Update()
	assert.Equal(t, FailState("alpha"), seq.FailState)
	seq.Update()
	assert.Equal(t, StatePass, seq.FailState)
	assert.Equal(t, []string{"FAIL", "PASS"}, rec.events)
}

func TestSequenceLog(t *testing.T) {
	seq := New("all", TypeSequence, nil)
	seq.SetState(StatePass)
	a, _ := newScripted(t, "alpha", StateFail)
	b, _ := newScripted(t, "beta")
	seq.AddSubCheck(a)
	seq.AddSubCheck(b)

	seq.Update()
	assert.Contains(t, seq.Log, "alpha ("+a.CheckType+"): FAIL")
	assert.Contains(t, seq.Log, "beta ("+b.CheckType+"): PASS")
	assert.Contains(t, seq.Log, "probe attempt 1 failed", "failing sub-check log is inlined")
}

func TestSequenceSummary(t *testing.T) {
	seq := New("all", TypeSequence, nil)
	seq.SetState(FailState("alpha,beta"))
	summary := seq.GetSummary()
	assert.Contains(t, summary, "alpha ⚠️")
	assert.Contains(t, summary, "beta ⚠️")

	seq.SetState(StatePass)
	assert.Empty(t, seq.GetSummary())
}

func TestSequenceMembership(t *testing.T) {
	seq := New("all", TypeSequence, nil)
	a, _ := newScripted(t, "alpha")
	b, _ := newScripted(t, "beta")

	assert.True(t, seq.IsSequence())
	assert.False(t, a.IsSequence())

	seq.AddSubCheck(a)
	seq.AddSubCheck(b)
	seq.AddSubCheck(a)
	assert.Equal(t, []string{"alpha", "beta"}, seq.SubCheckNames())

	// a sequence never contains itself
	seq.AddSubCheck(seq)
	assert.Equal(t, []string{"alpha", "beta"}, seq.SubCheckNames())

	c, _ := newScripted(t, "gamma")
	seq.ReplaceSubCheck("alpha", c)
	assert.Equal(t, []string{"beta", "gamma"}, seq.SubCheckNames())
	seq.ReplaceSubCheck("nope", a)
	assert.Equal(t, []string{"beta", "gamma"}, seq.SubCheckNames())

	seq.DelSubCheck("beta")
	assert.Equal(t, []string{"gamma"}, seq.SubCheckNames())
	seq.DelSubCheck("beta")

	// membership helpers are no-ops on other types
	a.AddSubCheck(b)
	assert.Nil(t, a.SubCheckNames())
}

func TestSequenceCycleRefused(t *testing.T) {
	outer := New("outer", TypeSequence, nil)
	inner := New("inner", TypeSequence, nil)
	outer.AddSubCheck(inner)

	// closing the loop is refused
	inner.AddSubCheck(outer)
	assert.Equal(t, []string{"inner"}, outer.SubCheckNames())
	assert.Empty(t, inner.SubCheckNames())

	// transitive loops too
	mid := New("mid", TypeSequence, nil)
	inner.AddSubCheck(mid)
	mid.AddSubCheck(outer)
	assert.Empty(t, mid.SubCheckNames())
}
