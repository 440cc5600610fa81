// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package site

import (
	"fmt"
	"sort"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/trigger"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

// GetCheck returns the named check, nil when absent.
func (s *Site) GetCheck(name string) *check.Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks[name]
}

// CheckNames lists checks in insertion order.
func (s *Site) CheckNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// SortedChecks returns checks ordered by priority; checks of equal
// priority keep their insertion order.
func (s *Site) SortedChecks() []*check.Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Site) sortedLocked() []*check.Check {
	out := make([]*check.Check, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.checks[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// AddCheck builds a check from a decoded document entry and schedules
// it. The name must be unused.
func (s *Site) AddCheck(name string, config map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(name, config)
}

func (s *Site) addLocked(name string, config map[string]interface{}) error {
	if name == "" {
		return fmt.Errorf("check name is required")
	}
	if _, dup := s.checks[name]; dup {
		return fmt.Errorf("check %s already exists", name)
	}
	s.loadCheck(name, config)
	c, ok := s.checks[name]
	if !ok {
		return fmt.Errorf("invalid check %s", name)
	}
	s.linkCheck(c, config)
	s.scheduleCheck(c)
	log.Infof("Added check %s (%s)", name, c.CheckType)
	return nil
}

// UpdateCheck replaces the named check with one built from config,
// optionally renaming it. References from other checks move to the
// replacement, so a rename never leaves dangling edges. An unknown name
// adds the check instead.
func (s *Site) UpdateCheck(name, newName string, config map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newName == "" {
		newName = name
	}
	if _, ok := s.checks[name]; !ok {
		return s.addLocked(newName, config)
	}
	if newName != name {
		if _, dup := s.checks[newName]; dup {
			return fmt.Errorf("check %s already exists", newName)
		}
	}

	c := check.FromConfig(newName, config, s.tz)
	if c == nil {
		return fmt.Errorf("invalid check %s", newName)
	}
	for _, an := range stringList(config["actions"]) {
		if a, present := s.actions[an]; present {
			c.AddAction(a)
		} else {
			log.Infof("%s: Ignored unknown action %s", newName, an)
		}
	}

	s.sched.Remove(name)
	delete(s.checks, name)
	s.checks[newName] = c
	for i, n := range s.order {
		if n == name {
			s.order[i] = newName
			break
		}
	}
	s.linkCheck(c, config)
	for _, other := range s.checks {
		if other == c {
			continue
		}
		other.ReplaceDepend(name, c)
		other.ReplaceSubCheck(name, c)
		other.RewriteCheckRef(name, newName)
	}
	s.scheduleCheck(c)
	log.Infof("Updated check %s (%s)", newName, c.CheckType)
	return nil
}

// DeleteCheck removes the named check and scrubs every reference to it
// from the remaining checks. Deleting an unknown name is a no-op.
func (s *Site) DeleteCheck(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checks[name]; !ok {
		return
	}
	s.sched.Remove(name)
	delete(s.checks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for _, other := range s.checks {
		other.DelDepend(name)
		other.DelSubCheck(name)
		other.RewriteCheckRef(name, "")
	}
	log.Infof("Deleted check %s", name)
}

// RunCheck runs the named check through its full update immediately and
// returns the post-update verdict.
func (s *Site) RunCheck(name string) (check.FailState, error) {
	s.mu.Lock()
	c, ok := s.checks[name]
	s.mu.Unlock()
	if !ok {
		return check.StatePass, fmt.Errorf("unknown check %s", name)
	}
	return c.Update(), nil
}

// StatusEntry is the per-check block of the status report.
type StatusEntry struct {
	CheckType string           `json:"checkType"`
	FailState check.FailState  `json:"failState"`
	Trigger   *trigger.Trigger `json:"trigger"`
	SoftFail  string           `json:"softFail"`
	LastFail  string           `json:"lastFail"`
	LastPass  string           `json:"lastPass"`
}

// Status is the site status report served by the web interface. Info is
// nil while every check passes.
type Status struct {
	Fail   bool                   `json:"fail"`
	Info   *string                `json:"info"`
	Checks map[string]StatusEntry `json:"checks"`
}

// GetStatus reports the current verdict of every check.
func (s *Site) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Checks: make(map[string]StatusEntry, len(s.order))}
	failCount := 0
	for _, c := range s.sortedLocked() {
		snap := c.Snapshot()
		if snap.FailState.Failing() {
			failCount++
			st.Fail = true
		}
		st.Checks[c.Name] = StatusEntry{
			CheckType: c.CheckType,
			FailState: snap.FailState,
			Trigger:   c.Trigger,
			SoftFail:  snap.SoftFail,
			LastFail:  snap.LastFail,
			LastPass:  snap.LastPass,
		}
	}
	if failCount > 0 {
		plural := "s"
		if failCount == 1 {
			plural = ""
		}
		info := fmt.Sprintf("%d check%s in fail state", failCount, plural)
		st.Info = &info
	}
	return st
}

// TestActions pushes a synthetic passing notification through the
// actions named "email" and "sms" and reports whether both delivered.
// A missing action counts as a failed delivery.
func (s *Site) TestActions() bool {
	s.mu.Lock()
	email := s.actions["email"]
	sms := s.actions["sms"]
	tz := s.tz
	s.mu.Unlock()

	c := check.New("Notification", check.TypeRemote, nil)
	c.Timezone = tz
	c.SetState(check.StatePass)
	c.LastPass = timefmt.Now(tz)
	c.Log = []string{"Testing action notification to:", "email", "sms"}

	emailOK := false
	if email != nil {
		emailOK = email.Trigger(c)
	}
	smsOK := false
	if sms != nil {
		smsOK = sms.Trigger(c)
	}
	return emailOK && smsOK
}
