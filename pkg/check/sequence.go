// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DataDog/picket/pkg/util/log"
)

func init() {
	Register(TypeSequence, func(*Check) Prober { return &sequenceProbe{} })
}

// sequenceProbe runs an ordered set of sub-checks through their full state
// machines and aggregates the failing names. The verdict is the CSV of
// failing sub-check names in (priority, insertion) order, so membership
// changes in an already-failing sequence still transition by value.
type sequenceProbe struct {
	checks []*Check
}

func (p *sequenceProbe) Probe(c *Check) FailState {
	sorted := p.sorted()
	var failing []string
	for _, sub := range sorted {
		subFail := sub.Update()
		if subFail.Failing() {
			failing = append(failing, sub.Name)
			c.Log = append(c.Log, fmt.Sprintf("%s (%s): FAIL", sub.Name, sub.CheckType))
			c.Log = append(c.Log, sub.logSnapshot()...)
			c.Log = append(c.Log, "")
		} else {
			c.Log = append(c.Log, fmt.Sprintf("%s (%s): PASS", sub.Name, sub.CheckType))
		}
	}
	log.Debugf("%s (%s): Fail=%v", c.Name, c.CheckType, failing)
	return FailState(strings.Join(failing, ","))
}

// Summary renders the failing CSV as a warning list.
func (p *sequenceProbe) Summary(c *Check) string {
	if !c.FailState.Failing() {
		return ""
	}
	var rv []string
	for _, name := range strings.Split(string(c.FailState), ",") {
		rv = append(rv, fmt.Sprintf(" %s ⚠️", name))
	}
	return strings.Join(rv, "\n")
}

// sorted returns the sub-checks in (priority, insertion) order.
func (p *sequenceProbe) sorted() []*Check {
	out := make([]*Check, len(p.checks))
	copy(out, p.checks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

func (p *sequenceProbe) add(c, sub *Check) {
	if sub == c {
		return
	}
	if sub.contains(c) {
		log.Infof("Ignored circular sequence entry %s in %s", sub.Name, c.Name)
		return
	}
	for _, prev := range p.checks {
		if prev.Name == sub.Name {
			return
		}
	}
	p.checks = append(p.checks, sub)
	log.Debugf("Added check %s to sequence %s", sub.Name, c.Name)
}

// contains reports whether target is reachable from c through sequence
// membership. Membership edges only change under the site lock, so the
// walk needs no per-check locking.
func (c *Check) contains(target *Check) bool {
	p, ok := c.prober.(*sequenceProbe)
	if !ok {
		return false
	}
	for _, sub := range p.checks {
		if sub == target || sub.contains(target) {
			return true
		}
	}
	return false
}

// logSnapshot copies the check log under the state lock.
func (c *Check) logSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Log...)
}

func (p *sequenceProbe) del(c *Check, name string) {
	for i, sub := range p.checks {
		if sub.Name == name {
			p.checks = append(p.checks[:i], p.checks[i+1:]...)
			log.Debugf("Removed check %s from sequence %s", name, c.Name)
			return
		}
	}
}

// IsSequence reports whether the check aggregates sub-checks.
func (c *Check) IsSequence() bool {
	_, ok := c.prober.(*sequenceProbe)
	return ok
}

// AddSubCheck adds sub to a sequence check; no-op for other types.
// Entries that would make membership circular are logged and skipped.
func (c *Check) AddSubCheck(sub *Check) {
	if p, ok := c.prober.(*sequenceProbe); ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		p.add(c, sub)
	}
}

// DelSubCheck removes the named sub-check from a sequence.
func (c *Check) DelSubCheck(name string) {
	if p, ok := c.prober.(*sequenceProbe); ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		p.del(c, name)
	}
}

// ReplaceSubCheck swaps the named sequence entry for sub if it existed.
func (c *Check) ReplaceSubCheck(name string, sub *Check) {
	p, ok := c.prober.(*sequenceProbe)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, prev := range p.checks {
		if prev.Name == name {
			p.del(c, name)
			p.add(c, sub)
			return
		}
	}
}

// SubCheckNames lists sequence members in insertion order.
func (c *Check) SubCheckNames() []string {
	p, ok := c.prober.(*sequenceProbe)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(p.checks))
	for _, sub := range p.checks {
		names = append(names, sub.Name)
	}
	return names
}

// RewriteCheckRef renames an entry of the checks option list, or
// removes it when newName is empty.
func (c *Check) RewriteCheckRef(name, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.Options.GetStringSlice("checks")
	if len(members) == 0 {
		return
	}
	changed := false
	out := members[:0]
	for _, m := range members {
		if m == name {
			changed = true
			if newName == "" {
				continue
			}
			m = newName
		}
		out = append(out, m)
	}
	if changed {
		c.Options["checks"] = out
	}
}
