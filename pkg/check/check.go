// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package check implements the monitored check contract and its state
// machine. A check owns the common scheduling and notification state;
// the type-specific probe body is a Prober registered in the catalog
// under the on-disk type tag.
package check

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/DataDog/picket/pkg/trigger"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

// Check type tags as stored in the configuration document.
const (
	TypeCert     = "cert"
	TypeSMTP     = "smtp"
	TypeSubmit   = "submit"
	TypeIMAP     = "imap"
	TypeHTTPS    = "https"
	TypeSSH      = "ssh"
	TypeSequence = "sequence"
	TypeUPS      = "ups"
	TypeUPSTest  = "upstest"
	TypeRemote   = "remote"
	TypeDisk     = "disk"
)

// CertExpiryDays is the minimum remaining certificate lifetime accepted by
// any TLS handshake performed by a probe.
const CertExpiryDays = 7

// test seam
var timeNow = time.Now

// FailState is a check verdict compared by value. Empty means pass,
// StateFail is a plain failure, and any other value is a structured
// failure such as the sequence CSV of failing sub-check names.
type FailState string

const (
	// StatePass is the passing verdict.
	StatePass FailState = ""
	// StateFail is the plain failing verdict.
	StateFail FailState = "FAIL"
)

// Failing reports whether the state is any failing value.
func (f FailState) Failing() bool {
	return f != StatePass
}

// MarshalJSON keeps documents compatible with the original bool-or-string
// encoding: the sentinel verdicts serialize as booleans.
func (f FailState) MarshalJSON() ([]byte, error) {
	switch f {
	case StatePass:
		return []byte("false"), nil
	case StateFail:
		return []byte("true"), nil
	default:
		return json.Marshal(string(f))
	}
}

// UnmarshalJSON accepts a bool or a string verdict.
func (f *FailState) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	fs, ok := FailValue(v)
	if !ok {
		return fmt.Errorf("invalid failState %s", string(b))
	}
	*f = fs
	return nil
}

// FailValue converts a decoded JSON scalar to a FailState.
func FailValue(v interface{}) (FailState, bool) {
	switch tv := v.(type) {
	case bool:
		if tv {
			return StateFail, true
		}
		return StatePass, true
	case string:
		return FailState(tv), true
	default:
		return StatePass, false
	}
}

// Prober runs one attempt of the type-specific check body. It appends
// detail to c.Log and returns the observed verdict; it must not mutate
// c.FailState or c.FailCount.
type Prober interface {
	Probe(c *Check) FailState
}

// Summarizer is implemented by probers with a custom state summary.
type Summarizer interface {
	Summary(c *Check) string
}

// Notifier is an opaque action attached to a check, dispatched on state
// transitions in attachment order. Trigger runs with the check's state
// lock held, so implementations read fields directly and must not call
// the locking accessors.
type Notifier interface {
	Name() string
	Trigger(c *Check) bool
}

// Factory builds the prober for a new check of a registered type.
type Factory func(c *Check) Prober

var catalog = map[string]Factory{}

// Register adds a check type to the catalog. Called from init.
func Register(typeTag string, f Factory) {
	catalog[typeTag] = f
}

// KnownType reports whether a type tag is registered.
func KnownType(typeTag string) bool {
	_, ok := catalog[typeTag]
	return ok
}

// Check is a named monitored item.
type Check struct {
	Name       string
	CheckType  string
	SubType    string
	Options    Options
	Trigger    *trigger.Trigger
	Threshold  int
	Retries    int
	Priority   int
	FailAction bool
	PassAction bool
	Publish    string
	Timezone   *time.Location

	// mu guards the runtime state and the edge lists below. Update
	// holds it for the whole update so readers always observe a
	// complete transition; notifiers run with it held.
	mu sync.Mutex

	// runtime state
	FailState  FailState
	SoftFail   string
	FailCount  int
	Log        []string
	OldLog     []string
	LastFail   string
	LastPass   string
	LastCheck  string
	LastUpdate string

	actions []Notifier
	depends []*Check
	prober  Prober
	running atomic.Bool
	// verdict mirrors FailState so dependants and skipped updates can
	// read it without waiting on mu
	verdict atomic.String
}

// New returns a check of the given registered type with default state.
// Unknown types return nil.
func New(name, typeTag string, options Options) *Check {
	factory, ok := catalog[typeTag]
	if !ok {
		log.Warnf("Invalid check type %q ignored", typeTag) //nolint:errcheck
		return nil
	}
	if options == nil {
		options = Options{}
	}
	c := &Check{
		Name:       name,
		CheckType:  typeTag,
		Options:    options,
		Threshold:  1,
		Retries:    1,
		FailAction: true,
		PassAction: true,
		FailState:  StateFail,
	}
	c.verdict.Store(string(StateFail))
	c.prober = factory(c)
	return c
}

// State returns the current verdict without waiting for an in-flight
// update to finish.
func (c *Check) State() FailState {
	return FailState(c.verdict.Load())
}

// SetState overwrites the verdict directly, bypassing transition
// handling. Used when restoring persisted state.
func (c *Check) SetState(fs FailState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(fs)
}

func (c *Check) setState(fs FailState) {
	c.FailState = fs
	c.verdict.Store(string(fs))
}

// Snapshot returns a point-in-time copy of the runtime state block.
func (c *Check) Snapshot() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Data{
		FailState:  c.FailState,
		FailCount:  c.FailCount,
		Threshold:  c.Threshold,
		Log:        c.Log,
		SoftFail:   c.SoftFail,
		LastCheck:  c.LastCheck,
		LastUpdate: c.LastUpdate,
		LastFail:   c.LastFail,
		LastPass:   c.LastPass,
	}
}

// GetState returns PASS or FAIL for display.
func (c *Check) GetState() string {
	if c.FailState.Failing() {
		return "FAIL"
	}
	return "PASS"
}

// GetSummary returns a short text summary of the check state.
func (c *Check) GetSummary() string {
	if s, ok := c.prober.(Summarizer); ok {
		return s.Summary(c)
	}
	if c.FailState.Failing() && len(c.Log) > 0 {
		return c.Log[len(c.Log)-1]
	}
	return ""
}

// Update runs the check through the state machine: dependency soft-fail
// scan, retry loop, threshold hysteresis and value-compare transition
// detection with action dispatch. Returns the post-update verdict. A
// concurrent update of the same check returns the current verdict without
// running.
func (c *Check) Update() FailState {
	if !c.running.CompareAndSwap(false, true) {
		log.Debugf("%s (%s): Update already running, skipping", c.Name, c.CheckType)
		return c.State()
	}
	defer c.running.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()

	thisTime := timefmt.Now(c.Timezone)
	c.LastCheck = thisTime
	c.SoftFail = ""
	for _, d := range c.depends {
		if d.State().Failing() {
			c.SoftFail = d.Name
			log.Infof("%s (%s) SOFTFAIL (depends=%s) %s", c.Name, c.CheckType, d.Name, thisTime)
			c.Log = []string{fmt.Sprintf("SOFTFAIL (depends=%s)", d.Name)}
			return StateFail
		}
	}

	c.OldLog = c.Log
	c.Log = nil
	var curFail FailState
	for count := 1; count <= c.Retries; count++ {
		if count > 1 {
			log.Infof("%s (%s): Retrying %d/%d", c.Name, c.CheckType, count, c.Retries)
		}
		curFail = c.prober.Probe(c)
		if !curFail.Failing() {
			break
		}
	}

	log.Infof("%s (%s): %s curFail=%q prevFail=%q failCount=%d %s",
		c.Name, c.CheckType, c.GetState(), curFail, c.FailState, c.FailCount, thisTime)

	if curFail.Failing() {
		c.FailCount++
		if c.FailCount >= c.Threshold && curFail != c.FailState {
			log.Warnf("%s (%s) Log: %v", c.Name, c.CheckType, c.Log) //nolint:errcheck
			log.Warnf("%s (%s) FAIL", c.Name, c.CheckType)           //nolint:errcheck
			c.setState(curFail)
			c.LastFail = thisTime
			if c.FailAction {
				c.notify()
			}
		}
	} else {
		c.FailCount = 0
		if c.FailState.Failing() {
			log.Warnf("%s (%s) PASS", c.Name, c.CheckType) //nolint:errcheck
			c.setState(curFail)
			c.LastPass = thisTime
			if c.PassAction {
				c.notify()
			}
		}
	}

	return c.FailState
}

// notify dispatches all attached actions in attachment order.
func (c *Check) notify() {
	for _, a := range c.actions {
		a.Trigger(c)
	}
}

// AddAction attaches an action, replacing any previous one of the same name.
func (c *Check) AddAction(a Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, prev := range c.actions {
		if prev.Name() == a.Name() {
			c.actions[i] = a
			return
		}
	}
	c.actions = append(c.actions, a)
}

// DelAction removes the named action if attached.
func (c *Check) DelAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range c.actions {
		if a.Name() == name {
			c.actions = append(c.actions[:i], c.actions[i+1:]...)
			return
		}
	}
}

// ActionNames lists attached actions in attachment order.
func (c *Check) ActionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actionNamesLocked()
}

func (c *Check) actionNamesLocked() []string {
	names := make([]string, 0, len(c.actions))
	for _, a := range c.actions {
		names = append(names, a.Name())
	}
	return names
}

// AddDepend adds d to the dependency set. A check never depends on itself.
func (c *Check) AddDepend(d *Check) {
	if d == c {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, prev := range c.depends {
		if prev.Name == d.Name {
			return
		}
	}
	c.depends = append(c.depends, d)
	log.Debugf("Added dependency %s to %s", d.Name, c.Name)
}

// DelDepend removes the named dependency if present.
func (c *Check) DelDepend(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.depends {
		if d.Name == name {
			c.depends = append(c.depends[:i], c.depends[i+1:]...)
			log.Debugf("Removed dependency %s from %s", name, c.Name)
			return
		}
	}
}

// ReplaceDepend swaps the named dependency for d if it existed.
func (c *Check) ReplaceDepend(name string, d *Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, prev := range c.depends {
		if prev.Name == name {
			if d == c {
				c.depends = append(c.depends[:i], c.depends[i+1:]...)
				return
			}
			c.depends[i] = d
			return
		}
	}
}

// DependNames lists dependencies in insertion order.
func (c *Check) DependNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dependNamesLocked()
}

func (c *Check) dependNamesLocked() []string {
	names := make([]string, 0, len(c.depends))
	for _, d := range c.depends {
		names = append(names, d.Name)
	}
	return names
}

// Data is the runtime state block of the serialized check.
type Data struct {
	FailState  FailState `json:"failState"`
	FailCount  int       `json:"failCount"`
	Threshold  int       `json:"threshold,omitempty"`
	Log        []string  `json:"log"`
	SoftFail   string    `json:"softFail,omitempty"`
	LastCheck  string    `json:"lastCheck,omitempty"`
	LastUpdate string    `json:"lastUpdate,omitempty"`
	LastFail   string    `json:"lastFail,omitempty"`
	LastPass   string    `json:"lastPass,omitempty"`
}

// Config is the flattened serialized form of a check.
type Config struct {
	Type       string           `json:"type"`
	SubType    string           `json:"subType,omitempty"`
	Trigger    *trigger.Trigger `json:"trigger"`
	Threshold  int              `json:"threshold"`
	Retries    int              `json:"retries"`
	Priority   int              `json:"priority"`
	FailAction bool             `json:"failAction"`
	PassAction bool             `json:"passAction"`
	Publish    string           `json:"publish,omitempty"`
	Options    Options          `json:"options"`
	Actions    []string         `json:"actions"`
	Depends    []string         `json:"depends"`
	Data       *Data            `json:"data"`
}

// Flatten returns the check as its serialized form.
func (c *Check) Flatten() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Config{
		Type:       c.CheckType,
		SubType:    c.SubType,
		Trigger:    c.Trigger,
		Threshold:  c.Threshold,
		Retries:    c.Retries,
		Priority:   c.Priority,
		FailAction: c.FailAction,
		PassAction: c.PassAction,
		Publish:    c.Publish,
		Options:    c.Options,
		Actions:    c.actionNamesLocked(),
		Depends:    c.dependNamesLocked(),
		Data: &Data{
			FailState:  c.FailState,
			FailCount:  c.FailCount,
			Threshold:  c.Threshold,
			Log:        c.Log,
			SoftFail:   c.SoftFail,
			LastCheck:  c.LastCheck,
			LastUpdate: c.LastUpdate,
			LastFail:   c.LastFail,
			LastPass:   c.LastPass,
		},
	}
}

// MsgObj is the remote notification object published for a check.
type MsgObj struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data Data   `json:"data"`
}

// MsgObj returns the remote notification object for the check.
func (c *Check) MsgObj() MsgObj {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MsgObj{
		Name: c.Name,
		Type: c.CheckType,
		Data: Data{
			Threshold: c.Threshold,
			FailState: c.FailState,
			FailCount: c.FailCount,
			Log:       c.Log,
			SoftFail:  c.SoftFail,
			LastCheck: c.LastCheck,
			LastFail:  c.LastFail,
			LastPass:  c.LastPass,
		},
	}
}
