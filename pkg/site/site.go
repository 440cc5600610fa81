// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package site ties the monitor together: it owns the configuration
// document, the action and check tables, the scheduler and the bounded
// site log. All mutations go through the site so references between
// checks stay consistent and the document on disk can always be
// rewritten from memory.
package site

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/DataDog/picket/pkg/action"
	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/scheduler"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// logMax bounds the in-memory site log; logPrune entries are dropped
	// from the head in one go so the buffer is not reallocated per line.
	logMax   = 200
	logPrune = 10
)

// WebConfig is the web interface section of the site document.
type WebConfig struct {
	Hostname string            `json:"hostname,omitempty"`
	Port     int               `json:"port"`
	Cert     string            `json:"cert,omitempty"`
	Key      string            `json:"key,omitempty"`
	Users    map[string]string `json:"users,omitempty"`
}

// document is the on-disk shape of a site configuration. Action and
// check entries stay raw so wrong-typed fields degrade per field rather
// than failing the whole load.
type document struct {
	Base     string                            `json:"base,omitempty"`
	Timezone string                            `json:"timezone,omitempty"`
	WebUI    *WebConfig                        `json:"webui,omitempty"`
	Actions  map[string]map[string]interface{} `json:"actions"`
	Checks   map[string]map[string]interface{} `json:"checks"`
	Log      []string                          `json:"log"`
}

// Site is one loaded monitor configuration.
type Site struct {
	configFile string

	mu      sync.Mutex
	base    string
	tzName  string
	tz      *time.Location
	web     *WebConfig
	actions map[string]action.Action
	checks  map[string]*check.Check
	order   []string
	sched   *scheduler.Scheduler

	logMu  sync.Mutex
	logBuf []string
}

// Load reads and links the site document at path. Broken references,
// unknown types and invalid triggers are logged and skipped; only an
// unreadable or undecodable document is fatal.
func Load(path string) (*Site, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site config: %w", err)
	}
	var doc document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("parsing site config %s: %w", path, err)
	}

	s := &Site{
		configFile: path,
		base:       doc.Base,
		tzName:     doc.Timezone,
		tz:         timefmt.Zone(doc.Timezone),
		web:        doc.WebUI,
		actions:    make(map[string]action.Action),
		checks:     make(map[string]*check.Check),
		sched:      scheduler.New(),
	}
	if s.base == "" {
		s.base = filepath.Dir(path)
	}

	for _, name := range sortedKeys(doc.Actions) {
		if a := action.FromConfig(name, doc.Actions[name]); a != nil {
			s.actions[name] = a
		}
	}
	for _, name := range sortedKeys(doc.Checks) {
		s.loadCheck(name, doc.Checks[name])
	}
	// second pass: dependency and sequence edges need the full table
	for _, name := range s.order {
		s.linkCheck(s.checks[name], doc.Checks[name])
	}
	for _, name := range s.order {
		s.scheduleCheck(s.checks[name])
	}
	if n := len(doc.Log); n > 0 {
		if n > logMax {
			doc.Log = doc.Log[n-logMax:]
		}
		s.logBuf = doc.Log
	}

	log.RegisterReceiver(s.receiveLog)
	log.Infof("Loaded site %s: %d checks, %d actions", path, len(s.order), len(s.actions))
	return s, nil
}

func (s *Site) loadCheck(name string, config map[string]interface{}) {
	c := check.FromConfig(name, config, s.tz)
	if c == nil {
		log.Infof("Ignored invalid check %s in %s", name, s.configFile)
		return
	}
	for _, an := range stringList(config["actions"]) {
		if a, ok := s.actions[an]; ok {
			c.AddAction(a)
		} else {
			log.Infof("%s: Ignored unknown action %s", name, an)
		}
	}
	s.checks[name] = c
	s.order = append(s.order, name)
}

func (s *Site) linkCheck(c *check.Check, config map[string]interface{}) {
	for _, dn := range stringList(config["depends"]) {
		if d, ok := s.checks[dn]; ok {
			c.AddDepend(d)
		} else {
			log.Infof("%s: Ignored unknown dependency %s", c.Name, dn)
		}
	}
	if c.IsSequence() {
		for _, sn := range c.Options.GetStringSlice("checks") {
			if sub, ok := s.checks[sn]; ok {
				c.AddSubCheck(sub)
			} else {
				log.Infof("%s: Ignored unknown sequence entry %s", c.Name, sn)
			}
		}
	}
}

func (s *Site) scheduleCheck(c *check.Check) {
	if c.Trigger == nil {
		return
	}
	name := c.Name
	job := func() {
		s.RunCheck(name) //nolint:errcheck
	}
	if err := s.sched.Add(name, c.Trigger, job); err != nil {
		log.Warnf("%s: Not scheduled: %v", name, err) //nolint:errcheck
	}
}

// Start begins firing scheduled checks.
func (s *Site) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.Start()
}

// Stop unschedules all checks and waits for in-flight updates.
func (s *Site) Stop() {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	sched.Stop()
}

// Base returns the site base directory.
func (s *Site) Base() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Web returns the web interface configuration, nil when absent.
func (s *Site) Web() *WebConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.web
}

// SaveConfig atomically rewrites the site document. The previous
// document survives as <path>.bak via a hard link taken before the
// rename, so a crash at any point leaves a complete file on disk.
func (s *Site) SaveConfig() error {
	s.mu.Lock()
	doc := s.flattenLocked()
	s.mu.Unlock()
	return writeDocument(s.configFile, doc)
}

func writeDocument(path string, doc document) error {
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding site config: %w", err)
	}
	buf = append(buf, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".picket-*")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting config mode: %w", err)
	}

	linkName := ""
	if _, err := os.Stat(path); err == nil {
		nonce := make([]byte, 4)
		rand.Read(nonce) //nolint:errcheck
		linkName = fmt.Sprintf("%s.%s", path, hex.EncodeToString(nonce))
		if err := os.Link(path, linkName); err != nil {
			log.Warnf("Unable to keep config backup: %v", err) //nolint:errcheck
			linkName = ""
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		if linkName != "" {
			os.Remove(linkName)
		}
		return fmt.Errorf("replacing site config: %w", err)
	}
	if linkName != "" {
		if err := os.Rename(linkName, path+".bak"); err != nil {
			log.Warnf("Unable to rename config backup: %v", err) //nolint:errcheck
			os.Remove(linkName)
		}
	}
	log.Debugf("Saved site config %s", path)
	return nil
}

func (s *Site) flattenLocked() document {
	doc := document{
		Base:     s.base,
		Timezone: s.tzName,
		WebUI:    s.web,
		Actions:  make(map[string]map[string]interface{}),
		Checks:   make(map[string]map[string]interface{}),
		Log:      s.Log(),
	}
	for name, a := range s.actions {
		doc.Actions[name] = a.Flatten()
	}
	for name, c := range s.checks {
		var raw map[string]interface{}
		cbuf, err := json.Marshal(c.Flatten())
		if err == nil {
			err = json.Unmarshal(cbuf, &raw)
		}
		if err != nil {
			log.Errorf("%s: Not saved: %v", name, err) //nolint:errcheck
			continue
		}
		doc.Checks[name] = raw
	}
	return doc
}

// receiveLog collects warning and error lines into the bounded site log.
func (s *Site) receiveLog(level, message string) {
	entry := fmt.Sprintf("%s %s %s", timefmt.Now(s.tz), level, message)
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logBuf = append(s.logBuf, entry)
	if len(s.logBuf) > logMax {
		trimmed := make([]string, len(s.logBuf)-logPrune)
		copy(trimmed, s.logBuf[logPrune:])
		s.logBuf = trimmed
	}
}

// Log returns a copy of the buffered site log, oldest first.
func (s *Site) Log() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	out := make([]string, len(s.logBuf))
	copy(out, s.logBuf)
	return out
}

// Timezone returns the site display timezone, nil for the host zone.
func (s *Site) Timezone() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tz
}

func sortedKeys(m map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringList(v interface{}) []string {
	var out []string
	switch tv := v.(type) {
	case []interface{}:
		for _, entry := range tv {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = tv
	}
	return out
}
