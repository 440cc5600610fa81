// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package trigger describes check schedules in structured and textual form.
//
// A trigger is either an interval (fire every period plus random jitter) or
// a cron expression (fire at the next matching instant). The textual codec
// round-trips with the structured form for all valid triggers.
package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/DataDog/picket/pkg/util/timefmt"
)

// Interval fires every period + U(0, jitter) seconds.
type Interval struct {
	Weeks     int    `json:"weeks,omitempty"`
	Days      int    `json:"days,omitempty"`
	Hours     int    `json:"hours,omitempty"`
	Minutes   int    `json:"minutes,omitempty"`
	Seconds   int    `json:"seconds,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Jitter    int    `json:"jitter,omitempty"`
}

// Cron fires at the next instant matching every specified field. Field
// values are cron expressions; day_of_week accepts names mon..sun or
// numbers 0-6 with 0 meaning Sunday.
type Cron struct {
	Year      string `json:"year,omitempty"`
	Month     string `json:"month,omitempty"`
	Day       string `json:"day,omitempty"`
	Week      string `json:"week,omitempty"`
	DayOfWeek string `json:"day_of_week,omitempty"`
	Hour      string `json:"hour,omitempty"`
	Minute    string `json:"minute,omitempty"`
	Second    string `json:"second,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Jitter    int    `json:"jitter,omitempty"`
}

// Trigger holds exactly one schedule kind.
type Trigger struct {
	Interval *Interval `json:"interval,omitempty"`
	Cron     *Cron     `json:"cron,omitempty"`
}

// Period returns the total interval duration excluding jitter.
func (iv *Interval) Period() time.Duration {
	secs := iv.Weeks*7*86400 + iv.Days*86400 + iv.Hours*3600 + iv.Minutes*60 + iv.Seconds
	return time.Duration(secs) * time.Second
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// spec renders the robfig six-field expression, applying the convention
// that fields more significant than the least significant explicit field
// default to "*" and less significant ones to their minimum.
func (c *Cron) spec() string {
	// significance order, most significant first
	vals := []string{c.Month, c.Day, c.Hour, c.Minute, c.Second}
	mins := []string{"*", "*", "0", "0", "0"}
	last := -1
	if c.Year != "" {
		last = 0
	}
	for i, v := range vals {
		if v != "" {
			last = i + 1
		}
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if v != "" {
			out[i] = v
		} else if i+1 <= last {
			out[i] = "*"
		} else {
			out[i] = mins[i]
		}
	}
	dow := c.DayOfWeek
	if dow == "" {
		dow = "*"
	}
	// robfig order: sec min hour dom month dow
	return strings.Join([]string{out[4], out[3], out[2], out[1], out[0], dow}, " ")
}

// Schedule compiles the cron fields into a robfig schedule in the trigger
// timezone. Year and week constraints are applied by Next.
func (c *Cron) Schedule() (cron.Schedule, error) {
	sched, err := cronParser.Parse(c.spec())
	if err != nil {
		return nil, fmt.Errorf("cron fields: %w", err)
	}
	return sched, nil
}

// Location resolves the trigger timezone, defaulting to local time.
func (c *Cron) Location() *time.Location {
	if loc := timefmt.Zone(c.Timezone); loc != nil {
		return loc
	}
	return time.Local
}

// Next returns the first matching instant strictly after from, honouring
// the year and ISO week constraints the six-field schedule cannot express.
// ok is false when no instant matches within the search horizon.
func (c *Cron) Next(from time.Time) (t time.Time, ok bool) {
	sched, err := c.Schedule()
	if err != nil {
		return time.Time{}, false
	}
	t = from.In(c.Location())
	for i := 0; i < 5000; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			return time.Time{}, false
		}
		if c.Year != "" && !matchField(c.Year, t.Year()) {
			continue
		}
		if c.Week != "" {
			_, week := t.ISOWeek()
			if !matchField(c.Week, week) {
				continue
			}
		}
		return t, true
	}
	return time.Time{}, false
}

// matchField evaluates a numeric cron constraint: "*", a value, a range
// "a-b", or a comma list of those.
func matchField(expr string, n int) bool {
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "*" {
			return true
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			a, errA := strconv.Atoi(lo)
			b, errB := strconv.Atoi(hi)
			if errA == nil && errB == nil && n >= a && n <= b {
				return true
			}
			continue
		}
		if v, err := strconv.Atoi(part); err == nil && v == n {
			return true
		}
	}
	return false
}

// Validate reports every problem with the trigger definition.
func (t *Trigger) Validate() error {
	var errs *multierror.Error
	switch {
	case t == nil:
		return fmt.Errorf("nil trigger")
	case t.Interval != nil && t.Cron != nil:
		errs = multierror.Append(errs, fmt.Errorf("trigger defines both interval and cron"))
	case t.Interval != nil:
		iv := t.Interval
		if iv.Period() <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("interval period must be positive"))
		}
		if iv.Jitter < 0 {
			errs = multierror.Append(errs, fmt.Errorf("interval jitter must not be negative"))
		}
		errs = validateWindow(errs, iv.StartDate, iv.EndDate, iv.Timezone)
	case t.Cron != nil:
		c := t.Cron
		if _, err := c.Schedule(); err != nil {
			errs = multierror.Append(errs, err)
		}
		if c.Year != "" && !fieldWellFormed(c.Year) {
			errs = multierror.Append(errs, fmt.Errorf("invalid cron year %q", c.Year))
		}
		if c.Week != "" && !fieldWellFormed(c.Week) {
			errs = multierror.Append(errs, fmt.Errorf("invalid cron week %q", c.Week))
		}
		if c.Jitter < 0 {
			errs = multierror.Append(errs, fmt.Errorf("cron jitter must not be negative"))
		}
		errs = validateWindow(errs, c.StartDate, c.EndDate, c.Timezone)
	default:
		errs = multierror.Append(errs, fmt.Errorf("trigger defines neither interval nor cron"))
	}
	return errs.ErrorOrNil()
}

func validateWindow(errs *multierror.Error, start, end, tz string) *multierror.Error {
	if start != "" {
		if _, err := timefmt.Parse(start); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("start_date: %w", err))
		}
	}
	if end != "" {
		if _, err := timefmt.Parse(end); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("end_date: %w", err))
		}
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	return errs
}

func fieldWellFormed(expr string) bool {
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "*" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			if _, err := strconv.Atoi(lo); err != nil {
				return false
			}
			if _, err := strconv.Atoi(hi); err != nil {
				return false
			}
			continue
		}
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}
