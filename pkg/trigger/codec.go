// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package trigger

import (
	"strconv"
	"strings"

	"github.com/DataDog/picket/pkg/util/log"
)

// field describes one schedule key: its canonical name, its short alias in
// the textual form, and whether the value is an integer.
type field struct {
	key     string
	alias   string
	integer bool
}

// Field order below is the canonical emission order of the textual form.
var intervalFields = []field{
	{"weeks", "week", true},
	{"days", "day", true},
	{"hours", "hr", true},
	{"minutes", "min", true},
	{"seconds", "sec", true},
	{"start_date", "start", false},
	{"end_date", "end", false},
	{"timezone", "z", false},
	{"jitter", "delay", true},
}

var cronFields = []field{
	{"year", "year", false},
	{"month", "month", false},
	{"day", "day", false},
	{"week", "week", false},
	{"day_of_week", "weekday", false},
	{"hour", "hr", false},
	{"minute", "min", false},
	{"second", "sec", false},
	{"start_date", "start", false},
	{"end_date", "end", false},
	{"timezone", "z", false},
	{"jitter", "delay", true},
}

func (iv *Interval) get(key string) (string, bool) {
	switch key {
	case "weeks":
		return strconv.Itoa(iv.Weeks), iv.Weeks != 0
	case "days":
		return strconv.Itoa(iv.Days), iv.Days != 0
	case "hours":
		return strconv.Itoa(iv.Hours), iv.Hours != 0
	case "minutes":
		return strconv.Itoa(iv.Minutes), iv.Minutes != 0
	case "seconds":
		return strconv.Itoa(iv.Seconds), iv.Seconds != 0
	case "start_date":
		return iv.StartDate, iv.StartDate != ""
	case "end_date":
		return iv.EndDate, iv.EndDate != ""
	case "timezone":
		return iv.Timezone, iv.Timezone != ""
	case "jitter":
		return strconv.Itoa(iv.Jitter), iv.Jitter != 0
	}
	return "", false
}

func (iv *Interval) set(key, value string) bool {
	n := 0
	for _, f := range intervalFields {
		if f.key == key && f.integer {
			v, err := strconv.Atoi(value)
			if err != nil {
				log.Infof("Invalid trigger value %q for %s", value, key)
				return false
			}
			n = v
		}
	}
	switch key {
	case "weeks":
		iv.Weeks = n
	case "days":
		iv.Days = n
	case "hours":
		iv.Hours = n
	case "minutes":
		iv.Minutes = n
	case "seconds":
		iv.Seconds = n
	case "start_date":
		iv.StartDate = value
	case "end_date":
		iv.EndDate = value
	case "timezone":
		iv.Timezone = value
	case "jitter":
		iv.Jitter = n
	default:
		return false
	}
	return true
}

func (c *Cron) get(key string) (string, bool) {
	switch key {
	case "year":
		return c.Year, c.Year != ""
	case "month":
		return c.Month, c.Month != ""
	case "day":
		return c.Day, c.Day != ""
	case "week":
		return c.Week, c.Week != ""
	case "day_of_week":
		return c.DayOfWeek, c.DayOfWeek != ""
	case "hour":
		return c.Hour, c.Hour != ""
	case "minute":
		return c.Minute, c.Minute != ""
	case "second":
		return c.Second, c.Second != ""
	case "start_date":
		return c.StartDate, c.StartDate != ""
	case "end_date":
		return c.EndDate, c.EndDate != ""
	case "timezone":
		return c.Timezone, c.Timezone != ""
	case "jitter":
		return strconv.Itoa(c.Jitter), c.Jitter != 0
	}
	return "", false
}

func (c *Cron) set(key, value string) bool {
	switch key {
	case "year":
		c.Year = value
	case "month":
		c.Month = value
	case "day":
		c.Day = value
	case "week":
		c.Week = value
	case "day_of_week":
		c.DayOfWeek = value
	case "hour":
		c.Hour = value
	case "minute":
		c.Minute = value
	case "second":
		c.Second = value
	case "start_date":
		c.StartDate = value
	case "end_date":
		c.EndDate = value
	case "timezone":
		c.Timezone = value
	case "jitter":
		v, err := strconv.Atoi(value)
		if err != nil {
			log.Infof("Invalid trigger value %q for jitter", value)
			return false
		}
		c.Jitter = v
	default:
		return false
	}
	return true
}

// Format renders a trigger as its canonical token stream, e.g.
// "interval 5 min" or "cron 9 hr 30 min mon-fri weekday". Invalid or empty
// triggers render as the empty string.
func Format(t *Trigger) string {
	if t == nil {
		return ""
	}
	var rv []string
	switch {
	case t.Interval != nil:
		rv = append(rv, "interval")
		for _, f := range intervalFields {
			if v, ok := t.Interval.get(f.key); ok {
				rv = append(rv, v, f.alias)
			}
		}
	case t.Cron != nil:
		rv = append(rv, "cron")
		for _, f := range cronFields {
			if v, ok := t.Cron.get(f.key); ok {
				rv = append(rv, v, f.alias)
			}
		}
	}
	return strings.Join(rv, " ")
}

// Parse reads a textual trigger definition. The stream is a sequence of
// value tokens terminated by unit tokens; a missing kind prefix selects
// interval and trailing values without a unit default to minutes.
// Returns nil when the text does not describe a valid trigger.
func Parse(text string) *Trigger {
	tv := strings.Fields(strings.ToLower(text))
	if len(tv) == 0 {
		return nil
	}

	t := &Trigger{}
	var fields []field
	switch tv[0] {
	case "interval":
		tv = tv[1:]
		t.Interval = &Interval{}
		fields = intervalFields
	case "cron":
		tv = tv[1:]
		t.Cron = &Cron{}
		fields = cronFields
	default:
		log.Debugf("Trigger kind not specified, assuming interval")
		t.Interval = &Interval{}
		fields = intervalFields
	}

	keyMap := map[string]string{}
	for _, f := range fields {
		keyMap[f.key] = f.key
		keyMap[f.alias] = f.key
	}
	set := func(key, value string) bool {
		if _, dup := seenKey(t, key); dup {
			log.Warnf("Trigger key %s re-defined", key) //nolint:errcheck
		}
		if t.Interval != nil {
			return t.Interval.set(key, value)
		}
		return t.Cron.set(key, value)
	}

	var nextVal []string
	for len(tv) > 0 {
		if _, isUnit := keyMap[tv[0]]; isUnit && len(nextVal) == 0 {
			log.Debugf("Ignoring spurious unit %s", tv[0])
			tv = tv[1:]
			continue
		}
		nextVal = append(nextVal, tv[0])
		tv = tv[1:]
		if len(tv) > 0 {
			if key, isUnit := keyMap[tv[0]]; isUnit {
				tv = tv[1:]
				if !set(key, strings.Join(nextVal, " ")) {
					return nil
				}
				nextVal = nil
			}
		}
	}
	if len(nextVal) > 0 {
		val := strings.Join(nextVal, " ")
		log.Debugf("Extra value without units %s, assuming minutes", val)
		if !set(keyMap["min"], val) {
			return nil
		}
	}

	if err := t.Validate(); err != nil {
		log.Infof("Invalid trigger: %v", err)
		return nil
	}
	return t
}

// seenKey reports whether key already holds a value in t.
func seenKey(t *Trigger, key string) (string, bool) {
	if t.Interval != nil {
		return t.Interval.get(key)
	}
	return t.Cron.get(key)
}
