// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package trigger

import (
	"strconv"
	"time"

	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

// FromConfig builds a trigger from a decoded document fragment of the form
// {"interval": {...}} or {"cron": {...}}. Unknown keys and wrong-typed
// values are logged and skipped; a fragment that yields no valid trigger
// returns nil.
func FromConfig(v interface{}) *Trigger {
	src, ok := v.(map[string]interface{})
	if !ok {
		if v != nil {
			log.Infof("Ignored malformed trigger %v", v)
		}
		return nil
	}
	t := &Trigger{}
	var fields []field
	if sub, ok := src["interval"].(map[string]interface{}); ok {
		t.Interval = &Interval{}
		fields = intervalFields
		src = sub
	} else if sub, ok := src["cron"].(map[string]interface{}); ok {
		t.Cron = &Cron{}
		fields = cronFields
		src = sub
	} else {
		log.Infof("Ignored trigger without interval or cron schedule")
		return nil
	}

	for _, f := range fields {
		raw, present := src[f.key]
		if !present {
			continue
		}
		val, ok := coerce(raw)
		if !ok {
			log.Infof("Ignored wrong-typed trigger field %s=%v", f.key, raw)
			continue
		}
		if t.Interval != nil {
			t.Interval.set(f.key, val)
		} else {
			t.Cron.set(f.key, val)
		}
	}
	if err := t.Validate(); err != nil {
		log.Infof("Invalid trigger: %v", err)
		return nil
	}
	return t
}

// coerce renders a JSON scalar as a trigger field value.
func coerce(v interface{}) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case float64:
		if tv == float64(int64(tv)) {
			return strconv.FormatInt(int64(tv), 10), true
		}
		return "", false
	case int:
		return strconv.Itoa(tv), true
	default:
		return "", false
	}
}

// Location resolves the interval timezone, defaulting to local time.
func (iv *Interval) Location() *time.Location {
	if loc := timefmt.Zone(iv.Timezone); loc != nil {
		return loc
	}
	return time.Local
}

// Window returns the parsed start and end bounds of the trigger, zero when
// unset or unparseable.
func (t *Trigger) Window() (start, end time.Time) {
	var sd, ed string
	switch {
	case t.Interval != nil:
		sd, ed = t.Interval.StartDate, t.Interval.EndDate
	case t.Cron != nil:
		sd, ed = t.Cron.StartDate, t.Cron.EndDate
	}
	if sd != "" {
		start, _ = timefmt.Parse(sd)
	}
	if ed != "" {
		end, _ = timefmt.Parse(ed)
	}
	return start, end
}

// JitterSeconds returns the configured jitter bound in seconds.
func (t *Trigger) JitterSeconds() int {
	switch {
	case t.Interval != nil:
		return t.Interval.Jitter
	case t.Cron != nil:
		return t.Cron.Jitter
	}
	return 0
}
