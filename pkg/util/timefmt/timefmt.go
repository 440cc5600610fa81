// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package timefmt formats and parses site timestamps.
package timefmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/util/log"
)

// Layout is the site timestamp layout, "%d %b %Y %H:%M %Z" in strftime terms.
const Layout = "02 Jan 2006 15:04 MST"

// localZones maps common Australian zone abbreviations to fixed UTC offsets
// in seconds. Go resolves unknown abbreviations to a zero offset, so remote
// reports using these labels need the explicit table.
var localZones = map[string]int{
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
	"ACST": 9*3600 + 1800,
	"ACDT": 10*3600 + 1800,
}

// layouts accepted by Parse, most specific first.
var layouts = []string{
	Layout,
	"02 Jan 2006 15:04:05 MST",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Now returns the current time formatted in the provided zone. A nil zone
// formats in local time.
func Now(tz *time.Location) string {
	return Format(time.Now(), tz)
}

// Format renders t in the site timestamp layout.
func Format(t time.Time, tz *time.Location) string {
	if tz != nil {
		t = t.In(tz)
	}
	return t.Format(Layout)
}

// Parse reads a timestamp in any accepted layout, applying the local zone
// alias table where the standard library would yield a zero offset.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if name := t.Location().String(); name != "UTC" && name != "Local" {
			if _, offset := t.Zone(); offset == 0 {
				if alias, ok := localZones[name]; ok {
					t = replaceZone(t, time.FixedZone(name, alias))
				}
			}
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// Zone resolves a zone name to a location, returning nil for invalid input.
func Zone(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Ignored invalid timezone %q: %v", name, err) //nolint:errcheck
		return nil
	}
	return loc
}

// replaceZone reinterprets the wall-clock fields of t in loc.
func replaceZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
		t.Second(), t.Nanosecond(), loc)
}
