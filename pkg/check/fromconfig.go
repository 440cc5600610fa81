// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"time"

	"github.com/DataDog/picket/pkg/trigger"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

// FromConfig builds a check from a decoded document entry. Wrong-typed
// fields are logged and skipped; an unknown type returns nil. Action and
// dependency wiring is left to the site, which owns both endpoints.
func FromConfig(name string, config map[string]interface{}, tz *time.Location) *Check {
	typeTag, _ := config["type"].(string)
	options, _ := config["options"].(map[string]interface{})
	c := New(name, typeTag, Options(options))
	if c == nil {
		return nil
	}
	c.Timezone = tz

	if v, present := config["trigger"]; present && v != nil {
		c.Trigger = trigger.FromConfig(v)
	}
	if v, ok := intField(config, "threshold"); ok && v > 0 {
		c.Threshold = v
	}
	if v, ok := intField(config, "retries"); ok && v > 0 {
		c.Retries = v
	}
	if v, ok := intField(config, "priority"); ok {
		c.Priority = v
	}
	if v, ok := config["subType"].(string); ok {
		c.SubType = v
	}
	if v, present := config["failAction"]; present {
		if b, ok := v.(bool); ok {
			c.FailAction = b
		} else {
			log.Infof("%s ignored wrong-typed failAction", name)
		}
	}
	if v, present := config["passAction"]; present {
		if b, ok := v.(bool); ok {
			c.PassAction = b
		} else {
			log.Infof("%s ignored wrong-typed passAction", name)
		}
	}
	if v, ok := config["publish"].(string); ok {
		c.Publish = v
	}
	if zone := c.Options.GetString("timezone", ""); zone != "" {
		if loc := timefmt.Zone(zone); loc != nil {
			c.Timezone = loc
		}
	}

	if data, ok := config["data"].(map[string]interface{}); ok {
		if v, present := data["failState"]; present {
			if fs, ok := FailValue(v); ok {
				c.SetState(fs)
			} else {
				log.Infof("%s ignored wrong-typed failState", name)
			}
		}
		if v, ok := intField(data, "failCount"); ok && v >= 0 {
			c.FailCount = v
		}
		if v, ok := intField(data, "threshold"); ok && v > 0 {
			c.Threshold = v
		}
		if v, ok := data["lastFail"].(string); ok {
			c.LastFail = v
		}
		if v, ok := data["lastPass"].(string); ok {
			c.LastPass = v
		}
		if v, ok := data["lastCheck"].(string); ok {
			c.LastCheck = v
		}
		if v, ok := data["lastUpdate"].(string); ok {
			c.LastUpdate = v
		}
		if v, ok := data["softFail"].(string); ok {
			c.SoftFail = v
		}
		if v, ok := data["log"].([]interface{}); ok {
			for _, entry := range v {
				if s, ok := entry.(string); ok {
					c.Log = append(c.Log, s)
				}
			}
		}
	}
	return c
}

// DataFromConfig converts a decoded remote report data block.
func DataFromConfig(m map[string]interface{}) Data {
	var d Data
	if fs, ok := FailValue(m["failState"]); ok {
		d.FailState = fs
	}
	if v, ok := intField(m, "failCount"); ok {
		d.FailCount = v
	}
	if v, ok := intField(m, "threshold"); ok {
		d.Threshold = v
	}
	if v, ok := m["log"].([]interface{}); ok {
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				d.Log = append(d.Log, s)
			}
		}
	}
	if v, ok := m["softFail"].(string); ok {
		d.SoftFail = v
	}
	if v, ok := m["lastCheck"].(string); ok {
		d.LastCheck = v
	}
	if v, ok := m["lastUpdate"].(string); ok {
		d.LastUpdate = v
	}
	if v, ok := m["lastFail"].(string); ok {
		d.LastFail = v
	}
	if v, ok := m["lastPass"].(string); ok {
		d.LastPass = v
	}
	return d
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int(v), true
		}
	}
	return 0, false
}
