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

func TestFromConfig(t *testing.T) {
	config := map[string]interface{}{
		"type":       "https",
		"threshold":  3.0,
		"retries":    2.0,
		"priority":   10.0,
		"failAction": false,
		"publish":    "site/web",
		"trigger": map[string]interface{}{
			"interval": map[string]interface{}{"minutes": 5.0},
		},
		"options": map[string]interface{}{"hostname": "web.example.com"},
		"data": map[string]interface{}{
			"failState": "a,b",
			"failCount": 2.0,
			"lastFail":  "25 Aug 2026 09:30 UTC",
			"log":       []interface{}{"line one", 7.0, "line two"},
		},
	}
	c := FromConfig("web", config, nil)
	require.NotNil(t, c)
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, TypeHTTPS, c.CheckType)
	assert.Equal(t, 3, c.Threshold)
	assert.Equal(t, 2, c.Retries)
	assert.Equal(t, 10, c.Priority)
	assert.False(t, c.FailAction)
	assert.True(t, c.PassAction)
	assert.Equal(t, "site/web", c.Publish)
	require.NotNil(t, c.Trigger)
	require.NotNil(t, c.Trigger.Interval)
	assert.Equal(t, 5, c.Trigger.Interval.Minutes)
	assert.Equal(t, "web.example.com", c.Options.GetString("hostname", ""))
	assert.Equal(t, FailState("a,b"), c.FailState)
	assert.Equal(t, 2, c.FailCount)
	assert.Equal(t, "25 Aug 2026 09:30 UTC", c.LastFail)
	assert.Equal(t, []string{"line one", "line two"}, c.Log)
}

func TestFromConfigUnknownType(t *testing.T) {
	assert.Nil(t, FromConfig("x", map[string]interface{}{"type": "teapot"}, nil))
	assert.Nil(t, FromConfig("x", map[string]interface{}{}, nil))
}

func TestFromConfigTolerant(t *testing.T) {
	config := map[string]interface{}{
		"type":       "smtp",
		"threshold":  "three",
		"retries":    -1.0,
		"failAction": "yes",
		"passAction": 1.0,
		"trigger":    "5 min",
		"data": map[string]interface{}{
			"failState": 3.0,
			"failCount": -2.0,
		},
	}
	c := FromConfig("mail", config, nil)
	require.NotNil(t, c)
	// wrong-typed and out-of-range fields keep their defaults
	assert.Equal(t, 1, c.Threshold)
	assert.Equal(t, 1, c.Retries)
	assert.True(t, c.FailAction)
	assert.True(t, c.PassAction)
	assert.Nil(t, c.Trigger)
	assert.Equal(t, StateFail, c.FailState)
	assert.Equal(t, 0, c.FailCount)
}

func TestFromConfigDataThreshold(t *testing.T) {
	c := FromConfig("mail", map[string]interface{}{
		"type":      "smtp",
		"threshold": 2.0,
		"data":      map[string]interface{}{"threshold": 4.0},
	}, nil)
	require.NotNil(t, c)
	// the data block reflects the saved runtime state and wins
	assert.Equal(t, 4, c.Threshold)
}

func TestDataFromConfig(t *testing.T) {
	d := DataFromConfig(map[string]interface{}{
		"failState": true,
		"failCount": 2.0,
		"threshold": 3.0,
		"log":       []interface{}{"boom"},
		"softFail":  "gateway",
		"lastFail":  "25 Aug 2026 09:30 UTC",
	})
	assert.Equal(t, StateFail, d.FailState)
	assert.Equal(t, 2, d.FailCount)
	assert.Equal(t, 3, d.Threshold)
	assert.Equal(t, []string{"boom"}, d.Log)
	assert.Equal(t, "gateway", d.SoftFail)
	assert.Equal(t, "25 Aug 2026 09:30 UTC", d.LastFail)

	empty := DataFromConfig(map[string]interface{}{})
	assert.Equal(t, StatePass, empty.FailState)
	assert.Empty(t, empty.Log)
}

func TestOptions(t *testing.T) {
	o := Options{
		"host":  "mx1",
		"port":  465.0,
		"tls":   true,
		"level": 90,
		"frac":  1.5,
		"list":  []interface{}{"a", 2.0, "b"},
		"plain": []string{"x", "y"},
	}
	assert.Equal(t, "mx1", o.GetString("host", "d"))
	assert.Equal(t, "d", o.GetString("port", "d"))
	assert.Equal(t, 465, o.GetInt("port", 0))
	assert.Equal(t, 90, o.GetInt("level", 0))
	assert.Equal(t, 7, o.GetInt("frac", 7))
	assert.Equal(t, 7, o.GetInt("missing", 7))
	assert.True(t, o.GetBool("tls", false))
	assert.False(t, o.GetBool("host", false))
	assert.Equal(t, []string{"a", "b"}, o.GetStringSlice("list"))
	assert.Equal(t, []string{"x", "y"}, o.GetStringSlice("plain"))
	assert.Nil(t, o.GetStringSlice("host"))
}
