// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"fmt"

	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

func init() {
	Register(TypeRemote, func(*Check) Prober { return remoteProbe{} })
}

// remoteProbe is passive: state arrives via RemoteUpdate. The scheduled
// update only enforces staleness of the last remote report and otherwise
// re-surfaces the report's log.
type remoteProbe struct{}

func (remoteProbe) Probe(c *Check) FailState {
	timeout := c.Options.GetInt("timeout", 0)
	fail := c.FailState
	if timeout > 0 && c.LastUpdate != "" {
		lu, err := timefmt.Parse(c.LastUpdate)
		if err == nil {
			et := int(timeNow().Sub(lu).Seconds())
			if et > timeout {
				log.Debugf("%s (%s): Timeout waiting for update %d sec / %s",
					c.Name, c.CheckType, et, c.LastUpdate)
				c.Log = append(c.Log, fmt.Sprintf("Timeout waiting for update %d sec (%s)",
					et, c.LastUpdate))
				return StateFail
			}
		}
	}
	// restore remote log if non-empty
	if len(c.OldLog) > 0 {
		c.Log = c.OldLog
	}
	return fail
}

// RemoteUpdate overwrites the check state from a remote report and applies
// the regular transition rules to decide notification. Only meaningful on
// remote checks; other types ignore the report.
func (c *Check) RemoteUpdate(checkType string, data Data) {
	if _, ok := c.prober.(remoteProbe); !ok {
		log.Infof("%s (%s): Ignored remote update", c.Name, c.CheckType)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SubType = checkType
	doNotify := false
	if data.FailState.Failing() {
		if data.FailCount >= data.Threshold && data.FailState != c.FailState {
			log.Warnf("%s (%s.%s) Log: %v", c.Name, c.CheckType, c.SubType, data.Log) //nolint:errcheck
			log.Warnf("%s (%s.%s) FAIL", c.Name, c.CheckType, c.SubType)              //nolint:errcheck
			if c.FailAction {
				doNotify = true
			}
		}
	} else if c.FailState.Failing() {
		log.Warnf("%s (%s.%s) PASS", c.Name, c.CheckType, c.SubType) //nolint:errcheck
		if c.PassAction {
			doNotify = true
		}
	}

	lastUpdate := timefmt.Now(c.Timezone)
	if data.LastCheck != "" {
		if _, err := timefmt.Parse(data.LastCheck); err == nil {
			lastUpdate = data.LastCheck
		} else {
			log.Infof("%s (%s.%s): Ignored invalid last update time", c.Name, c.CheckType, c.SubType)
		}
	}

	c.setState(data.FailState)
	c.LastUpdate = lastUpdate
	c.FailCount = data.FailCount
	if data.Threshold > 0 {
		c.Threshold = data.Threshold
	}
	c.Log = data.Log
	c.SoftFail = data.SoftFail
	c.LastCheck = data.LastCheck
	c.LastFail = data.LastFail
	c.LastPass = data.LastPass
	if doNotify {
		c.notify()
	}
}
