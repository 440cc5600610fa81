// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	tera = float64(1 << 40)
	giga = float64(1 << 30)
)

// for testing
var diskUsage = disk.Usage

func init() {
	Register(TypeDisk, func(*Check) Prober { return diskProbe{} })
}

// diskProbe fails when volume usage reaches the configured percent level.
type diskProbe struct{}

func (diskProbe) Probe(c *Check) FailState {
	volume := c.Options.GetString("volume", "/")
	level := c.Options.GetInt("level", 90)

	du, err := diskUsage(volume)
	if err != nil {
		return probeFail(c, volume, err)
	}
	var dpct float64
	if du.Total > 0 {
		dpct = 100.0 * float64(du.Used) / float64(du.Total)
	}
	var msg string
	if float64(du.Total) > 0.8*tera {
		msg = fmt.Sprintf("%s (%s) %s: %2.0f%% %0.2f/%0.2fTiB, %0.2fTiB Free",
			c.Name, c.CheckType, volume, dpct,
			float64(du.Used)/tera, float64(du.Total)/tera, float64(du.Free)/tera)
	} else {
		msg = fmt.Sprintf("%s (%s) %s: %2.0f%% %0.0f/%0.0fGiB, %0.0fGiB Free",
			c.Name, c.CheckType, volume, dpct,
			float64(du.Used)/giga, float64(du.Total)/giga, float64(du.Free)/giga)
	}
	c.Log = append(c.Log, msg)
	if dpct < float64(level) {
		return StatePass
	}
	return StateFail
}
