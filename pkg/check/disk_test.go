// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"fmt"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixDiskUsage(t *testing.T, usage *disk.UsageStat, err error) {
	t.Helper()
	orig := diskUsage
	diskUsage = func(path string) (*disk.UsageStat, error) {
		if usage != nil {
			usage.Path = path
		}
		return usage, err
	}
	t.Cleanup(func() { diskUsage = orig })
}

func TestDiskOverLevel(t *testing.T) {
	fixDiskUsage(t, &disk.UsageStat{
		Total: 100 << 30,
		Used:  95 << 30,
		Free:  5 << 30,
	}, nil)

	c := New("root", TypeDisk, Options{"volume": "/data", "level": 90.0})
	require.NotNil(t, c)
	c.SetState(StatePass)

	fs := c.Update()
	assert.Equal(t, StateFail, fs)
	require.NotEmpty(t, c.Log)
	assert.Contains(t, c.Log[0], "/data")
	assert.Contains(t, c.Log[0], "95%")
	assert.Contains(t, c.Log[0], "GiB")
}

func TestDiskUnderLevel(t *testing.T) {
	fixDiskUsage(t, &disk.UsageStat{
		Total: 100 << 30,
		Used:  50 << 30,
		Free:  50 << 30,
	}, nil)

	c := New("root", TypeDisk, nil)
	c.SetState(StateFail)
	fs := c.Update()
	assert.Equal(t, StatePass, fs)
}

func TestDiskLargeVolumeUnits(t *testing.T) {
	fixDiskUsage(t, &disk.UsageStat{
		Total: 2 << 40,
		Used:  1 << 40,
		Free:  1 << 40,
	}, nil)

	c := New("big", TypeDisk, nil)
	c.SetState(StateFail)
	c.Update()
	require.NotEmpty(t, c.Log)
	assert.Contains(t, c.Log[0], "TiB")
}

func TestDiskError(t *testing.T) {
	fixDiskUsage(t, nil, fmt.Errorf("no such volume"))

	c := New("root", TypeDisk, Options{"volume": "/data"})
	c.SetState(StatePass)
	fs := c.Update()
	assert.Equal(t, StateFail, fs)
	require.NotEmpty(t, c.Log)
	// the error names the volume, not the check
	assert.Contains(t, c.Log[0], "/data: no such volume")
}
