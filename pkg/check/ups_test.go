// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers Megatec status queries with a canned response.
type fakePort struct {
	status string
	cmds   []string
	rbuf   []byte
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	cmd := string(b)
	p.cmds = append(p.cmds, cmd)
	if cmd == "Q1\r" {
		p.rbuf = append(p.rbuf, []byte(p.status)...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.rbuf) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.rbuf)
	p.rbuf = p.rbuf[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func statusLine(bits string) string {
	return fmt.Sprintf("(229.0 229.0 229.0 045 50.1 2.28 25.0 %s\r", bits)
}

func fixSerial(t *testing.T, port *fakePort) {
	t.Helper()
	orig := openSerial
	openSerial = func(string) (io.ReadWriteCloser, error) { return port, nil }
	t.Cleanup(func() { openSerial = orig })
}

func TestQueryStatus(t *testing.T) {
	port := &fakePort{status: statusLine("10010101")}
	s, err := queryStatus(port)
	require.NoError(t, err)
	assert.Equal(t, 45, s.load)
	assert.InDelta(t, 2.28, s.battery, 0.001)
	assert.True(t, s.utilityFail)
	assert.False(t, s.batteryLow)
	assert.True(t, s.upsFailed)
	assert.True(t, s.testInProgress)
	assert.False(t, s.shutdownActive)
	assert.True(t, s.beeperOn)
	assert.True(t, s.failing())
	assert.Equal(t, []string{"Q1\r"}, port.cmds)
}

func TestQueryStatusMalformed(t *testing.T) {
	for _, status := range []string{
		"(229.0 229.0\r",
		"(229.0 229.0 229.0 045 50.1 2.28 25.0 000\r",
		"(229.0 229.0 229.0 xxx 50.1 2.28 25.0 00000000\r",
		"(229.0 229.0 229.0 045 50.1 x.xx 25.0 00000000\r",
	} {
		port := &fakePort{status: status}
		_, err := queryStatus(port)
		assert.Error(t, err, status)
	}
}

func TestUPSProbePass(t *testing.T) {
	port := &fakePort{status: statusLine("00000000")}
	fixSerial(t, port)

	c := New("power", TypeUPS, Options{"serialPort": "/dev/ttyUSB0"})
	require.NotNil(t, c)
	c.SetState(StatePass)
	fs := c.Update()
	assert.Equal(t, StatePass, fs)
	assert.Contains(t, c.Log, "Load: 45%, Battery: 2.3V")
	// beeper off with the default on requested toggles it
	assert.Contains(t, port.cmds, "Q\r")
	assert.True(t, port.closed)
}

func TestUPSProbeBeeperMatch(t *testing.T) {
	port := &fakePort{status: statusLine("00000001")}
	fixSerial(t, port)

	c := New("power", TypeUPS, Options{"serialPort": "/dev/ttyUSB0", "beeper": true})
	c.SetState(StatePass)
	c.Update()
	assert.NotContains(t, port.cmds, "Q\r")
}

func TestUPSProbeBatteryLow(t *testing.T) {
	port := &fakePort{status: statusLine("01000001")}
	fixSerial(t, port)

	c := New("power", TypeUPS, Options{"serialPort": "/dev/ttyUSB0"})
	c.SetState(StatePass)
	fs := c.Update()
	assert.Equal(t, StateFail, fs)
	assert.Contains(t, c.Log, "Low battery warning: 2.3V")
}

func TestUPSProbeOpenError(t *testing.T) {
	orig := openSerial
	openSerial = func(string) (io.ReadWriteCloser, error) {
		return nil, fmt.Errorf("no such device")
	}
	t.Cleanup(func() { openSerial = orig })

	c := New("power", TypeUPS, Options{"serialPort": "/dev/ttyUSB9"})
	c.SetState(StatePass)
	fs := c.Update()
	assert.Equal(t, StateFail, fs)
	require.NotEmpty(t, c.Log)
	assert.Contains(t, c.Log[0], "/dev/ttyUSB9: no such device")
}

func TestUPSSelfTest(t *testing.T) {
	port := &fakePort{status: statusLine("00000000")}
	fixSerial(t, port)

	c := New("power-test", TypeUPSTest, Options{"serialPort": "/dev/ttyUSB0"})
	c.SetState(StatePass)
	fs := c.Update()
	assert.Equal(t, StatePass, fs)
	assert.Contains(t, c.Log, "Self-test complete, Battery: 2.3V")
	require.NotEmpty(t, port.cmds)
	assert.Equal(t, "T\r", port.cmds[0])
}

func TestSerialLock(t *testing.T) {
	a := serialLock("/dev/ttyUSB0")
	b := serialLock("/dev/ttyUSB0")
	other := serialLock("/dev/ttyUSB1")
	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}
