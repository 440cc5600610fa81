// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/util/log"
)

func init() {
	Register(TypeUPS, func(*Check) Prober { return upsProbe{} })
	Register(TypeUPSTest, func(*Check) Prober { return upsTestProbe{} })
}

// upsStatus is one Megatec Q1 status response.
type upsStatus struct {
	load    int
	battery float64

	utilityFail    bool
	batteryLow     bool
	upsFailed      bool
	testInProgress bool
	shutdownActive bool
	beeperOn       bool
}

func (s upsStatus) failing() bool {
	return s.utilityFail || s.batteryLow || s.upsFailed || s.shutdownActive
}

// queryStatus issues Q1 and parses the response:
// (MMM.M NNN.N PPP.P QQQ RR.R S.SS TT.T b7..b0
func queryStatus(port io.ReadWriter) (upsStatus, error) {
	var s upsStatus
	if _, err := port.Write([]byte("Q1\r")); err != nil {
		return s, err
	}
	line, err := bufio.NewReader(port).ReadString('\r')
	if err != nil {
		return s, err
	}
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "("))
	fields := strings.Fields(line)
	if len(fields) != 8 || len(fields[7]) != 8 {
		return s, fmt.Errorf("unexpected status response %q", line)
	}
	if s.load, err = strconv.Atoi(fields[3]); err != nil {
		return s, fmt.Errorf("unexpected load %q", fields[3])
	}
	if s.battery, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return s, fmt.Errorf("unexpected battery voltage %q", fields[5])
	}
	bits := fields[7]
	s.utilityFail = bits[0] == '1'
	s.batteryLow = bits[1] == '1'
	s.upsFailed = bits[3] == '1'
	s.testInProgress = bits[5] == '1'
	s.shutdownActive = bits[6] == '1'
	s.beeperOn = bits[7] == '1'
	return s, nil
}

// upsProbe reads UPS status over a serial line, holding the port lock for
// the whole exchange.
type upsProbe struct{}

func (upsProbe) Probe(c *Check) FailState {
	serialPort := c.Options.GetString("serialPort", "")
	beeper := c.Options.GetBool("beeper", true)

	log.Debugf("%s (%s): Waiting for serial port %s", c.Name, c.CheckType, serialPort)
	lock := serialLock(serialPort)
	lock.Lock()
	defer lock.Unlock()

	port, err := openSerial(serialPort)
	if err != nil {
		return probeFail(c, serialPort, err)
	}
	defer port.Close()

	status, err := queryStatus(port)
	if err != nil {
		return probeFail(c, serialPort, err)
	}
	if status.beeperOn != beeper {
		// Q toggles the beeper
		if _, err := port.Write([]byte("Q\r")); err != nil {
			return probeFail(c, serialPort, err)
		}
		c.Log = append(c.Log, fmt.Sprintf("Beeper toggled %v", beeper))
	}
	c.Log = append(c.Log, fmt.Sprintf("Load: %d%%, Battery: %0.1fV", status.load, status.battery))
	if status.batteryLow {
		c.Log = append(c.Log, fmt.Sprintf("Low battery warning: %0.1fV", status.battery))
	}
	if status.failing() {
		return StateFail
	}
	return StatePass
}

// upsTestProbe runs the 10 second UPS self-test and reports the result.
type upsTestProbe struct{}

func (upsTestProbe) Probe(c *Check) FailState {
	serialPort := c.Options.GetString("serialPort", "")

	log.Debugf("%s (%s): Waiting for serial port %s", c.Name, c.CheckType, serialPort)
	lock := serialLock(serialPort)
	lock.Lock()
	defer lock.Unlock()

	port, err := openSerial(serialPort)
	if err != nil {
		return probeFail(c, serialPort, err)
	}
	defer port.Close()

	if _, err := port.Write([]byte("T\r")); err != nil {
		return probeFail(c, serialPort, err)
	}
	var status upsStatus
	for i := 0; i < 15; i++ {
		time.Sleep(time.Second)
		status, err = queryStatus(port)
		if err != nil {
			return probeFail(c, serialPort, err)
		}
		if !status.testInProgress {
			break
		}
	}
	msg := fmt.Sprintf("Self-test complete, Battery: %0.1fV", status.battery)
	if status.testInProgress {
		msg = "Self-test did not complete"
	}
	c.Log = append(c.Log, msg)
	log.Infof("%s (%s) %s: %s", c.Name, c.CheckType, serialPort, msg)
	if status.testInProgress || status.failing() {
		return StateFail
	}
	return StatePass
}
