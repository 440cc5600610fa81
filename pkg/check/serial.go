// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"io"
	"os"
	"sync"
)

// Serial ports are mutually exclusive between checks. The per-path mutex
// is created lazily under the registry lock so two checks can never race
// to create competing locks for the same path.
var (
	serialRegistry = struct {
		sync.Mutex
		ports map[string]*sync.Mutex
	}{ports: make(map[string]*sync.Mutex)}
)

// serialLock returns the mutex guarding the named serial port path.
func serialLock(path string) *sync.Mutex {
	serialRegistry.Lock()
	defer serialRegistry.Unlock()
	m, ok := serialRegistry.ports[path]
	if !ok {
		m = &sync.Mutex{}
		serialRegistry.ports[path] = m
	}
	return m
}

// openSerial opens the serial device node; a test seam. The port is
// expected to be configured (raw, 2400 8N1) out of band.
var openSerial = func(path string) (io.ReadWriteCloser, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}
