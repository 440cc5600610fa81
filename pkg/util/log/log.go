// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log implements logging for picket. It wraps seelog and adds
// registrable receivers so other components can observe warning and error
// records, e.g. to feed the site log ring.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

const logFormat = "%Date(02 Jan 2006 15:04:05 MST) %LEVEL %Msg%n"

// Receiver observes formatted log records at warning level and above.
type Receiver func(level string, message string)

type monitorLogger struct {
	inner     seelog.LoggerInterface
	level     seelog.LogLevel
	receivers []Receiver
	l         sync.RWMutex
}

var logger *monitorLogger

func init() {
	// A usable default until Setup runs; replaced by the entry point.
	l, err := seelog.LoggerFromWriterWithMinLevelAndFormat(os.Stderr, seelog.InfoLvl, logFormat)
	if err == nil {
		setup(l, seelog.InfoLvl)
	}
}

func setup(l seelog.LoggerInterface, lvl seelog.LogLevel) {
	l.SetAdditionalStackDepth(2) //nolint:errcheck
	logger = &monitorLogger{inner: l, level: lvl}
}

// Setup configures the package logger to write to stderr at the named
// level. Unknown levels fall back to info.
func Setup(level string) {
	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		lvl = seelog.InfoLvl
	}
	l, err := seelog.LoggerFromWriterWithMinLevelAndFormat(os.Stderr, lvl, logFormat)
	if err != nil {
		return
	}
	setup(l, lvl)
}

// RegisterReceiver adds a receiver for warning-and-above records.
func RegisterReceiver(r Receiver) {
	logger.l.Lock()
	logger.receivers = append(logger.receivers, r)
	logger.l.Unlock()
}

// Flush flushes any buffered log output.
func Flush() {
	logger.l.RLock()
	defer logger.l.RUnlock()
	logger.inner.Flush()
}

func (sw *monitorLogger) shouldLog(level seelog.LogLevel) bool {
	sw.l.RLock()
	ok := level >= sw.level
	sw.l.RUnlock()
	return ok
}

func (sw *monitorLogger) relay(level string, message string) {
	sw.l.RLock()
	receivers := sw.receivers
	sw.l.RUnlock()
	for _, r := range receivers {
		r(level, message)
	}
}

// Tracef formats message according to format specifier and logs it with trace level.
func Tracef(format string, params ...interface{}) {
	if logger.shouldLog(seelog.TraceLvl) {
		logger.l.RLock()
		logger.inner.Tracef(format, params...)
		logger.l.RUnlock()
	}
}

// Debugf formats message according to format specifier and logs it with debug level.
func Debugf(format string, params ...interface{}) {
	if logger.shouldLog(seelog.DebugLvl) {
		logger.l.RLock()
		logger.inner.Debugf(format, params...)
		logger.l.RUnlock()
	}
}

// Infof formats message according to format specifier and logs it with info level.
func Infof(format string, params ...interface{}) {
	if logger.shouldLog(seelog.InfoLvl) {
		logger.l.RLock()
		logger.inner.Infof(format, params...)
		logger.l.RUnlock()
	}
}

// Warnf formats message according to format specifier and logs it with warn level.
func Warnf(format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	if logger.shouldLog(seelog.WarnLvl) {
		logger.l.RLock()
		logger.inner.Warn(msg) //nolint:errcheck
		logger.l.RUnlock()
	}
	logger.relay("WARNING", msg)
	return fmt.Errorf("%s", msg)
}

// Errorf formats message according to format specifier and logs it with error level.
func Errorf(format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	if logger.shouldLog(seelog.ErrorLvl) {
		logger.l.RLock()
		logger.inner.Error(msg) //nolint:errcheck
		logger.l.RUnlock()
	}
	logger.relay("ERROR", msg)
	return fmt.Errorf("%s", msg)
}

// Warn logs the provided arguments at warn level.
func Warn(v ...interface{}) error {
	return Warnf("%s", fmt.Sprint(v...))
}

// Error logs the provided arguments at error level.
func Error(v ...interface{}) error {
	return Errorf("%s", fmt.Sprint(v...))
}
