// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package action implements transition notifiers. Actions are opaque to
// the check engine: their whole contract is Trigger and Flatten.
package action

import (
	"fmt"
	"strings"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/util/log"
)

// Action notifies an external destination about a check transition.
type Action interface {
	// Name is the site-unique action name.
	Name() string
	// Trigger sends a notification for the check, reporting success.
	Trigger(c *check.Check) bool
	// Flatten returns the serialized form of the action.
	Flatten() map[string]interface{}
}

// FromConfig builds an action from a decoded document entry; unknown
// types are logged and skipped.
func FromConfig(name string, config map[string]interface{}) Action {
	actionType, _ := config["type"].(string)
	options, _ := config["options"].(map[string]interface{})
	opts := check.Options(options)
	if opts == nil {
		opts = check.Options{}
	}
	switch actionType {
	case "email":
		return &emailAction{name: name, options: opts}
	case "sms":
		return &smsAction{name: name, options: opts}
	default:
		log.Infof("Invalid action type %q ignored", actionType)
		return nil
	}
}

// messageText renders the notification body for a check transition.
func messageText(c *check.Check) string {
	lines := []string{fmt.Sprintf("%s (%s) %s", c.Name, c.CheckType, c.GetState())}
	if summary := c.GetSummary(); summary != "" {
		lines = append(lines, summary)
	}
	if c.FailState.Failing() && c.LastFail != "" {
		lines = append(lines, "Last fail: "+c.LastFail)
	} else if !c.FailState.Failing() && c.LastPass != "" {
		lines = append(lines, "Last pass: "+c.LastPass)
	}
	if len(c.Log) > 0 {
		lines = append(lines, "")
		lines = append(lines, c.Log...)
	}
	return strings.Join(lines, "\n")
}

func flatten(actionType string, options check.Options) map[string]interface{} {
	return map[string]interface{}{
		"type":    actionType,
		"options": map[string]interface{}(options),
	}
}
