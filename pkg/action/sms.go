// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package action

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/util/log"
)

const smsTimeout = 10 * time.Second

// smsClient is a test seam over the SMS gateway transport.
var smsClient = &http.Client{Timeout: smsTimeout}

// smsAction posts a short notification to an SMS gateway API, one request
// per recipient. Success is the conjunction of all recipient posts.
type smsAction struct {
	name    string
	options check.Options
}

func (a *smsAction) Name() string { return a.name }

func (a *smsAction) Flatten() map[string]interface{} {
	return flatten("sms", a.options)
}

func (a *smsAction) Trigger(c *check.Check) bool {
	recipients := a.options.GetStringSlice("recipients")
	if len(recipients) == 0 {
		log.Infof("%s (sms): No recipients, notification not sent", a.name)
		return true
	}
	endpoint := a.options.GetString("url", "")
	if endpoint == "" {
		log.Errorf("%s (sms): No gateway url configured", a.name) //nolint:errcheck
		return false
	}
	apikey := a.options.GetString("apikey", "")
	sender := a.options.GetString("sender", "")
	site := a.options.GetString("site", "picket")

	message := fmt.Sprintf("[%s] %s (%s) %s", site, c.Name, c.CheckType, c.GetState())
	ok := true
	for _, recipient := range recipients {
		form := url.Values{}
		form.Set("to", recipient)
		form.Set("message", message)
		if sender != "" {
			form.Set("from", sender)
		}
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			log.Errorf("%s (sms): %v", a.name, err) //nolint:errcheck
			ok = false
			continue
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if apikey != "" {
			req.Header.Set("Authorization", "Bearer "+apikey)
		}
		resp, err := smsClient.Do(req)
		if err != nil {
			log.Errorf("%s (sms): %v", a.name, err) //nolint:errcheck
			ok = false
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Errorf("%s (sms): Gateway returned %s for %s", a.name, resp.Status, recipient) //nolint:errcheck
			ok = false
			continue
		}
		log.Infof("%s (sms): Sent notification for %s to %s", a.name, c.Name, recipient)
	}
	return ok
}
