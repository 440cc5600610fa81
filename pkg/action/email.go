// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package action

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/timefmt"
)

const emailTimeout = 10 * time.Second

// sendMail is a test seam over net/smtp submission.
var sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, auth, from, to, msg)
}

// emailAction submits a notification message to an SMTP relay.
type emailAction struct {
	name    string
	options check.Options
}

func (a *emailAction) Name() string { return a.name }

func (a *emailAction) Flatten() map[string]interface{} {
	return flatten("email", a.options)
}

func (a *emailAction) Trigger(c *check.Check) bool {
	recipients := a.options.GetStringSlice("recipients")
	if len(recipients) == 0 {
		log.Infof("%s (email): No recipients, notification not sent", a.name)
		return true
	}
	hostname := a.options.GetString("hostname", "localhost")
	port := a.options.GetInt("port", 25)
	username := a.options.GetString("username", "")
	password := a.options.GetString("password", "")
	sender := a.options.GetString("sender", "")
	site := a.options.GetString("site", "picket")
	if sender == "" {
		sender = "picket@" + hostname
	}

	subject := fmt.Sprintf("[%s] %s (%s) %s", site, c.Name, c.CheckType, c.GetState())
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", timefmt.Now(c.Timezone))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(messageText(c), "\n", "\r\n"))
	b.WriteString("\r\n")

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, hostname)
	}
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))
	errCh := make(chan error, 1)
	go func() {
		errCh <- sendMail(addr, auth, sender, recipients, []byte(b.String()))
	}()
	select {
	case err := <-errCh:
		if err != nil {
			log.Errorf("%s (email): %v", a.name, err) //nolint:errcheck
			return false
		}
	case <-time.After(emailTimeout):
		log.Errorf("%s (email): Timeout sending to %s", a.name, addr) //nolint:errcheck
		return false
	}
	log.Infof("%s (email): Sent notification for %s to %v", a.name, c.Name, recipients)
	return true
}
