// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/util/log"
)

// Default per-probe I/O timeouts in seconds.
const (
	smtpTimeout   = 10
	submitTimeout = 10
	imapTimeout   = 10
	httpsTimeout  = 10
	certTimeout   = 10
	sshTimeout    = 10
)

func init() {
	Register(TypeSMTP, func(*Check) Prober { return smtpProbe{} })
	Register(TypeSubmit, func(*Check) Prober { return smtpProbe{implicitTLS: true} })
	Register(TypeIMAP, func(*Check) Prober { return imapProbe{} })
	Register(TypeHTTPS, func(*Check) Prober { return httpsProbe{} })
}

// probeFail records a failed attempt in the check log.
func probeFail(c *Check, target string, err error) FailState {
	log.Debugf("%s (%s) %s: %v", c.Name, c.CheckType, target, err)
	c.Log = append(c.Log, fmt.Sprintf("%s: %v", target, err))
	return StateFail
}

// smtpProbe checks an SMTP service, optionally over STARTTLS or, for the
// submissions variant, over implicit TLS.
type smtpProbe struct {
	implicitTLS bool
}

func (p smtpProbe) Probe(c *Check) FailState {
	hostname := c.Options.GetString("hostname", "")
	defPort, defTimeout := 25, smtpTimeout
	if p.implicitTLS {
		defPort, defTimeout = 465, submitTimeout
	}
	port := c.Options.GetInt("port", defPort)
	timeout := time.Duration(c.Options.GetInt("timeout", defTimeout)) * time.Second
	selfsigned := c.Options.GetBool("selfsigned", false)
	useTLS := c.Options.GetBool("tls", true)
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))

	var conn net.Conn
	var err error
	if p.implicitTLS {
		dialer := &net.Dialer{Timeout: timeout}
		tc, derr := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig(hostname, selfsigned))
		if derr != nil {
			return probeFail(c, hostname, derr)
		}
		if err := peerExpiry(tc.ConnectionState()); err != nil {
			tc.Close()
			return probeFail(c, hostname, err)
		}
		conn = tc
	} else {
		conn, err = net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return probeFail(c, hostname, err)
		}
	}
	defer conn.Close()
	conn.SetDeadline(timeNow().Add(timeout)) //nolint:errcheck

	tp := textproto.NewConn(conn)
	code, msg, err := tp.ReadResponse(220)
	if err != nil {
		return probeFail(c, hostname, err)
	}
	c.Log = append(c.Log, fmt.Sprintf("%d %s", code, msg))

	if !p.implicitTLS && useTLS {
		if err := tp.PrintfLine("STARTTLS"); err != nil {
			return probeFail(c, hostname, err)
		}
		if _, _, err := tp.ReadResponse(220); err != nil {
			return probeFail(c, hostname, err)
		}
		tc := tls.Client(conn, tlsConfig(hostname, selfsigned))
		if err := tc.Handshake(); err != nil {
			return probeFail(c, hostname, err)
		}
		if err := peerExpiry(tc.ConnectionState()); err != nil {
			return probeFail(c, hostname, err)
		}
		c.Log = append(c.Log, "STARTTLS negotiated")
		tp = textproto.NewConn(tc)
	}

	if err := tp.PrintfLine("EHLO picket"); err != nil {
		return probeFail(c, hostname, err)
	}
	code, msg, err = tp.ReadResponse(250)
	if err != nil {
		return probeFail(c, hostname, err)
	}
	c.Log = append(c.Log, fmt.Sprintf("%d %s", code, msg))

	// the service answered EHLO, remaining dialog is best-effort
	if err := tp.PrintfLine("NOOP"); err == nil {
		if code, msg, err := tp.ReadResponse(250); err == nil {
			c.Log = append(c.Log, fmt.Sprintf("%d %s", code, msg))
		}
	}
	if err := tp.PrintfLine("QUIT"); err == nil {
		if code, msg, err := tp.ReadResponse(221); err == nil {
			c.Log = append(c.Log, fmt.Sprintf("%d %s", code, msg))
		}
	}
	return StatePass
}

// imapProbe checks an IMAP4 service over implicit TLS.
type imapProbe struct{}

func (imapProbe) Probe(c *Check) FailState {
	hostname := c.Options.GetString("hostname", "")
	port := c.Options.GetInt("port", 993)
	timeout := time.Duration(c.Options.GetInt("timeout", imapTimeout)) * time.Second
	selfsigned := c.Options.GetBool("selfsigned", false)
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig(hostname, selfsigned))
	if err != nil {
		return probeFail(c, hostname, err)
	}
	defer conn.Close()
	conn.SetDeadline(timeNow().Add(timeout)) //nolint:errcheck
	if err := peerExpiry(conn.ConnectionState()); err != nil {
		return probeFail(c, hostname, err)
	}

	rd := bufio.NewReader(conn)
	greeting, err := rd.ReadString('\n')
	if err != nil {
		return probeFail(c, hostname, err)
	}
	if !strings.HasPrefix(greeting, "* OK") {
		return probeFail(c, hostname, fmt.Errorf("unexpected greeting %q", strings.TrimSpace(greeting)))
	}
	c.Log = append(c.Log, strings.TrimSpace(greeting))

	for _, cmd := range []string{"a1 NOOP", "a2 LOGOUT"} {
		tag := strings.Fields(cmd)[0]
		if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
			return probeFail(c, hostname, err)
		}
		reply, err := readIMAPReply(rd, tag)
		if err != nil {
			return probeFail(c, hostname, err)
		}
		c.Log = append(c.Log, reply)
	}
	return StatePass
}

// readIMAPReply consumes untagged lines until the tagged completion and
// verifies an OK result.
func readIMAPReply(rd *bufio.Reader, tag string) (string, error) {
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, tag+" ") {
			if !strings.HasPrefix(line, tag+" OK") {
				return "", fmt.Errorf("imap command failed: %s", line)
			}
			return line, nil
		}
	}
}

// httpsProbe checks an HTTPS service. Any response counts as a pass; the
// transport or certificate failing does not.
type httpsProbe struct{}

func (httpsProbe) Probe(c *Check) FailState {
	hostname := c.Options.GetString("hostname", "")
	port := c.Options.GetInt("port", 443)
	timeout := time.Duration(c.Options.GetInt("timeout", httpsTimeout)) * time.Second
	selfsigned := c.Options.GetBool("selfsigned", false)
	reqType := c.Options.GetString("reqType", http.MethodHead)
	reqPath := c.Options.GetString("reqPath", "/")
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))

	transport := &http.Transport{
		TLSClientConfig:   tlsConfig(hostname, selfsigned),
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	req, err := http.NewRequest(reqType, "https://"+addr+reqPath, nil)
	if err != nil {
		return probeFail(c, hostname, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return probeFail(c, hostname, err)
	}
	defer resp.Body.Close()
	if resp.TLS != nil {
		if err := peerExpiry(*resp.TLS); err != nil {
			return probeFail(c, hostname, err)
		}
	}
	c.Log = append(c.Log, fmt.Sprintf("%s %s: %s", reqType, reqPath, resp.Status))
	for _, header := range []string{"Server", "Content-Type", "Location"} {
		if v := resp.Header.Get(header); v != "" {
			c.Log = append(c.Log, fmt.Sprintf("%s: %s", header, v))
		}
	}
	return StatePass
}
