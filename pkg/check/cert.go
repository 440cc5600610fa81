// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

func init() {
	Register(TypeCert, func(*Check) Prober { return certProbe{} })
}

// certProbe verifies a TLS service certificate. With selfsigned set the
// chain is fetched without trust validation; the expiry rule still
// applies. An optional probe payload is written after the handshake and
// the first response chunk logged.
type certProbe struct{}

func (certProbe) Probe(c *Check) FailState {
	hostname := c.Options.GetString("hostname", "")
	port := c.Options.GetInt("port", 443)
	timeout := time.Duration(c.Options.GetInt("timeout", certTimeout)) * time.Second
	selfsigned := c.Options.GetBool("selfsigned", false)
	payload := c.Options.GetString("probe", "")
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
	if state := conn.ConnectionState(); len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		c.Log = append(c.Log, fmt.Sprintf("%s: notAfter=%s", leaf.Subject, leaf.NotAfter.Format(time.RFC3339)))
	}

	if payload != "" && !selfsigned {
		if _, err := conn.Write([]byte(payload)); err != nil {
			return probeFail(c, hostname, err)
		}
		c.Log = append(c.Log, fmt.Sprintf("send: %q", payload))
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return probeFail(c, hostname, err)
		}
		c.Log = append(c.Log, fmt.Sprintf("recv: %q", string(buf[:n])))
	}
	return StatePass
}
