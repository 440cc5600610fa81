// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/DataDog/picket/pkg/util/log"
)

func init() {
	Register(TypeSSH, func(*Check) Prober { return sshProbe{} })
}

var errHostKeyMismatch = fmt.Errorf("invalid host key")

// sshProbe checks an SSH service and pins its host key. On first contact
// the server key is stored into options.hostkey; a later mismatch fails
// the check. The transport is abandoned after key verification, so an
// authentication refusal is a passing outcome.
type sshProbe struct{}

func (sshProbe) Probe(c *Check) FailState {
	hostname := c.Options.GetString("hostname", "")
	port := c.Options.GetInt("port", 22)
	timeout := time.Duration(c.Options.GetInt("timeout", sshTimeout)) * time.Second
	hostkey := c.Options.GetString("hostkey", "")
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))

	verified := false
	cfg := &ssh.ClientConfig{
		User:    "picket",
		Timeout: timeout,
		HostKeyCallback: func(dialAddr string, remote net.Addr, key ssh.PublicKey) error {
			hk := base64.StdEncoding.EncodeToString(key.Marshal())
			c.Log = append(c.Log, fmt.Sprintf("%s:%d %s %s", hostname, port, key.Type(), hk))
			if hostkey != "" && hostkey != hk {
				return errHostKeyMismatch
			}
			if hostkey == "" {
				log.Infof("%s (%s) %s: Adding hostkey=%s", c.Name, c.CheckType, hostname, hk)
				c.Options["hostkey"] = hk
			}
			verified = true
			return nil
		},
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return probeFail(c, hostname, err)
	}
	defer conn.Close()
	conn.SetDeadline(timeNow().Add(timeout)) //nolint:errcheck

	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		// no credentials are offered, an auth refusal after key
		// verification still proves the service
		if verified && strings.Contains(err.Error(), "unable to authenticate") {
			c.Log = append(c.Log, "service verified, authentication not attempted")
			return StatePass
		}
		return probeFail(c, hostname, err)
	}
	go ssh.DiscardRequests(reqs)
	go func() {
		for ch := range chans {
			ch.Reject(ssh.Prohibited, "probe only") //nolint:errcheck
		}
	}()
	c.Log = append(c.Log, "transport established")
	sc.Close()
	return StatePass
}
