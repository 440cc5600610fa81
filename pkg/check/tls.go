// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/DataDog/picket/pkg/util/log"
)

// tlsConfig returns the client TLS configuration for a probe handshake.
// Self-signed peers skip chain and hostname verification; the expiry guard
// still applies.
func tlsConfig(serverName string, selfsigned bool) *tls.Config {
	cfg := &tls.Config{ServerName: serverName}
	if selfsigned {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// certExpiry returns an error when the certificate lifetime remaining is
// below CertExpiryDays. Probes apply this to every TLS handshake,
// independently of the underlying service responding.
func certExpiry(cert *x509.Certificate) error {
	if cert == nil {
		log.Debugf("Certificate missing - expiry check skipped")
		return nil
	}
	daysLeft := int(cert.NotAfter.Sub(timeNow()).Hours() / 24)
	log.Debugf("Certificate %q expiry %s: %d days", cert.Subject, cert.NotAfter, daysLeft)
	if daysLeft < CertExpiryDays {
		return fmt.Errorf("certificate expires in %d days", daysLeft)
	}
	return nil
}

// peerExpiry applies the expiry guard to the leaf certificate of a
// completed handshake.
func peerExpiry(state tls.ConnectionState) error {
	if len(state.PeerCertificates) == 0 {
		return certExpiry(nil)
	}
	return certExpiry(state.PeerCertificates[0])
}
