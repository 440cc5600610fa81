// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package site

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DataDog/picket/pkg/util/passwd"
)

// ErrAborted is returned when an interactive overwrite is declined.
var ErrAborted = errors.New("init aborted")

const (
	adminUser = "admin"
	certFile  = "cert.pem"
	keyFile   = "key.pem"
	certLife  = 10 * 365 * 24 * time.Hour
)

// Init writes a fresh site document at path with a random admin
// password, a self-signed certificate and a random listen port. An
// existing document is only replaced after interactive confirmation on
// in; a declined prompt returns ErrAborted. The generated admin
// password is reported on out.
func Init(path string, in io.Reader, out io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Site config %s exists, overwrite? (y/N) ", path)
		line, _ := bufio.NewReader(in).ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(line), "y") {
			fmt.Fprintln(out, "Aborted")
			return ErrAborted
		}
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("resolving site base: %w", err)
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return fmt.Errorf("creating site base: %w", err)
	}

	password, err := passwd.RandPass()
	if err != nil {
		return err
	}
	hash, err := passwd.CreateHash(password)
	if err != nil {
		return err
	}
	// dummy entry so unknown users still cost one verification
	decoy, err := passwd.RandPass()
	if err != nil {
		return err
	}
	decoyHash, err := passwd.CreateHash(decoy)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	certPath := filepath.Join(base, certFile)
	keyPath := filepath.Join(base, keyFile)
	if err := mkCert(hostname, certPath, keyPath); err != nil {
		return err
	}

	port, err := randPort()
	if err != nil {
		return err
	}
	doc := document{
		Base: base,
		WebUI: &WebConfig{
			Hostname: hostname,
			Port:     port,
			Cert:     certPath,
			Key:      keyPath,
			Users: map[string]string{
				adminUser: hash,
				"":        decoyHash,
			},
		},
		Actions: map[string]map[string]interface{}{},
		Checks:  map[string]map[string]interface{}{},
	}
	if err := writeDocument(path, doc); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created site config %s\n", path)
	fmt.Fprintf(out, "Web interface: https://%s:%d/\n", hostname, port)
	fmt.Fprintf(out, "Login with username %q and password %q\n", adminUser, password)
	return nil
}

// randPort picks an ephemeral listen port in 30000-62767.
func randPort() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<15))
	if err != nil {
		return 0, fmt.Errorf("choosing port: %w", err)
	}
	return 30000 + int(n.Int64()), nil
}

// mkCert mints a self-signed ECDSA certificate for the web interface.
func mkCert(hostname, certPath, keyPath string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("choosing serial: %w", err)
	}
	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostname},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLife),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{hostname, "localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDer, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}
	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer})
	if err := os.WriteFile(certPath, certPem, 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPem, 0o600); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}
