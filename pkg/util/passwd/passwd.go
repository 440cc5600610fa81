// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package passwd provides argon2id password hashing in PHC string format
// and random passkey generation for the web interface users.
package passwd

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost   = 3
	memoryCost = 64 * 1024
	threads    = 1
	keyLen     = 32
	saltLen    = 16

	// passChars is a power-of-two alphabet so random bytes map to
	// characters without modulo bias.
	passChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-."
	passLen   = 12
)

var b64 = base64.RawStdEncoding

// CreateHash returns an argon2id PHC hash of pw with a random salt.
func CreateHash(pw string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	key := argon2.IDKey([]byte(pw), salt, timeCost, memoryCost, threads, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memoryCost, timeCost, threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether pw matches the PHC encoded hash.
func Verify(pw, hash string) bool {
	if len(hash) > 1024 {
		hash = hash[:1024]
	}
	fields := strings.Split(hash, "$")
	if len(fields) != 6 || fields[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return false
	}
	want, err := b64.DecodeString(fields[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(pw), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// RandPass returns a random passkey suitable for an initial admin password.
func RandPass() (string, error) {
	raw := make([]byte, passLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading passkey: %w", err)
	}
	pv := make([]byte, passLen)
	for i, b := range raw {
		pv[i] = passChars[int(b)&(len(passChars)-1)]
	}
	return string(pv), nil
}
