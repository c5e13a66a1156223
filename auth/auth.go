// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"strings"
)

var ErrInvalidAdminKey = errors.New("invalid admin key")

// ValidateAdminKey checks the provided admin key in constant time
func ValidateAdminKey(key, configured string) error {
	if !hmac.Equal([]byte(key), []byte(configured)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// MaskIP reduces a client address to a privacy-preserving value.
// With hashed=true it returns the hex SHA-256 of ip+salt; otherwise it
// zeroes the last octet of an IPv4 address. Addresses that parse as
// neither IPv4 nor IPv6 yield "" (stored as NULL), never an error.
func MaskIP(ip string, hashed bool, salt string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}

	if hashed {
		sum := sha256.Sum256([]byte(ip + salt))
		return hex.EncodeToString(sum[:])
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}
	// No subnet convention configured for IPv6; treat as absent rather
	// than storing a fully identifying address.
	return ""
}
