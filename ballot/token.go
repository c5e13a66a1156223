// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballot

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// tokenAlphabet omits 0/O, 1/I/L to keep hand-typed tokens unambiguous.
const tokenAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const tokenLength = 8

// MakeToken draws a random fixed-length token from the alphabet.
func MakeToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to draw token bytes: %w", err)
	}
	out := make([]byte, length)
	for i, v := range b {
		out[i] = tokenAlphabet[int(v)%len(tokenAlphabet)]
	}
	return string(out), nil
}

// NormalizeToken maps user-typed token text onto the generation
// alphabet's case: trimmed and uppercased.
func NormalizeToken(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
