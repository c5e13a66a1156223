// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides admin key checking and IP masking.

# Admin Keys

The admin key is a single configured secret compared in constant time:

	err := auth.ValidateAdminKey(headerValue, cfg.AdminKey)

# IP Masking

MaskIP reduces a client address to a privacy-preserving value before it
touches the audit log. Two modes, selected per deployment:

	auth.MaskIP(ip, true, salt)   // hex SHA-256 of ip+salt
	auth.MaskIP(ip, false, "")    // IPv4 /24 truncation: a.b.c.0

Unparseable addresses yield "" (stored as NULL), never an error.
*/
package auth
