// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Elternwahl API server.

Elternwahl runs a single-use-token ballot for school parent council
elections: each participant redeems a one-time token to cast a bounded
number of choices, and every accepted submission lands in a hash-chained
audit log that can be verified offline.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=postgres://... ADMIN_KEY=... go run main.go

Or with flags:

	go run main.go -p 3000 -d "postgres://..." -admin-key "..."

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string
  - ADMIN_KEY (-admin-key): Secret for the X-Admin-Key header

Optional settings:

  - PORT (-p): Server port (default: 3000)
  - AUDIT_HMAC_KEY (-audit-key): Key for submission HMAC tags
    (falls back to a fixed dev value so signing stays verifiable)
  - AUDIT_SALT (-audit-salt): Salt for IP masking
  - AUDIT_HASH_IP: "1" hashes client IPs, otherwise /24 truncation
  - MAX_CHOICES_PRIMARY / MAX_CHOICES_SECONDARY: ballot bounds (12 / 7)
  - VOTING_START / VOTING_END: RFC 3339 voting window bounds

# Architecture

The server uses a handler-based architecture with dependency injection:

  - ballot: transactional token redemption and token minting
  - audit: hash-chained submission log and admin action log
  - handlers: HTTP request handlers (voting, admin, exports)
  - router: Route definitions using Go 1.22+ routing
  - middleware: admin gate, voting window gate, logging, JSON helpers
  - models: Request/response and domain types
  - auth: admin key checking and IP masking
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
