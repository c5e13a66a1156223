// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and response helpers.

RequireAdmin gates privileged routes on the X-Admin-Key header and
RequireVotingOpen rejects voter requests outside the configured window.
WithLogging, JSONResponse, ErrorResponse, ParseJSONBody and GetClientIP
are shared plumbing used by every handler.
*/
package middleware
