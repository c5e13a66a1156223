// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Elternwahl API.

# Voting Flow

	POST /tokens/lookup → LookupToken (school, bound, candidates)
	POST /ballots       → SubmitBallot (redeems the token)

Both are public but gated by the configured voting window. Rejections
(invalid/used token, choice count out of range) come back as 422 with a
specific message; infrastructure failures as 500 with a generic one.

# Admin Operations

All admin routes require the X-Admin-Key header and append an admin
audit record:

	POST /admin/tokens/{school}   → GenerateTokens (CSV download)
	POST /admin/candidates        → AddCandidate
	GET  /admin/summary           → Summary (token usage, tallies)
	GET  /admin/export/tokens     → ExportTokens (CSV or ZIP)
	GET  /admin/export/results    → ExportResults (ZIP)
	GET  /admin/export/audit      → ExportAudit (offline verification bundle)
	GET  /admin/audit/verify      → VerifyChain (replay + reconcile)

Exports fail closed: with no underlying data they return 404 rather
than an empty artifact.
*/
package handlers
