/*
Package cliparse parses configuration from CLI flags and environment
variables.

Flags win over env vars. DATABASE_URL and ADMIN_KEY are mandatory. The
audit secrets (AUDIT_HMAC_KEY, AUDIT_SALT) intentionally fall back to
fixed, clearly-non-production defaults instead of failing: signing with
the fallback key is still deterministic and verifiable, and deployment
tooling owns making sure real secrets are set in production.

Ballot bounds default to 12 choices for primary and 7 for secondary;
VOTING_START/VOTING_END (RFC 3339) optionally bound the voting window.
*/
package cliparse
