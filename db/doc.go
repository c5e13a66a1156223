// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

CreateSchema is idempotent (IF NOT EXISTS) and runs at startup. Tables:
tokens, candidates, votes, vote_audit (hash-chained), admin_audit.
*/
package db
