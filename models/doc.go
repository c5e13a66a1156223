// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain types, request/response shapes and the
rejection errors shared across packages.

School is a closed enum (primary/secondary) validated at every boundary
via ParseSchool. AuditRecord mirrors one row of the hash-chained
vote_audit table; its IPHash never serializes to JSON.
*/
package models
