// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package audit maintains the tamper-evident submission log.

# The Chain

Every accepted redemption appends one record. A record carries an
HMAC-SHA256 tag over its submission facts (choices sorted, so the tag is
order-independent) and a SHA-256 content hash over the canonical JSON of
all its fields including the previous record's hash:

	chain_hash = H(canonical(record minus chain_hash))
	chain_prev_hash = chain_hash of the previous record ("" for the first)

Appends take a Postgres advisory lock for the duration of the insert
transaction, so read-tail/compute/insert is atomic relative to other
appends and the log stays a single linear chain under concurrency.

# Verification

Verify replays an ordered export of the chain and returns the index of
the first record whose recomputed hash or prev link does not match, or
-1 for an intact log. Mutating any field of any record breaks
verification from that record onward. Verification needs no database
access and no secrets beyond the export itself.

# Admin Log

Privileged actions (token generation, exports) go to a separate,
unchained append log via LogAdmin.

# Reconciliation

Because the chain append is post-commit best-effort, Reconcile compares
the number of distinct redeeming tokens in the vote ledger with the
chain length. A mismatch is reported, never repaired automatically.
*/
package audit
