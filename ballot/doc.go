// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ballot implements token redemption, the heart of the election.

# Redemption

Submit consumes a token and records its choices in one transaction:

	receipt, err := svc.Submit(token, choices, meta)

The token row is locked (SELECT ... FOR UPDATE) before the used flag is
checked, so of two concurrent submissions of the same token exactly one
commits; the other sees no unused row and gets
models.ErrInvalidOrUsedToken. Vote inserts and the used flag flip share
the transaction - a failure anywhere before commit leaves the token
redeemable and no votes behind.

The audit append runs after commit and is best-effort: an append failure
is logged as an operational alert but never unwinds a committed vote.

# Token Minting

GenerateTokens draws fixed-length tokens from an alphabet without
visually ambiguous characters (no 0/O, 1/I/L):

	tokens, err := svc.GenerateTokens(models.SchoolPrimary, 50)

A uniqueness collision redraws that token up to 8 times; hitting the cap
fails the whole batch rather than returning a partial one.

# Bounds

Each school category has a fixed choice-count bound (default 12 primary,
7 secondary, via cliparse.Config). Empty or oversized ballots are
rejected before any row is written.
*/
package ballot
