// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mbergmann/elternwahl/auth"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/models"
)

// ISOLayout is the fixed timestamp representation used in signatures
// and canonical hashing. Millisecond precision, always UTC.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// chainLockKey scopes the Postgres advisory lock that serializes
// read-prev/compute/insert across concurrent appends. Without it two
// near-simultaneous appends could both read the same tail hash and
// branch the chain.
const chainLockKey = 0x657742 // "ewB"

// Chain owns the vote_audit and admin_audit tables.
type Chain struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewChain(db *sql.DB, cfg cliparse.Config) *Chain {
	return &Chain{db: db, cfg: cfg}
}

// Submission is the set of facts about an accepted redemption that the
// chain records.
type Submission struct {
	Token       string
	School      models.School
	Choices     []string
	SubmittedAt time.Time
	UserAgent   string
	ClientIP    string
	RequestID   string
}

// Append writes one audit record linked to the current chain tail.
// It never silently drops a record: any failure is returned to the
// caller for an operational alert.
func (c *Chain) Append(sub Submission) (models.AuditRecord, error) {
	rec := models.AuditRecord{
		Token:       sub.Token,
		School:      sub.School,
		Choices:     sub.Choices,
		ChoiceCount: len(sub.Choices),
		// Truncated to the hashed precision so the stored value survives
		// the database's microsecond timestamps unchanged; otherwise a
		// sub-millisecond remainder can round into the next millisecond
		// and re-verification would flag an untampered record.
		SubmittedAt: sub.SubmittedAt.UTC().Truncate(time.Millisecond),
		RequestID:   sub.RequestID,
	}
	if sub.UserAgent != "" {
		ua := sub.UserAgent
		rec.UserAgent = &ua
	}
	if masked := auth.MaskIP(sub.ClientIP, c.cfg.AuditHashIP, c.cfg.AuditSalt); masked != "" {
		rec.IPHash = &masked
	}
	rec.HMAC = c.sign(rec)

	tx, err := c.db.Begin()
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("begin audit append: %w", err)
	}
	defer tx.Rollback()

	// Held until commit; makes read-tail + insert atomic relative to
	// other appends.
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return models.AuditRecord{}, fmt.Errorf("acquire chain lock: %w", err)
	}

	err = tx.QueryRow(`
		SELECT chain_hash FROM vote_audit ORDER BY id DESC LIMIT 1
	`).Scan(&rec.ChainPrevHash)
	if err == sql.ErrNoRows {
		rec.ChainPrevHash = ""
	} else if err != nil {
		return models.AuditRecord{}, fmt.Errorf("read chain tail: %w", err)
	}

	rec.ChainHash = ChainHash(rec)

	err = tx.QueryRow(`
		INSERT INTO vote_audit
			(token, school, choices, choice_count, submitted_at, user_agent, ip_hash, request_id, hmac, chain_prev_hash, chain_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, rec.Token, rec.School, pq.Array(rec.Choices), rec.ChoiceCount, rec.SubmittedAt,
		rec.UserAgent, rec.IPHash, rec.RequestID, rec.HMAC, rec.ChainPrevHash, rec.ChainHash,
	).Scan(&rec.ID)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("insert audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.AuditRecord{}, fmt.Errorf("commit audit append: %w", err)
	}

	return rec, nil
}

// sign computes the HMAC tag over the pipe-joined submission facts.
// Choices are sorted first so the tag is independent of incidental
// submission order.
func (c *Chain) sign(rec models.AuditRecord) string {
	payload := strings.Join([]string{
		rec.Token,
		string(rec.School),
		strings.Join(sortedCopy(rec.Choices), "|"),
		rec.SubmittedAt.UTC().Format(ISOLayout),
		rec.RequestID,
	}, "|")

	mac := hmac.New(sha256.New, []byte(c.cfg.AuditHMACKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalRecord fixes the field set and order hashed into ChainHash.
// Everything except the chain hash itself is covered, including the
// previous hash, which is what links the records.
type canonicalRecord struct {
	Token         string         `json:"token"`
	School        models.School  `json:"school"`
	Choices       []string       `json:"choices"`
	ChoiceCount   int            `json:"choice_count"`
	SubmittedAt   string         `json:"submitted_at"`
	UserAgent     *string        `json:"user_agent"`
	IPHash        *string        `json:"ip_hash"`
	RequestID     string         `json:"request_id"`
	HMAC          string         `json:"hmac"`
	ChainPrevHash string         `json:"chain_prev_hash"`
}

// ChainHash computes a record's content hash from its canonical JSON
// form. Deterministic: struct fields marshal in declaration order and
// choices are sorted.
func ChainHash(rec models.AuditRecord) string {
	canonical := canonicalRecord{
		Token:         rec.Token,
		School:        rec.School,
		Choices:       sortedCopy(rec.Choices),
		ChoiceCount:   rec.ChoiceCount,
		SubmittedAt:   rec.SubmittedAt.UTC().Format(ISOLayout),
		UserAgent:     rec.UserAgent,
		IPHash:        rec.IPHash,
		RequestID:     rec.RequestID,
		HMAC:          rec.HMAC,
		ChainPrevHash: rec.ChainPrevHash,
	}
	// Marshal of a plain struct cannot fail
	buf, _ := json.Marshal(canonical)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Verify walks an ordered record sequence, recomputing every chain
// hash and prev link. It returns the index of the first tampered or
// reordered record, or -1 when the log is intact.
func Verify(records []models.AuditRecord) int {
	prev := ""
	for i, rec := range records {
		if rec.ChainPrevHash != prev {
			return i
		}
		recomputed := ChainHash(rec)
		if rec.ChainHash != recomputed {
			return i
		}
		prev = recomputed
	}
	return -1
}

func sortedCopy(choices []string) []string {
	out := make([]string, len(choices))
	copy(out, choices)
	sort.Strings(out)
	return out
}
