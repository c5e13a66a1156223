// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package audit

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/mbergmann/elternwahl/models"
)

// LogAdmin appends a privileged-action record to the admin audit log.
func (c *Chain) LogAdmin(action string, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	buf, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal admin audit meta: %w", err)
	}
	if _, err := c.db.Exec(`
		INSERT INTO admin_audit (action, meta) VALUES ($1, $2)
	`, action, buf); err != nil {
		return fmt.Errorf("insert admin audit record: %w", err)
	}
	return nil
}

// Records returns the full audit chain in insertion order.
func (c *Chain) Records() ([]models.AuditRecord, error) {
	rows, err := c.db.Query(`
		SELECT id, token, school, choices, choice_count, submitted_at,
		       user_agent, ip_hash, request_id, hmac, chain_prev_hash, chain_hash
		FROM vote_audit ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		err := rows.Scan(&rec.ID, &rec.Token, &rec.School, pq.Array(&rec.Choices),
			&rec.ChoiceCount, &rec.SubmittedAt, &rec.UserAgent, &rec.IPHash,
			&rec.RequestID, &rec.HMAC, &rec.ChainPrevHash, &rec.ChainHash)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AdminRecords returns the admin audit log in insertion order.
func (c *Chain) AdminRecords() ([]models.AdminAuditRecord, error) {
	rows, err := c.db.Query(`SELECT id, action, meta, at FROM admin_audit ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query admin audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AdminAuditRecord
	for rows.Next() {
		var rec models.AdminAuditRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.Action, &meta, &rec.At); err != nil {
			return nil, fmt.Errorf("scan admin audit record: %w", err)
		}
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("decode admin audit meta: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReconcileReport compares committed redemptions against audit records.
// The post-commit append is best-effort, so the counts can drift; drift
// means audit records were lost and operators need to know.
type ReconcileReport struct {
	Redemptions  int
	AuditRecords int
}

func (r ReconcileReport) Matches() bool {
	return r.Redemptions == r.AuditRecords
}

// Reconcile counts distinct redeeming tokens in the vote ledger and
// rows in the audit chain.
func (c *Chain) Reconcile() (ReconcileReport, error) {
	var report ReconcileReport
	err := c.db.QueryRow(`SELECT COUNT(DISTINCT token) FROM votes`).Scan(&report.Redemptions)
	if err != nil {
		return report, fmt.Errorf("count redemptions: %w", err)
	}
	err = c.db.QueryRow(`SELECT COUNT(*) FROM vote_audit`).Scan(&report.AuditRecords)
	if err != nil {
		return report, fmt.Errorf("count audit records: %w", err)
	}
	return report, nil
}
