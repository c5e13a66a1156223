// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// School is the closed set of school categories a token can belong to.
type School string

const (
	SchoolPrimary   School = "primary"
	SchoolSecondary School = "secondary"
)

// ParseSchool validates a school string at a trust boundary.
func ParseSchool(s string) (School, error) {
	switch School(strings.ToLower(strings.TrimSpace(s))) {
	case SchoolPrimary:
		return SchoolPrimary, nil
	case SchoolSecondary:
		return SchoolSecondary, nil
	}
	return "", fmt.Errorf("unknown school %q", s)
}

// Admin audit action names
const (
	ActionTokensGenerated    = "TOKENS_GENERATED"
	ActionCandidateAdded     = "CANDIDATE_ADDED"
	ActionTokensExportedCSV  = "TOKENS_EXPORTED_CSV"
	ActionResultsExportedCSV = "RESULTS_EXPORTED_CSV"
	ActionAuditExportedZIP   = "AUDIT_EXPORTED_ZIP"
)

// Rejection reasons surfaced to voters. Infrastructure failures are
// deliberately not in this set; they surface as a generic message.
var (
	ErrInvalidOrUsedToken    = errors.New("invalid or already used token")
	ErrChoiceCountOutOfRange = errors.New("choice count out of range")
)

// Request types

type TokenLookupRequest struct {
	Token string `json:"token"`
}

type SubmitBallotRequest struct {
	Token   string   `json:"token"`
	Choices []string `json:"choices"`
}

type AddCandidateRequest struct {
	School string `json:"school"`
	Name   string `json:"name"`
}

// Response types

type TokenLookupResponse struct {
	School     School   `json:"school"`
	MaxChoices int      `json:"max_choices"`
	Candidates []string `json:"candidates"`
}

type SubmitBallotResponse struct {
	School      School   `json:"school"`
	Choices     []string `json:"choices"`
	ChoiceCount int      `json:"choice_count"`
}

type VerifyChainResponse struct {
	Records      int  `json:"records"`
	Valid        bool `json:"valid"`
	FirstInvalid int  `json:"first_invalid"` // -1 when valid
	Redemptions  int  `json:"redemptions"`
	AuditRecords int  `json:"audit_records"`
	Reconciled   bool `json:"reconciled"`
}

type SummaryResponse struct {
	TotalVotes  int                   `json:"total_votes"`
	TotalTokens int                   `json:"total_tokens"`
	UsedTokens  int                   `json:"used_tokens"`
	Schools     map[School]TokenTally `json:"schools"`
	Results     []CandidateCount      `json:"results"`
}

type TokenTally struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

type CandidateCount struct {
	School School `json:"school"`
	Choice string `json:"choice"`
	Count  int    `json:"count"`
}

// Domain types

type Token struct {
	Token  string `json:"token"`
	School School `json:"school"`
	Used   bool   `json:"used"`
}

type Vote struct {
	ID        int       `json:"id"`
	Token     string    `json:"token"`
	School    School    `json:"school"`
	Choice    string    `json:"choice"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRecord is one link of the tamper-evident submission log.
// ChainHash covers every other field (with choices sorted) and
// ChainPrevHash is the ChainHash of the record inserted immediately
// before this one, or "" for the first record.
type AuditRecord struct {
	ID            int       `json:"id"`
	Token         string    `json:"token"`
	School        School    `json:"school"`
	Choices       []string  `json:"choices"` // original submission order
	ChoiceCount   int       `json:"choice_count"`
	SubmittedAt   time.Time `json:"submitted_at"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	IPHash        *string   `json:"-"` // never expose in JSON
	RequestID     string    `json:"request_id"`
	HMAC          string    `json:"hmac"`
	ChainPrevHash string    `json:"chain_prev_hash"`
	ChainHash     string    `json:"chain_hash"`
}

type AdminAuditRecord struct {
	ID     int            `json:"id"`
	Action string         `json:"action"`
	Meta   map[string]any `json:"meta"`
	At     time.Time      `json:"at"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
