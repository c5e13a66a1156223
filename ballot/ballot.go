// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballot

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/models"
)

// Service owns the token and vote tables. All mutation goes through one
// transaction per redemption; the audit append runs after commit.
type Service struct {
	db    *sql.DB
	cfg   cliparse.Config
	chain *audit.Chain

	// test seam: runs inside the transaction after the vote inserts,
	// before the token is marked used
	beforeMarkUsed func(tx *sql.Tx) error
}

func NewService(db *sql.DB, cfg cliparse.Config, chain *audit.Chain) *Service {
	return &Service{db: db, cfg: cfg, chain: chain}
}

// Receipt echoes an accepted submission back to the voter.
type Receipt struct {
	School      models.School
	Choices     []string
	ChoiceCount int
}

// SubmissionMeta carries request facts that end up in the audit record
// but play no part in the redemption decision.
type SubmissionMeta struct {
	UserAgent string
	ClientIP  string
}

// Submit redeems a token for the given choices. The claim, the vote
// inserts and the used flag are one atomic unit: two concurrent
// submissions of the same token cannot both succeed, and a failure
// before commit leaves neither votes nor a consumed token behind.
func (s *Service) Submit(rawToken string, choices []string, meta SubmissionMeta) (Receipt, error) {
	token := NormalizeToken(rawToken)

	tx, err := s.db.Begin()
	if err != nil {
		return Receipt{}, fmt.Errorf("begin redemption: %w", err)
	}
	defer tx.Rollback()

	// Row lock so the losing side of a race re-evaluates used=FALSE
	// after the winner commits and finds no row.
	var school models.School
	err = tx.QueryRow(`
		SELECT school FROM tokens WHERE token = $1 AND used = FALSE FOR UPDATE
	`, token).Scan(&school)
	if err == sql.ErrNoRows {
		return Receipt{}, models.ErrInvalidOrUsedToken
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("claim token: %w", err)
	}

	maxChoices := s.cfg.MaxChoices(school)
	if len(choices) == 0 || len(choices) > maxChoices {
		return Receipt{}, models.ErrChoiceCountOutOfRange
	}

	// Duplicate choices are distinct ballot marks; insert them as given.
	for _, choice := range choices {
		_, err = tx.Exec(`
			INSERT INTO votes (token, school, choice) VALUES ($1, $2, $3)
		`, token, school, choice)
		if err != nil {
			return Receipt{}, fmt.Errorf("insert vote: %w", err)
		}
	}

	if s.beforeMarkUsed != nil {
		if err := s.beforeMarkUsed(tx); err != nil {
			return Receipt{}, err
		}
	}

	if _, err = tx.Exec(`UPDATE tokens SET used = TRUE WHERE token = $1`, token); err != nil {
		return Receipt{}, fmt.Errorf("mark token used: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("commit redemption: %w", err)
	}

	// Past the point of no return: the vote stands even if the audit
	// append fails. Re-running it would double-count, so a failure here
	// is an operational alert, not a voter-visible error.
	sub := audit.Submission{
		Token:       token,
		School:      school,
		Choices:     choices,
		SubmittedAt: time.Now().UTC(),
		UserAgent:   meta.UserAgent,
		ClientIP:    meta.ClientIP,
		RequestID:   uuid.NewString(),
	}
	if _, err := s.chain.Append(sub); err != nil {
		slog.Error("audit append failed; vote stands",
			"token", token,
			"request_id", sub.RequestID,
			"error", err,
		)
	}

	return Receipt{School: school, Choices: choices, ChoiceCount: len(choices)}, nil
}

// Lookup reports the school of an unused token without consuming it.
func (s *Service) Lookup(rawToken string) (models.School, error) {
	token := NormalizeToken(rawToken)

	var school models.School
	err := s.db.QueryRow(`
		SELECT school FROM tokens WHERE token = $1 AND used = FALSE
	`, token).Scan(&school)
	if err == sql.ErrNoRows {
		return "", models.ErrInvalidOrUsedToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	return school, nil
}

// Candidates lists the registered candidate names for a school.
func (s *Service) Candidates(school models.School) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM candidates WHERE school = $1 ORDER BY name
	`, school)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddCandidate registers a candidate name for a school.
func (s *Service) AddCandidate(school models.School, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO candidates (school, name) VALUES ($1, $2)
		ON CONFLICT (school, name) DO NOTHING
	`, school, name)
	if err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// maxTokenTries bounds the per-token retry loop on uniqueness collisions.
const maxTokenTries = 8

// GenerateTokens mints n fresh unused tokens for a school. A token that
// collides with an existing one is redrawn up to maxTokenTries times;
// if that cap is hit the whole batch fails rather than partially
// succeeding. Tokens already inserted by a failed batch stay valid.
func (s *Service) GenerateTokens(school models.School, n int) ([]string, error) {
	tokens := make([]string, 0, n)

	for i := 0; i < n; i++ {
		inserted := false
		for tries := 0; tries < maxTokenTries; tries++ {
			t, err := MakeToken(tokenLength)
			if err != nil {
				return nil, fmt.Errorf("draw token: %w", err)
			}
			_, err = s.db.Exec(`
				INSERT INTO tokens (token, school) VALUES ($1, $2)
			`, t, school)
			if err == nil {
				tokens = append(tokens, t)
				inserted = true
				break
			}
			if isUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("insert token: %w", err)
		}
		if !inserted {
			return nil, fmt.Errorf("could not mint a unique token after %d tries", maxTokenTries)
		}
	}

	return tokens, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
