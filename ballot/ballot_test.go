// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballot

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/models"
	"github.com/mbergmann/elternwahl/testutil"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { db.Close() })

	cfg := testutil.GetTestConfig()
	chain := audit.NewChain(db, cfg)
	return NewService(db, cfg, chain), db
}

func TestSubmit(t *testing.T) {
	svc, db := newTestService(t)

	testutil.CreateTestToken(t, db, "T1AAAAAA", models.SchoolPrimary, false)

	receipt, err := svc.Submit("T1AAAAAA", []string{"Anna GS", "Clara GS"}, SubmissionMeta{
		UserAgent: "test-agent",
		ClientIP:  "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if receipt.School != models.SchoolPrimary {
		t.Errorf("Submit() school = %s, want primary", receipt.School)
	}
	if receipt.ChoiceCount != 2 {
		t.Errorf("Submit() choice_count = %d, want 2", receipt.ChoiceCount)
	}

	if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM votes WHERE token = $1`, "T1AAAAAA"); n != 2 {
		t.Errorf("Expected 2 vote rows, got %d", n)
	}
	if !testutil.TokenUsed(t, db, "T1AAAAAA") {
		t.Error("Token should be marked used after submission")
	}

	// Exactly one audit record, linked to nothing
	var choiceCount int
	var prevHash string
	err = db.QueryRow(`SELECT choice_count, chain_prev_hash FROM vote_audit WHERE token = $1`, "T1AAAAAA").
		Scan(&choiceCount, &prevHash)
	if err != nil {
		t.Fatalf("Expected one audit record: %v", err)
	}
	if choiceCount != 2 {
		t.Errorf("Audit choice_count = %d, want 2", choiceCount)
	}
	if prevHash != "" {
		t.Errorf("First audit record chain_prev_hash = %q, want empty", prevHash)
	}

	// Second submission with the same token must be rejected cleanly
	_, err = svc.Submit("T1AAAAAA", []string{"Anna GS"}, SubmissionMeta{})
	if !errors.Is(err, models.ErrInvalidOrUsedToken) {
		t.Errorf("Resubmission error = %v, want ErrInvalidOrUsedToken", err)
	}
	if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM votes WHERE token = $1`, "T1AAAAAA"); n != 2 {
		t.Errorf("Resubmission must not add vote rows, got %d", n)
	}
	if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM vote_audit`); n != 1 {
		t.Errorf("Resubmission must not add audit records, got %d", n)
	}
}

func TestSubmitUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Submit("NOSUCHTK", []string{"Anna GS"}, SubmissionMeta{})
	if !errors.Is(err, models.ErrInvalidOrUsedToken) {
		t.Errorf("Submit() error = %v, want ErrInvalidOrUsedToken", err)
	}
}

func TestSubmitNormalizesToken(t *testing.T) {
	svc, db := newTestService(t)

	testutil.CreateTestToken(t, db, "ABCD2345", models.SchoolSecondary, false)

	// Lowercase with surrounding whitespace must still redeem
	_, err := svc.Submit("  abcd2345 \n", []string{"David MS"}, SubmissionMeta{})
	if err != nil {
		t.Fatalf("Submit() with unnormalized token error = %v", err)
	}
	if !testutil.TokenUsed(t, db, "ABCD2345") {
		t.Error("Normalized token should be marked used")
	}
}

func TestSubmitChoiceBounds(t *testing.T) {
	tests := []struct {
		name    string
		school  models.School
		choices []string
	}{
		{"zero choices primary", models.SchoolPrimary, nil},
		{"zero choices secondary", models.SchoolSecondary, []string{}},
		{"thirteen choices primary", models.SchoolPrimary, manyChoices(13)},
		{"eight choices secondary", models.SchoolSecondary, manyChoices(8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newTestService(t)
			testutil.CreateTestToken(t, db, "BOUNDTOK", tt.school, false)

			_, err := svc.Submit("BOUNDTOK", tt.choices, SubmissionMeta{})
			if !errors.Is(err, models.ErrChoiceCountOutOfRange) {
				t.Errorf("Submit() error = %v, want ErrChoiceCountOutOfRange", err)
			}

			// Rejection must leave no trace
			if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM votes`); n != 0 {
				t.Errorf("Expected 0 vote rows after rejection, got %d", n)
			}
			if testutil.TokenUsed(t, db, "BOUNDTOK") {
				t.Error("Token must stay unused after rejection")
			}
			if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM vote_audit`); n != 0 {
				t.Errorf("Expected 0 audit records after rejection, got %d", n)
			}
		})
	}
}

func TestSubmitAtBound(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreateTestToken(t, db, "FULLBALL", models.SchoolSecondary, false)

	// Exactly maxChoices(secondary) = 7 is legal
	receipt, err := svc.Submit("FULLBALL", manyChoices(7), SubmissionMeta{})
	if err != nil {
		t.Fatalf("Submit() at bound error = %v", err)
	}
	if receipt.ChoiceCount != 7 {
		t.Errorf("choice_count = %d, want 7", receipt.ChoiceCount)
	}
}

func TestSubmitPreservesDuplicateChoices(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreateTestToken(t, db, "DUPDUPDU", models.SchoolPrimary, false)

	// Two marks for the same candidate are two ballot marks
	_, err := svc.Submit("DUPDUPDU", []string{"Anna GS", "Anna GS"}, SubmissionMeta{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	n := testutil.CountRows(t, db,
		`SELECT COUNT(*) FROM votes WHERE token = $1 AND choice = $2`, "DUPDUPDU", "Anna GS")
	if n != 2 {
		t.Errorf("Expected 2 vote rows for duplicated choice, got %d", n)
	}
}

func TestSubmitRollsBackOnFailure(t *testing.T) {
	svc, db := newTestService(t)
	testutil.CreateTestToken(t, db, "ROLLBACK", models.SchoolPrimary, false)

	// Fail between the vote inserts and the used flag flip
	svc.beforeMarkUsed = func(tx *sql.Tx) error {
		return errors.New("injected storage failure")
	}

	_, err := svc.Submit("ROLLBACK", []string{"Anna GS"}, SubmissionMeta{})
	if err == nil {
		t.Fatal("Submit() should fail when the transaction fails mid-flight")
	}
	if errors.Is(err, models.ErrInvalidOrUsedToken) || errors.Is(err, models.ErrChoiceCountOutOfRange) {
		t.Errorf("Infrastructure failure must not map to a validation error, got %v", err)
	}

	// All-or-nothing: no votes, token still redeemable, no audit record
	if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM votes`); n != 0 {
		t.Errorf("Expected 0 vote rows after rollback, got %d", n)
	}
	if testutil.TokenUsed(t, db, "ROLLBACK") {
		t.Error("Token must stay unused after rollback")
	}
	if n := testutil.CountRows(t, db, `SELECT COUNT(*) FROM vote_audit`); n != 0 {
		t.Errorf("Expected 0 audit records after rollback, got %d", n)
	}

	// The token is still redeemable afterwards
	svc.beforeMarkUsed = nil
	if _, err := svc.Submit("ROLLBACK", []string{"Anna GS"}, SubmissionMeta{}); err != nil {
		t.Fatalf("Token should be redeemable after a rolled-back attempt: %v", err)
	}
}

func TestLookup(t *testing.T) {
	svc, db := newTestService(t)

	testutil.CreateTestToken(t, db, "LOOKUPAA", models.SchoolSecondary, false)
	testutil.CreateTestToken(t, db, "USEDUSED", models.SchoolSecondary, true)

	school, err := svc.Lookup("lookupaa")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if school != models.SchoolSecondary {
		t.Errorf("Lookup() school = %s, want secondary", school)
	}

	// Lookup must not consume the token
	if testutil.TokenUsed(t, db, "LOOKUPAA") {
		t.Error("Lookup must not mark the token used")
	}

	if _, err := svc.Lookup("USEDUSED"); !errors.Is(err, models.ErrInvalidOrUsedToken) {
		t.Errorf("Lookup(used) error = %v, want ErrInvalidOrUsedToken", err)
	}
	if _, err := svc.Lookup("MISSING1"); !errors.Is(err, models.ErrInvalidOrUsedToken) {
		t.Errorf("Lookup(missing) error = %v, want ErrInvalidOrUsedToken", err)
	}
}

func TestGenerateTokens(t *testing.T) {
	svc, db := newTestService(t)

	tokens, err := svc.GenerateTokens(models.SchoolPrimary, 25)
	if err != nil {
		t.Fatalf("GenerateTokens() error = %v", err)
	}
	if len(tokens) != 25 {
		t.Fatalf("GenerateTokens() returned %d tokens, want 25", len(tokens))
	}

	seen := make(map[string]bool)
	for _, token := range tokens {
		if len(token) != tokenLength {
			t.Errorf("Token %q has length %d, want %d", token, len(token), tokenLength)
		}
		for _, c := range token {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Errorf("Token %q contains %q outside the alphabet", token, c)
			}
		}
		if seen[token] {
			t.Errorf("Duplicate token in batch: %q", token)
		}
		seen[token] = true
	}

	if n := testutil.CountRows(t, db,
		`SELECT COUNT(*) FROM tokens WHERE school = 'primary' AND used = FALSE`); n != 25 {
		t.Errorf("Expected 25 unused primary tokens in store, got %d", n)
	}
}

func TestMakeToken(t *testing.T) {
	token, err := MakeToken(tokenLength)
	if err != nil {
		t.Fatalf("MakeToken() error = %v", err)
	}
	if len(token) != tokenLength {
		t.Errorf("MakeToken() length = %d, want %d", len(token), tokenLength)
	}

	// Alphabet excludes visually ambiguous characters
	for _, c := range "0O1IL" {
		if strings.ContainsRune(tokenAlphabet, c) {
			t.Errorf("Alphabet must not contain ambiguous character %q", c)
		}
	}

	// Two draws colliding is astronomically unlikely
	other, _ := MakeToken(tokenLength)
	if token == other {
		t.Error("MakeToken() produced duplicate tokens (extremely unlikely)")
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcd2345", "ABCD2345"},
		{"  ABCD2345  ", "ABCD2345"},
		{"\tmixedCase23\n", "MIXEDCASE23"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeToken(tt.in); got != tt.want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func manyChoices(n int) []string {
	choices := make([]string, n)
	for i := range choices {
		choices[i] = "Candidate " + string(rune('A'+i))
	}
	return choices
}
