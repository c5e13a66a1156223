// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mbergmann/elternwahl/ballot"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/middleware"
	"github.com/mbergmann/elternwahl/models"
)

type VotingHandler struct {
	svc *ballot.Service
	cfg cliparse.Config
}

func NewVotingHandler(svc *ballot.Service, cfg cliparse.Config) *VotingHandler {
	return &VotingHandler{svc: svc, cfg: cfg}
}

// LookupToken handles POST /tokens/lookup
// It shows a voter their school and candidate list without consuming
// the token.
func (h *VotingHandler) LookupToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenLookupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Token == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "token is required")
		return
	}

	school, err := h.svc.Lookup(req.Token)
	if errors.Is(err, models.ErrInvalidOrUsedToken) {
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, "Invalid or already used token")
		return
	}
	if err != nil {
		slog.Error("token lookup failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	candidates, err := h.svc.Candidates(school)
	if err != nil {
		slog.Error("failed to list candidates", "error", err, "school", school)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TokenLookupResponse{
		School:     school,
		MaxChoices: h.cfg.MaxChoices(school),
		Candidates: candidates,
	})
}

// SubmitBallot handles POST /ballots
func (h *VotingHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Token == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "token is required")
		return
	}

	meta := ballot.SubmissionMeta{
		UserAgent: r.UserAgent(),
		ClientIP:  middleware.GetClientIP(r),
	}

	receipt, err := h.svc.Submit(req.Token, req.Choices, meta)
	if errors.Is(err, models.ErrInvalidOrUsedToken) {
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, "Invalid or already used token")
		return
	}
	if errors.Is(err, models.ErrChoiceCountOutOfRange) {
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity,
			"Between 1 and the school's maximum number of choices must be submitted")
		return
	}
	if err != nil {
		// Infrastructure failure: rolled back, generic message only
		slog.Error("ballot submission failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save votes")
		return
	}

	slog.Info("ballot submitted",
		"school", receipt.School,
		"choice_count", receipt.ChoiceCount,
	)

	middleware.JSONResponse(w, http.StatusCreated, models.SubmitBallotResponse{
		School:      receipt.School,
		Choices:     receipt.Choices,
		ChoiceCount: receipt.ChoiceCount,
	})
}
