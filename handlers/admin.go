// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/ballot"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/middleware"
	"github.com/mbergmann/elternwahl/models"
)

type AdminHandler struct {
	db    *sql.DB
	svc   *ballot.Service
	chain *audit.Chain
	cfg   cliparse.Config
}

func NewAdminHandler(db *sql.DB, svc *ballot.Service, chain *audit.Chain, cfg cliparse.Config) *AdminHandler {
	return &AdminHandler{db: db, svc: svc, chain: chain, cfg: cfg}
}

// GenerateTokens handles POST /admin/tokens/{school}
// Mints ?count fresh tokens and returns them as a CSV download.
func (h *AdminHandler) GenerateTokens(w http.ResponseWriter, r *http.Request) {
	school, err := models.ParseSchool(r.PathValue("school"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "school must be primary or secondary")
		return
	}

	count := 1
	if c := r.URL.Query().Get("count"); c != "" {
		count, err = strconv.Atoi(c)
		if err != nil || count < 1 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
	}

	tokens, err := h.svc.GenerateTokens(school, count)
	if err != nil {
		slog.Error("token generation failed", "error", err, "school", school, "count", count)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	if err := h.chain.LogAdmin(models.ActionTokensGenerated, map[string]any{
		"count":  len(tokens),
		"school": school,
	}); err != nil {
		slog.Error("failed to log admin action", "error", err, "action", models.ActionTokensGenerated)
	}

	slog.Info("tokens generated", "school", school, "count", len(tokens))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tokens-`+string(school)+`.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"Token"})
	for _, t := range tokens {
		cw.Write([]string{t})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("failed to write token CSV", "error", err)
	}
}

// AddCandidate handles POST /admin/candidates
func (h *AdminHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	var req models.AddCandidateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	school, err := models.ParseSchool(req.School)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "school must be primary or secondary")
		return
	}
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.svc.AddCandidate(school, req.Name); err != nil {
		slog.Error("failed to add candidate", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := h.chain.LogAdmin(models.ActionCandidateAdded, map[string]any{
		"school": school,
		"name":   req.Name,
	}); err != nil {
		slog.Error("failed to log admin action", "error", err, "action", models.ActionCandidateAdded)
	}

	middleware.JSONResponse(w, http.StatusCreated, map[string]string{"status": "created"})
}

// Summary handles GET /admin/summary
// Token usage and per-candidate vote counts for the overview page.
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var resp models.SummaryResponse
	resp.Schools = make(map[models.School]models.TokenTally)

	if err := h.db.QueryRow(`SELECT COUNT(*) FROM votes`).Scan(&resp.TotalVotes); err != nil {
		slog.Error("summary query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.Query(`
		SELECT school, COUNT(*), COUNT(*) FILTER (WHERE used) FROM tokens GROUP BY school
	`)
	if err != nil {
		slog.Error("summary query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var school models.School
		var tally models.TokenTally
		if err := rows.Scan(&school, &tally.Total, &tally.Used); err != nil {
			slog.Error("summary scan failed", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		resp.Schools[school] = tally
		resp.TotalTokens += tally.Total
		resp.UsedTokens += tally.Used
	}
	if err := rows.Err(); err != nil {
		slog.Error("summary query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp.Results, err = h.tallyResults()
	if err != nil {
		slog.Error("summary query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// tallyResults counts votes per (school, choice) in display order.
func (h *AdminHandler) tallyResults() ([]models.CandidateCount, error) {
	rows, err := h.db.Query(`
		SELECT school, choice, COUNT(*)::int AS count
		FROM votes
		GROUP BY school, choice
		ORDER BY school, choice
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.CandidateCount
	for rows.Next() {
		var cc models.CandidateCount
		if err := rows.Scan(&cc.School, &cc.Choice, &cc.Count); err != nil {
			return nil, err
		}
		results = append(results, cc)
	}
	return results, rows.Err()
}
