// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/ballot"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/handlers"
	"github.com/mbergmann/elternwahl/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize services and handlers
	chain := audit.NewChain(db, cfg)
	svc := ballot.NewService(db, cfg, chain)
	votingHandler := handlers.NewVotingHandler(svc, cfg)
	adminHandler := handlers.NewAdminHandler(db, svc, chain, cfg)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Voter operations (public, only while the voting window is open)
	mux.HandleFunc("POST /tokens/lookup",
		middleware.WithLogging(middleware.RequireVotingOpen(cfg, votingHandler.LookupToken)))
	mux.HandleFunc("POST /ballots",
		middleware.WithLogging(middleware.RequireVotingOpen(cfg, votingHandler.SubmitBallot)))

	// Admin operations (X-Admin-Key header)
	mux.HandleFunc("POST /admin/tokens/{school}",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.GenerateTokens)))
	mux.HandleFunc("POST /admin/candidates",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.AddCandidate)))
	mux.HandleFunc("GET /admin/summary",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.Summary)))
	mux.HandleFunc("GET /admin/export/tokens",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.ExportTokens)))
	mux.HandleFunc("GET /admin/export/results",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.ExportResults)))
	mux.HandleFunc("GET /admin/export/audit",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.ExportAudit)))
	mux.HandleFunc("GET /admin/audit/verify",
		middleware.WithLogging(middleware.RequireAdmin(cfg, adminHandler.VerifyChain)))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("elternwahl API v1"))
	})

	return mux
}
