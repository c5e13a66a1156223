// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/cliparse"
	"github.com/mbergmann/elternwahl/db"
	"github.com/mbergmann/elternwahl/router"
)

// reconcileInterval paces the drift check between committed votes and
// the audit chain.
const reconcileInterval = 5 * time.Minute

func main() {
	var err error

	// Local development convenience; no .env is fine in production
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	// Periodic vote/audit drift alarm
	chain := audit.NewChain(dbConn, cfg)
	stopReconcile := make(chan struct{})
	go reconcileLoop(chain, stopReconcile)

	// Create router
	mux := router.NewRouter(dbConn, cfg)

	// Create server
	server := http.Server{
		Handler: mux,
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		close(stopReconcile)
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

// reconcileLoop periodically compares committed redemptions against
// audit chain length. The post-commit append is best-effort, so a
// mismatch means audit records were lost; that is an operator alert,
// never an automatic rewrite.
func reconcileLoop(chain *audit.Chain, stop <-chan struct{}) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			report, err := chain.Reconcile()
			if err != nil {
				slog.Error("audit reconciliation failed", "error", err)
				continue
			}
			if !report.Matches() {
				slog.Error("audit chain drift detected",
					"redemptions", report.Redemptions,
					"audit_records", report.AuditRecords,
				)
			}
		}
	}
}
