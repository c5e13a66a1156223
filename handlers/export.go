// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/mbergmann/elternwahl/audit"
	"github.com/mbergmann/elternwahl/middleware"
	"github.com/mbergmann/elternwahl/models"
)

// BuildVersion identifies the running build in audit export bundles.
// Overridden at link time: -ldflags "-X .../handlers.BuildVersion=<sha>"
var BuildVersion = "dev"

func buildVersion() string {
	if commit := os.Getenv("COMMIT"); commit != "" {
		return commit
	}
	return BuildVersion
}

// ExportTokens handles GET /admin/export/tokens
// Per-school token CSVs; a single school downloads as bare CSV, both as
// a ZIP. Fails closed with 404 when no tokens exist.
func (h *AdminHandler) ExportTokens(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`SELECT token, school, used FROM tokens ORDER BY school, token`)
	if err != nil {
		slog.Error("token export query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	bySchool := make(map[models.School][][]string)
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.Token, &t.School, &t.Used); err != nil {
			slog.Error("token export scan failed", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		used := "no"
		if t.Used {
			used = "yes"
		}
		bySchool[t.School] = append(bySchool[t.School], []string{t.Token, string(t.School), used})
	}
	if err := rows.Err(); err != nil {
		slog.Error("token export query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if len(bySchool) == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "No tokens available")
		return
	}

	header := []string{"Token", "School", "Used"}
	files := make(map[string][]byte)
	var schools []string
	for _, school := range []models.School{models.SchoolPrimary, models.SchoolSecondary} {
		if recs, ok := bySchool[school]; ok {
			files["tokens-"+string(school)+".csv"] = csvBytes(header, recs)
			schools = append(schools, string(school))
		}
	}

	if err := h.chain.LogAdmin(models.ActionTokensExportedCSV, map[string]any{
		"schools": schools,
	}); err != nil {
		slog.Error("failed to log admin action", "error", err, "action", models.ActionTokensExportedCSV)
	}

	serveFiles(w, files, "tokens.zip")
}

// ExportResults handles GET /admin/export/results
// Per-school (candidate, votes) CSVs zipped. 404 when no votes exist.
func (h *AdminHandler) ExportResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.tallyResults()
	if err != nil {
		slog.Error("results export query failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if len(results) == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "No votes recorded")
		return
	}

	bySchool := make(map[models.School][][]string)
	for _, cc := range results {
		bySchool[cc.School] = append(bySchool[cc.School], []string{cc.Choice, strconv.Itoa(cc.Count)})
	}

	header := []string{"Candidate", "Votes"}
	files := make(map[string][]byte)
	var schools []string
	for _, school := range []models.School{models.SchoolPrimary, models.SchoolSecondary} {
		if recs, ok := bySchool[school]; ok {
			files["results-"+string(school)+".csv"] = csvBytes(header, recs)
			schools = append(schools, string(school))
		}
	}

	if err := h.chain.LogAdmin(models.ActionResultsExportedCSV, map[string]any{
		"schools": schools,
	}); err != nil {
		slog.Error("failed to log admin action", "error", err, "action", models.ActionResultsExportedCSV)
	}

	serveFiles(w, files, "results.zip")
}

// ExportAudit handles GET /admin/export/audit
// The offline verification bundle: the full audit chain, the admin
// audit log, and a version marker, zipped. A third party can re-run
// chain verification from this artifact alone.
func (h *AdminHandler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.chain.Records()
	if err != nil {
		slog.Error("audit export failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	adminRecords, err := h.chain.AdminRecords()
	if err != nil {
		slog.Error("audit export failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if len(records) == 0 && len(adminRecords) == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "No audit records available")
		return
	}

	voteHeader := []string{
		"id", "token", "school", "choices", "choice_count", "submitted_at",
		"user_agent", "ip_hash", "request_id", "hmac", "chain_prev_hash", "chain_hash",
	}
	voteRows := make([][]string, 0, len(records))
	for _, rec := range records {
		choices, _ := json.Marshal(rec.Choices)
		voteRows = append(voteRows, []string{
			strconv.Itoa(rec.ID),
			rec.Token,
			string(rec.School),
			string(choices),
			strconv.Itoa(rec.ChoiceCount),
			rec.SubmittedAt.UTC().Format(audit.ISOLayout),
			strOrEmpty(rec.UserAgent),
			strOrEmpty(rec.IPHash),
			rec.RequestID,
			rec.HMAC,
			rec.ChainPrevHash,
			rec.ChainHash,
		})
	}

	adminHeader := []string{"id", "action", "meta", "at"}
	adminRows := make([][]string, 0, len(adminRecords))
	for _, rec := range adminRecords {
		meta, _ := json.Marshal(rec.Meta)
		adminRows = append(adminRows, []string{
			strconv.Itoa(rec.ID),
			rec.Action,
			string(meta),
			rec.At.UTC().Format(audit.ISOLayout),
		})
	}

	version := fmt.Sprintf("version=%s\nexported_at=%s\n",
		buildVersion(), time.Now().UTC().Format(audit.ISOLayout))

	files := map[string][]byte{
		"vote_audit.csv":  csvBytes(voteHeader, voteRows),
		"admin_audit.csv": csvBytes(adminHeader, adminRows),
		"VERSION.txt":     []byte(version),
	}

	if err := h.chain.LogAdmin(models.ActionAuditExportedZIP, map[string]any{
		"vote_records":  len(records),
		"admin_records": len(adminRecords),
	}); err != nil {
		slog.Error("failed to log admin action", "error", err, "action", models.ActionAuditExportedZIP)
	}

	serveZip(w, files, "audit_bundle.zip")
}

// VerifyChain handles GET /admin/audit/verify
// Replays the stored chain and compares redemption counts against it.
func (h *AdminHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	records, err := h.chain.Records()
	if err != nil {
		slog.Error("chain verification failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	firstInvalid := audit.Verify(records)

	report, err := h.chain.Reconcile()
	if err != nil {
		slog.Error("audit reconciliation failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.VerifyChainResponse{
		Records:      len(records),
		Valid:        firstInvalid == -1,
		FirstInvalid: firstInvalid,
		Redemptions:  report.Redemptions,
		AuditRecords: report.AuditRecords,
		Reconciled:   report.Matches(),
	})
}

func csvBytes(header []string, rows [][]string) []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Write(header)
	cw.WriteAll(rows)
	cw.Flush()
	return buf.Bytes()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// serveFiles sends a bare CSV when there is exactly one file, a ZIP
// bundle otherwise.
func serveFiles(w http.ResponseWriter, files map[string][]byte, zipName string) {
	if len(files) == 1 {
		for name, data := range files {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
			w.Write(data)
		}
		return
	}
	serveZip(w, files, zipName)
}

func serveZip(w http.ResponseWriter, files map[string][]byte, zipName string) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// Fixed order keeps bundles reproducible
	for _, name := range sortedNames(files) {
		f, err := zw.Create(name)
		if err != nil {
			slog.Error("failed to build zip", "error", err, "file", name)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build archive")
			return
		}
		if _, err := f.Write(files[name]); err != nil {
			slog.Error("failed to build zip", "error", err, "file", name)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build archive")
			return
		}
	}
	if err := zw.Close(); err != nil {
		slog.Error("failed to finalize zip", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+zipName+`"`)
	w.Write(buf.Bytes())
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
