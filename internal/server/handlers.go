package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/geo"
	"github.com/tikpoptv/terrahost/internal/lineage"
	"github.com/tikpoptv/terrahost/internal/pipeline"
	"github.com/tikpoptv/terrahost/internal/report"
	"github.com/tikpoptv/terrahost/internal/tools"
	"github.com/tikpoptv/terrahost/internal/upload"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountAssetsByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"assets":            counts,
		"running_pipelines": s.processor.Running(),
	})
}

// --- Asset API ---

// handleAPIAssets handles /api/assets (collection)
func (s *Server) handleAPIAssets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		assets, err := s.db.ListAssets(r.Context(), asset.Status(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if assets == nil {
			assets = []database.Asset{}
		}
		writeJSON(w, http.StatusOK, assets)

	case http.MethodPost:
		s.handleUpload(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	a, err := s.uploader.Upload(r.Context(), upload.Request{
		FileName: header.Filename,
		OwnerID:  r.FormValue("owner_id"),
		Body:     file,
	})
	switch {
	case upload.Rejected(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, a)
	}
}

// handleAPIAsset handles /api/assets/{id} and its sub-resources
func (s *Server) handleAPIAsset(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing asset id")
		return
	}

	a, err := s.db.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	method := http.MethodGet
	switch sub {
	case "process":
		method = http.MethodPost
	case "reports":
		if r.Method == http.MethodPost {
			method = http.MethodPost
		}
	}
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, a)
	case "process":
		s.handleProcess(w, r, a)
	case "processing-status":
		s.handleProcessingStatus(w, r, a)
	case "sessions":
		sessions, err := s.db.ListSessions(r.Context(), a.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sessions == nil {
			sessions = []database.ProcessingSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	case "verification":
		writeJSON(w, http.StatusOK, s.auditor.Verify(r.Context(), a.ID))
	case "extent":
		s.handleExtent(w, r, a)
	case "lineage":
		s.handleLineage(w, r, a)
	case "reports":
		s.handleAssetReports(w, r, a)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, a *database.Asset) {
	outcome, err := s.processor.Start(r.Context(), a.ID)
	if err == nil {
		writeJSON(w, http.StatusOK, outcome)
		return
	}

	resp := map[string]string{"error": err.Error()}
	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.SessionID != "" {
		resp["session_id"] = perr.SessionID
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrBusy):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrRetrieval), errors.Is(err, pipeline.ErrExtraction), errors.Is(err, pipeline.ErrPersistence):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// processingStatus is the polling contract the dashboard depends on.
type processingStatus struct {
	HasSession      bool   `json:"hasSession"`
	SessionID       string `json:"sessionId,omitempty"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	StepDescription string `json:"stepDescription"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

func pollStatus(sessionStatus string) string {
	switch sessionStatus {
	case database.SessionStarted:
		return "initializing"
	case database.SessionProcessing:
		return "in_progress"
	case database.SessionCompleted:
		return "completed"
	case database.SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s *Server) handleProcessingStatus(w http.ResponseWriter, r *http.Request, a *database.Asset) {
	latest, err := s.db.LatestSession(r.Context(), a.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if latest == nil {
		writeJSON(w, http.StatusOK, processingStatus{Status: "unknown"})
		return
	}
	writeJSON(w, http.StatusOK, processingStatus{
		HasSession:      true,
		SessionID:       latest.ID,
		Status:          pollStatus(latest.Status),
		Progress:        latest.Progress,
		StepDescription: latest.StepDescription,
		ErrorMessage:    latest.ErrorMessage,
	})
}

// completedSession resolves ?session_id= or falls back to the latest
// completed session. It writes the error response itself.
func (s *Server) completedSession(w http.ResponseWriter, r *http.Request, a *database.Asset) (string, bool) {
	if id := r.URL.Query().Get("session_id"); id != "" {
		sess, err := s.db.GetSession(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return "", false
		}
		if sess == nil || sess.AssetID != a.ID {
			writeError(w, http.StatusNotFound, "session not found")
			return "", false
		}
		return sess.ID, true
	}
	sess, err := s.db.LatestCompletedSession(r.Context(), a.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return "", false
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "asset has no completed processing session")
		return "", false
	}
	return sess.ID, true
}

func (s *Server) handleExtent(w http.ResponseWriter, r *http.Request, a *database.Asset) {
	sessionID, ok := s.completedSession(w, r, a)
	if !ok {
		return
	}
	m, err := s.db.GetSpatialMetadata(r.Context(), a.ID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil || m.ExtentWKT == "" {
		writeError(w, http.StatusNotFound, "no extent recorded")
		return
	}
	feature, err := geo.Feature(m.ExtentWKT, map[string]any{
		"asset_id":   a.ID,
		"session_id": sessionID,
		"file_name":  a.FileName,
		"epsg_code":  m.EPSGCode,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(feature); err != nil {
		slog.Debug("encoding extent", "error", err)
	}
}

type edgeJSON struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request, a *database.Asset) {
	sessionID, ok := s.completedSession(w, r, a)
	if !ok {
		return
	}
	edges, err := lineage.Load(r.Context(), s.db, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]edgeJSON, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeJSON{From: e.From.String(), To: e.To.String(), Relation: string(e.Relation)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "edges": out})
}

// --- Report API ---

func (s *Server) handleAssetReports(w http.ResponseWriter, r *http.Request, a *database.Asset) {
	if r.Method == http.MethodGet {
		reports, err := s.db.ListReports(r.Context(), a.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if reports == nil {
			reports = []database.Report{}
		}
		writeJSON(w, http.StatusOK, reports)
		return
	}

	var req struct {
		Format string `json:"format"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	rpt, err := s.reportGen.Save(r.Context(), a.ID, req.Format)
	switch {
	case errors.Is(err, report.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, "format must be 'markdown' or 'pdf'")
	case errors.Is(err, report.ErrNoFont):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		rpt.Content = ""
		writeJSON(w, http.StatusCreated, rpt)
	}
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing report id")
		return
	}

	rpt, err := s.db.GetReport(r.Context(), parts[0])
	if err != nil || rpt == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	// Handle /api/reports/{id}/download
	if len(parts) > 1 && parts[1] == "download" {
		if rpt.FilePath != "" {
			ext := ".md"
			if rpt.Format == report.FormatPDF {
				ext = ".pdf"
			}
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report-%s%s", rpt.ID, ext))
			http.ServeFile(w, r, rpt.FilePath)
			return
		}
		if rpt.Format == report.FormatMarkdown && rpt.Content != "" {
			w.Header().Set("Content-Type", "text/markdown")
			w.Header().Set("Content-Disposition", "attachment; filename=report.md")
			w.Write([]byte(rpt.Content))
			return
		}
		writeError(w, http.StatusNotFound, "report file not found")
		return
	}

	writeJSON(w, http.StatusOK, rpt)
}

// --- Session API ---

// handleAPISession handles /api/sessions/{id} and /api/sessions/{id}/steps
func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)

	sess, err := s.db.GetSession(r.Context(), parts[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if len(parts) > 1 {
		if parts[1] != "steps" {
			http.NotFound(w, r)
			return
		}
		steps, err := s.db.ListSteps(r.Context(), sess.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if steps == nil {
			steps = []database.ProcessingStep{}
		}
		writeJSON(w, http.StatusOK, steps)
		return
	}

	counts, err := s.db.CountDerivedRows(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "derived_rows": counts})
}

// --- Worker Status API ---

func (s *Server) handleAPIWorkerStatus(w http.ResponseWriter, r *http.Request) {
	status := tools.DetectWorker(r.Context(), s.cfg.Worker.Binary, s.cfg.Worker.Args)
	writeJSON(w, http.StatusOK, map[string]any{
		"worker":  status,
		"ready":   status.Ready(),
		"timeout": s.cfg.Worker.Timeout.String(),
	})
}
