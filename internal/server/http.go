package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jharkins/wattson/internal/tracker"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events/set", s.handleRecordSet)
	mux.HandleFunc("POST /v1/events/closed", s.handleRecordClosed)
	mux.HandleFunc("POST /v1/events/install", s.handleRecordInstall)
	mux.HandleFunc("POST /v1/events/{id}/message", s.handleFinalizeMessage)
	mux.HandleFunc("DELETE /v1/events/{id}/message", s.handleAbandonMessage)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/deletions", s.handleStartDeletion)
	mux.HandleFunc("GET /v1/deletions/{token}/stream", s.handleDeletionStream)
	mux.HandleFunc("POST /v1/interactions", s.handleInteraction)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRecordSet handles POST /v1/events/set.
func (s *Server) handleRecordSet(w http.ResponseWriter, r *http.Request) {
	var in tracker.SetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	e, err := s.service.RecordSet(r.Context(), callerFromRequest(r), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleRecordClosed handles POST /v1/events/closed.
func (s *Server) handleRecordClosed(w http.ResponseWriter, r *http.Request) {
	var in tracker.ClosedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	e, err := s.service.RecordClosed(r.Context(), callerFromRequest(r), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleRecordInstall handles POST /v1/events/install.
func (s *Server) handleRecordInstall(w http.ResponseWriter, r *http.Request) {
	var in tracker.InstallInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	e, err := s.service.RecordInstall(r.Context(), callerFromRequest(r), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleFinalizeMessage handles POST /v1/events/{id}/message.
func (s *Server) handleFinalizeMessage(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.service.FinalizeMessage(r.Context(), id, body.MessageID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAbandonMessage handles DELETE /v1/events/{id}/message.
func (s *Server) handleAbandonMessage(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.AbandonMessage(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Stats(r.Context(), callerFromRequest(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport handles GET /v1/export. An empty ledger yields 204.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := tracker.ExportFormat(r.URL.Query().Get("format"))
	exp, err := s.service.Export(r.Context(), callerFromRequest(r), format)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if exp.RowCount == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	contentType := "text/csv"
	if format == tracker.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}

func eventID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", r.PathValue("id"))
	}
	return id, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
