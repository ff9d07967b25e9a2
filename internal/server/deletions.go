package server

import (
	"encoding/json"
	"net/http"

	"github.com/jharkins/wattson/internal/workflow"
)

// handleStartDeletion handles POST /v1/deletions. A zero or absent event_id
// opens a listing flow; otherwise the named event goes straight to
// confirmation. The flow's updates are consumed from the stream endpoint.
func (s *Server) handleStartDeletion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID int64 `json:"event_id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	inst, err := s.service.StartDeletion(r.Context(), callerFromRequest(r), body.EventID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.addFlow(inst)

	writeJSON(w, http.StatusCreated, map[string]string{"token": inst.Token})
}

// handleDeletionStream handles GET /v1/deletions/{token}/stream: it streams
// the flow's updates as server-sent events until the flow settles. Each flow
// has a single consumer; a second subscriber finds nothing.
func (s *Server) handleDeletionStream(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.takeFlow(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown deletion flow")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case u, open := <-inst.Updates:
			if !open {
				return
			}
			if err := writeSSE(w, u); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSE renders one update as an SSE frame, typed by its kind.
func writeSSE(w http.ResponseWriter, u workflow.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("event: " + string(u.Kind) + "\ndata: " + string(data) + "\n\n"))
	return err
}

// handleInteraction handles POST /v1/interactions: it routes a caller's
// prompt action to the deletion flow waiting on it.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token  string          `json:"token"`
		Action workflow.Action `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.service.DeliverAction(r.Context(), callerFromRequest(r), body.Token, body.Action); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
