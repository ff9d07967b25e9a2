// Package server exposes the tracker service over HTTP.
package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jharkins/wattson/internal/tracker"
	"github.com/jharkins/wattson/internal/workflow"
)

// Server holds the HTTP surface and the deletion flows awaiting consumers.
type Server struct {
	service *tracker.Service
	logger  *slog.Logger

	mu    sync.Mutex
	flows map[string]*pendingFlow
}

// pendingFlow is a started deletion flow waiting for its stream consumer.
type pendingFlow struct {
	inst    *workflow.Instance
	expires time.Time
}

func New(service *tracker.Service, logger *slog.Logger) *Server {
	return &Server{
		service: service,
		logger:  logger,
		flows:   make(map[string]*pendingFlow),
	}
}

// flowRetention is how long an unconsumed flow is kept. Flows settle on
// their own well inside this window, so anything older was abandoned.
const flowRetention = 5 * time.Minute

// addFlow stores a started flow and prunes abandoned ones.
func (s *Server) addFlow(inst *workflow.Instance) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, f := range s.flows {
		if now.After(f.expires) {
			delete(s.flows, token)
		}
	}
	s.flows[inst.Token] = &pendingFlow{inst: inst, expires: now.Add(flowRetention)}
}

// takeFlow removes and returns the flow for token, if any.
func (s *Server) takeFlow(token string) (*workflow.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[token]
	if !ok {
		return nil, false
	}
	delete(s.flows, token)
	return f.inst, true
}

// callerFromRequest reads the caller identity the gateway forwards.
func callerFromRequest(r *http.Request) tracker.Caller {
	c := tracker.Caller{ID: r.Header.Get("X-Actor-ID")}
	if roles := r.Header.Get("X-Actor-Roles"); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				c.Roles = append(c.Roles, role)
			}
		}
	}
	return c
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var ie tracker.InputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, tracker.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, workflow.ErrForeignActor):
		writeError(w, http.StatusForbidden, "prompt belongs to another caller")
	case errors.Is(err, workflow.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, workflow.ErrUnknownPrompt):
		writeError(w, http.StatusNotFound, "no pending prompt for token")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// AuthMiddleware enforces bearer token authentication when token is non-empty.
// GET /v1/health stays reachable without credentials.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}
		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
