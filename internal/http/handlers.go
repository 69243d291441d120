package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medtriage/internal/auth"
	"medtriage/internal/core"
	"medtriage/internal/logger"
	"medtriage/pkg"
)

// Server exposes the engine's operational surface as JSON over HTTP. It
// implements http.Handler. Rendering of chat bubbles and forms happens in a
// separate frontend that polls these endpoints.
type Server struct {
	svc     *core.Service
	router  *mux.Router
	authn   auth.Authenticator
	limiter *limiterPool
}

// NewServer wires the routes. Mutating chat endpoints sit behind a
// per-user rate limiter.
func NewServer(svc *core.Service, authn auth.Authenticator, rps float64, burst int) *Server {
	s := &Server{
		svc:     svc,
		authn:   authn,
		limiter: newLimiterPool(rps, burst),
	}
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.withIdentity)

	api.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleOwnSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleTranscript).Methods(http.MethodGet)
	api.Handle("/sessions/{id}/messages", s.limit(s.handleBeneficiaryMessage)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/escalate", s.handleEscalate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/close", s.handleClose).Methods(http.MethodPost)

	api.HandleFunc("/nurse/queue", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/nurse/sessions/{id}/join", s.handleNurseJoin).Methods(http.MethodPost)
	api.Handle("/nurse/sessions/{id}/messages", s.limit(s.handleNurseReply)).Methods(http.MethodPost)
	api.HandleFunc("/nurse/sessions/{id}/complete", s.handleComplete).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type messageBody struct {
	Content string `json:"content"`
}

type completeBody struct {
	Note string `json:"note"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleBeneficiary) {
		writeError(w, http.StatusForbidden, "beneficiary role required")
		return
	}
	sess, err := s.svc.StartSession(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess})
}

func (s *Server) handleOwnSessions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleBeneficiary) {
		writeError(w, http.StatusForbidden, "beneficiary role required")
		return
	}
	sessions, err := s.svc.OwnerSessions(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sid := mux.Vars(r)["id"]
	sess, msgs, err := s.svc.Transcript(r.Context(), sid, viewerRole(id), id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": msgs})
}

func (s *Server) handleBeneficiaryMessage(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleBeneficiary) {
		writeError(w, http.StatusForbidden, "beneficiary role required")
		return
	}
	var body messageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := mux.Vars(r)["id"]
	if err := s.svc.SubmitBeneficiaryMessage(r.Context(), sid, id.UserID, body.Content); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleBeneficiary) {
		writeError(w, http.StatusForbidden, "beneficiary role required")
		return
	}
	sid := mux.Vars(r)["id"]
	if err := s.svc.ManualEscalation(r.Context(), sid, id.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sid := mux.Vars(r)["id"]
	if err := s.svc.CloseSession(r.Context(), sid, viewerRole(id), id.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleNurse) {
		writeError(w, http.StatusForbidden, "nurse role required")
		return
	}
	sessions, urgent, err := s.svc.ListNurseQueue(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "urgent_count": urgent})
}

func (s *Server) handleNurseJoin(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleNurse) {
		writeError(w, http.StatusForbidden, "nurse role required")
		return
	}
	sid := mux.Vars(r)["id"]
	if err := s.svc.NurseJoin(r.Context(), sid, id.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNurseReply(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleNurse) {
		writeError(w, http.StatusForbidden, "nurse role required")
		return
	}
	var body messageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := mux.Vars(r)["id"]
	if err := s.svc.NurseReply(r.Context(), sid, id.UserID, body.Content); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !auth.Authorize(id.Role, auth.RoleNurse) {
		writeError(w, http.StatusForbidden, "nurse role required")
		return
	}
	var body completeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := mux.Vars(r)["id"]
	if err := s.svc.CompleteCase(r.Context(), sid, id.UserID, body.Note); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
// Invalid transitions never reach here; the service swallows them.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrExpired):
		writeJSON(w, http.StatusGone, map[string]any{
			"error":  "session expired",
			"action": "start_new_consultation",
		})
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error, please retry")
	}
}

func viewerRole(id auth.Identity) pkg.MessageRole {
	if id.Role == auth.RoleNurse {
		return pkg.RoleNurse
	}
	return pkg.RoleBeneficiary
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
