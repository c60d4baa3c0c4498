package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/dispute"
)

var errEmptyRole = errors.New("role required")

type milestoneMove func(ctx context.Context, sessionID uuid.UUID, role, milestoneID string) (*dispute.Milestone, error)

type milestoneRequest struct {
	Role string `json:"role"`
}

type raiseDisputeRequest struct {
	Role        string `json:"role"`
	MilestoneID string `json:"milestoneId"`
	Reason      string `json:"reason"`
}

type resolveDisputeRequest struct {
	Role       string `json:"role"`
	Resolution string `json:"resolution"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	board, err := s.engine.Board(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

func (s *Server) completeMilestone(w http.ResponseWriter, r *http.Request) {
	s.moveMilestone(w, r, s.engine.MarkMilestoneComplete)
}

func (s *Server) approveMilestone(w http.ResponseWriter, r *http.Request) {
	s.moveMilestone(w, r, s.engine.ApproveMilestone)
}

func (s *Server) moveMilestone(w http.ResponseWriter, r *http.Request, move milestoneMove) {
	id, _ := parseUUIDParam(r, "sessionId")
	var req milestoneRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Role == "" {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", errEmptyRole.Error())
		return
	}
	m, err := move(r.Context(), id, req.Role, chi.URLParam(r, "milestoneId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) raiseDispute(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	var req raiseDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Role == "" {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", errEmptyRole.Error())
		return
	}
	d, err := s.engine.RaiseDispute(r.Context(), id, req.Role, req.MilestoneID, req.Reason)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	disputeID, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dispute id")
		return
	}
	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Role == "" {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", errEmptyRole.Error())
		return
	}
	d, err := s.engine.ResolveDispute(r.Context(), id, req.Role, disputeID, req.Resolution, req.Note)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) releaseAll(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	board, err := s.engine.ReleaseAll(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}
