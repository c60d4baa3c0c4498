package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type completeDemoRequest struct {
	Score     *int  `json:"score"`
	ElapsedMs int64 `json:"elapsedMs"`
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.engine.GetAccount(r.Context(), walletFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summary(r.Context(), walletFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	entries, err := s.engine.ListHistory(r.Context(), walletFromContext(r.Context()), limit, offset)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "limit": limit, "offset": offset})
}

func (s *Server) listUnlocks(w http.ResponseWriter, r *http.Request) {
	unlocks, err := s.engine.Unlocks(r.Context(), walletFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"unlocks": unlocks})
}

func (s *Server) hasCompletedDemo(w http.ResponseWriter, r *http.Request) {
	demoID := chi.URLParam(r, "demoId")
	done, err := s.engine.HasCompletedDemo(r.Context(), walletFromContext(r.Context()), demoID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"demoId": demoID, "completed": done})
}

func (s *Server) completeDemo(w http.ResponseWriter, r *http.Request) {
	var req completeDemoRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if (req.Score != nil && *req.Score < 0) || req.ElapsedMs < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "score and elapsedMs must be non-negative")
		return
	}
	res, err := s.engine.CompleteDemo(r.Context(), walletFromContext(r.Context()), chi.URLParam(r, "demoId"),
		req.Score, time.Duration(req.ElapsedMs)*time.Millisecond)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) clapDemo(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ClapDemo(r.Context(), walletFromContext(r.Context()), chi.URLParam(r, "demoId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) claimCompositeBadge(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ClaimCompositeBadge(r.Context(), walletFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) hasBadge(w http.ResponseWriter, r *http.Request) {
	badgeID := chi.URLParam(r, "badgeId")
	held, err := s.engine.HasBadge(r.Context(), walletFromContext(r.Context()), badgeID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"badgeId": badgeID, "held": held})
}
