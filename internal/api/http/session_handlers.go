package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

type startSessionRequest struct {
	DemoID string `json:"demoId"`
}

type confirmTransactionRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// transactionView is a transaction as served to clients. Error is set for
// failed transactions.
type transactionView struct {
	txn.Record
	Error string `json:"error,omitempty"`
}

func viewTransaction(rec txn.Record) transactionView {
	v := transactionView{Record: rec}
	if err := rec.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

// requireSessionOwner rejects access to sessions of other wallets.
func (s *Server) requireSessionOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "sessionId")
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
			return
		}
		if !s.ownsSession(w, r, id) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ownsSession writes the error response and returns false when the caller
// may not act on the session.
func (s *Server) ownsSession(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) bool {
	sess, err := s.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		s.respondServiceError(w, err)
		return false
	}
	if sess.WalletID != walletFromContext(r.Context()).WalletID() {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "session belongs to another wallet")
		return false
	}
	return true
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.DemoID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "demoId required")
		return
	}
	sess, err := s.engine.StartSession(r.Context(), walletFromContext(r.Context()), req.DemoID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.engine.Sessions.ListSessions(r.Context(), walletFromContext(r.Context()).WalletID())
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	sess, err := s.engine.GetSession(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	sess, err := s.engine.ResetSession(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) invokeStep(w http.ResponseWriter, r *http.Request) {
	id, _ := parseUUIDParam(r, "sessionId")
	rec, err := s.engine.InvokeStepAction(r.Context(), walletFromContext(r.Context()), id, chi.URLParam(r, "stepId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, rec)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.transactionFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewTransaction(rec))
}

func (s *Server) confirmTransaction(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.transactionFor(w, r)
	if !ok {
		return
	}
	var req confirmTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	status := txn.Status(strings.ToUpper(req.Status))
	out, err := s.engine.ConfirmTransaction(r.Context(), rec.TransactionID, status, req.Message)
	if progress.IsConflict(err) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"noop": true, "message": err.Error(), "transaction": viewTransaction(out)})
		return
	}
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewTransaction(out))
}

// transactionFor loads the transaction named in the path and checks the
// caller owns its session.
func (s *Server) transactionFor(w http.ResponseWriter, r *http.Request) (txn.Record, bool) {
	id, err := parseUUIDParam(r, "transactionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid transaction id")
		return txn.Record{}, false
	}
	rec, found := s.engine.Tracker.Get(id)
	if !found {
		s.respondServiceError(w, txn.ErrNotFound)
		return txn.Record{}, false
	}
	if !s.ownsSession(w, r, rec.SessionID) {
		return txn.Record{}, false
	}
	return rec, true
}
