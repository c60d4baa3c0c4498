package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/experience"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/session"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/badge"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine *experience.Engine
	sseHub notification.SSEHub
	logger zerolog.Logger
}

func NewServer(engine *experience.Engine, sseHub notification.SSEHub, logger zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		sseHub: sseHub,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.identifyWallet)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", s.getCatalog)
		r.Get("/notifications/sse", s.sseEndpoint)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(s.requireWallet)

			r.Route("/account", func(r chi.Router) {
				r.Get("/", s.getAccount)
				r.Get("/summary", s.getSummary)
				r.Get("/history", s.listHistory)
				r.Get("/unlocks", s.listUnlocks)
			})

			r.Route("/demos/{demoId}", func(r chi.Router) {
				r.Get("/completed", s.hasCompletedDemo)
				r.Post("/complete", s.completeDemo)
				r.Post("/clap", s.clapDemo)
			})

			r.Route("/badges", func(r chi.Router) {
				r.Post("/composite/claim", s.claimCompositeBadge)
				r.Get("/{badgeId}", s.hasBadge)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.startSession)
				r.Get("/", s.listSessions)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Use(s.requireSessionOwner)
					r.Get("/", s.getSession)
					r.Post("/reset", s.resetSession)
					r.Post("/steps/{stepId}/invoke", s.invokeStep)

					r.Get("/board", s.getBoard)
					r.Post("/milestones/{milestoneId}/complete", s.completeMilestone)
					r.Post("/milestones/{milestoneId}/approve", s.approveMilestone)
					r.Post("/disputes", s.raiseDispute)
					r.Post("/disputes/{disputeId}/resolve", s.resolveDispute)
					r.Post("/release", s.releaseAll)
				})
			})

			r.Route("/transactions/{transactionId}", func(r chi.Router) {
				r.Get("/", s.getTransaction)
				r.Post("/confirm", s.confirmTransaction)
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps the progression error taxonomy onto HTTP.
// Conflicts are benign and answered with a no-op body.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var pre *progress.PreconditionError
	switch {
	case progress.IsConflict(err):
		respondJSON(w, http.StatusOK, map[string]interface{}{"noop": true, "message": err.Error()})
	case errors.As(err, &pre):
		body := map[string]interface{}{"error": "PRECONDITION_FAILED", "message": pre.Error()}
		if len(pre.Blockers) > 0 {
			body["blockers"] = pre.Blockers
		}
		respondJSON(w, http.StatusPreconditionFailed, body)
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, txn.ErrNotFound),
		errors.Is(err, demo.ErrUnknownDemo),
		errors.Is(err, badge.ErrUnknownBadge):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrNoBoard):
		respondError(w, http.StatusNotFound, "NO_BOARD", err.Error())
	case errors.Is(err, demo.ErrUnknownStep):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeBody(r, v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.engine.Catalog
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"demos":  cat.Demos(),
		"badges": cat.Badges.All(),
		"gating": cat.Rules,
	})
}

func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	var walletPtr *string
	if wallet := walletFromContext(r.Context()); wallet.IsConnected() {
		id := wallet.WalletID()
		walletPtr = &id
	}
	client := notification.NewSSEClient(clientID, walletPtr, splitCSV(r.URL.Query().Get("topics")))

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok || msg == nil {
				return
			}
			_, _ = w.Write([]byte("id: " + msg.ID + "\nevent: " + msg.Event + "\ndata: "))
			_, _ = w.Write(msg.Data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
