// Package httpapi exposes the session engine over HTTP. Handlers translate
// the error taxonomy into status codes and never leak wrapped internal detail
// to clients; diagnostics go to the logger only.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/engine"
	"github.com/antonajp/ai4joy-sub002/logging"
)

// Handler serves the versioned session API.
type Handler struct {
	engine *engine.Engine
	logger logging.Logger
}

// NewHandler creates a Handler over the engine.
func NewHandler(e *engine.Engine, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Handler{engine: e, logger: logger}
}

// Routes builds the chi router with the standard middleware stack.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/turns", h.executeTurn)
			r.Post("/end", h.endSession)
		})
	})
	return r
}

type createSessionRequest struct {
	UserID   string `json:"user_id"`
	Scenario string `json:"scenario,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	TurnCount int    `json:"turn_count"`
	Scenario  string `json:"scenario,omitempty"`
	Created   string `json:"created_at"`
	Updated   string `json:"updated_at"`
}

func toSessionResponse(sess *core.Session) sessionResponse {
	return sessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Status:    string(sess.Status),
		Phase:     string(sess.Phase),
		TurnCount: sess.TurnCount,
		Scenario:  sess.Scenario,
		Created:   sess.Created.Format(time.RFC3339),
		Updated:   sess.Updated.Format(time.RFC3339),
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.engine.StartSession(r.Context(), req.UserID, req.Scenario)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, toSessionResponse(sess))
}

type turnRequest struct {
	Input string `json:"input"`
}

type turnResponse struct {
	SessionID string        `json:"session_id"`
	TurnIndex int           `json:"turn_index"`
	Partner   string        `json:"partner"`
	Room      string        `json:"room,omitempty"`
	Coach     string        `json:"coach,omitempty"`
	Phase     string        `json:"phase"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency_ms"`
}

func (h *Handler) executeTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.ExecuteTurn(r.Context(), sessionID, req.Input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, turnResponse{
		SessionID: res.SessionID,
		TurnIndex: res.Turn.Index,
		Partner:   res.Turn.Reply.Partner,
		Room:      res.Turn.Reply.Room,
		Coach:     res.Turn.Reply.Coach,
		Phase:     string(res.Phase),
		Status:    string(res.Status),
		Latency:   res.Turn.Latency / time.Millisecond,
	})
}

type endSessionRequest struct {
	Abandon bool `json:"abandon,omitempty"`
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req endSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.engine.EndSession(r.Context(), sessionID, req.Abandon); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, toSessionResponse(sess))
}

type sessionDetailResponse struct {
	sessionResponse
	Turns []turnDetail `json:"turns"`
}

type turnDetail struct {
	Index     int    `json:"index"`
	UserInput string `json:"user_input"`
	Partner   string `json:"partner"`
	Room      string `json:"room,omitempty"`
	Coach     string `json:"coach,omitempty"`
	Phase     string `json:"phase"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := sessionDetailResponse{
		sessionResponse: toSessionResponse(sess),
		Turns:           make([]turnDetail, 0, len(sess.Turns)),
	}
	for _, turn := range sess.Turns {
		resp.Turns = append(resp.Turns, turnDetail{
			Index:     turn.Index,
			UserInput: turn.UserInput,
			Partner:   turn.Reply.Partner,
			Room:      turn.Reply.Room,
			Coach:     turn.Reply.Coach,
			Phase:     string(turn.Phase),
			Timestamp: turn.Timestamp.Format(time.RFC3339),
		})
	}
	JSON(w, http.StatusOK, resp)
}

// writeError maps taxonomy sentinels to status codes. The response carries
// only the sentinel message; the wrapped chain is logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, core.ErrEmptyInput), errors.Is(err, core.ErrInputTooLong):
		status, message = http.StatusBadRequest, firstSentinel(err,
			core.ErrEmptyInput, core.ErrInputTooLong)
	case errors.Is(err, core.ErrNotFound):
		status, message = http.StatusNotFound, core.ErrNotFound.Error()
	case errors.Is(err, core.ErrRateLimited):
		status, message = http.StatusTooManyRequests, firstSentinel(err,
			core.ErrDailyLimitExceeded, core.ErrConcurrentLimitExceeded, core.ErrRateLimited)
	case errors.Is(err, core.ErrSessionNotActive):
		status, message = http.StatusConflict, core.ErrSessionNotActive.Error()
	case errors.Is(err, core.ErrConflict):
		status, message = http.StatusConflict, core.ErrConflict.Error()
	case errors.Is(err, core.ErrTimeout):
		status, message = http.StatusGatewayTimeout, core.ErrTimeout.Error()
	case errors.Is(err, core.ErrMalformedReply), errors.Is(err, core.ErrAgentFailure):
		status, message = http.StatusBadGateway, "partner unavailable"
	case errors.Is(err, core.ErrPersistence):
		status, message = http.StatusServiceUnavailable, "storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err.Error())
	} else {
		h.logger.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err.Error())
	}
	Error(w, status, message)
}

// firstSentinel returns the message of the first matching sentinel, keeping
// client-visible text stable regardless of wrapping depth.
func firstSentinel(err error, sentinels ...error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
