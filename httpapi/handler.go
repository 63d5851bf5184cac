// Package httpapi exposes the assistant over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/merchantry/askdb/orchestrator"
	"github.com/merchantry/askdb/schema"
	"github.com/merchantry/askdb/session"
)

// Handler binds the orchestrator to echo routes.
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler wraps orch for HTTP serving.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/chat/ask", h.ask)
	e.POST("/chat/clarify", h.clarify)
	e.GET("/chat/session/:id/stats", h.sessionStats)
	e.GET("/chat/session/:id/history", h.sessionHistory)
	e.DELETE("/chat/session/:id", h.endSession)
	e.GET("/chat/stats", h.globalStats)
	e.POST("/chat/feedback", h.feedback)
}

type askRequest struct {
	Question    string         `json:"question"`
	SessionID   string         `json:"session_id"`
	Preferences map[string]any `json:"user_preferences,omitempty"`
}

func (h *Handler) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.orch.Ask(c.Request().Context(), req.Question, req.SessionID, req.Preferences)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type clarifyRequest struct {
	SessionID     string `json:"session_id"`
	Clarification string `json:"clarification"`
}

// clarify resubmits the user's clarification as the next question in the
// same session.
func (h *Handler) clarify(c echo.Context) error {
	var req clarifyRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return errorJSON(c, http.StatusBadRequest, "session_id is required")
	}

	resp, err := h.orch.Ask(c.Request().Context(), req.Clarification, req.SessionID, nil)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) sessionStats(c echo.Context) error {
	stats, err := h.orch.SessionStatistics(c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type historyResponse struct {
	SessionID    string                `json:"session_id"`
	Interactions []session.Interaction `json:"interactions"`
	Total        int                   `json:"total_interactions"`
}

func (h *Handler) sessionHistory(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	id := c.Param("id")
	interactions, total, err := h.orch.SessionHistory(id, limit)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, historyResponse{
		SessionID:    id,
		Interactions: interactions,
		Total:        total,
	})
}

func (h *Handler) endSession(c echo.Context) error {
	if err := h.orch.EndSession(c.Param("id")); err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "session ended"})
}

func (h *Handler) globalStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.orch.GlobalStatistics())
}

type feedbackRequest struct {
	SessionID        string `json:"session_id"`
	InteractionIndex int    `json:"interaction_index"`
	Rating           int    `json:"rating"`
	Comment          string `json:"comment"`
}

func (h *Handler) feedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.orch.RecordFeedback(req.SessionID, req.InteractionIndex, req.Rating, req.Comment); err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "feedback recorded"})
}

func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, schema.ErrSessionNotFound):
		return errorJSON(c, http.StatusNotFound, "session not found")
	case errors.Is(err, schema.ErrEmptyQuestion):
		return errorJSON(c, http.StatusBadRequest, "question must not be empty")
	case errors.Is(err, schema.ErrInvalidRating):
		return errorJSON(c, http.StatusBadRequest, "rating must be between 1 and 5")
	case errors.Is(err, schema.ErrInvalidFeedbackIndex):
		return errorJSON(c, http.StatusBadRequest, "interaction index out of range")
	default:
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
}

func errorJSON(c echo.Context, status int, detail string) error {
	return c.JSON(status, map[string]string{"detail": detail})
}
