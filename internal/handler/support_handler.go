package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/loopmarket/backend/internal/authz"
	"github.com/loopmarket/backend/internal/service"
)

// SupportHandler is the admin console's view of support threads. All
// routes behind it require the moderate capability.
type SupportHandler struct {
	svc service.SupportService
}

func NewSupportHandler(svc service.SupportService) *SupportHandler {
	return &SupportHandler{svc: svc}
}

type BroadcastRequest struct {
	Body string `json:"body"`
}

func (h *SupportHandler) List(c echo.Context) error {
	threads, err := h.svc.ListThreads(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch support threads"))
	}
	resp := make([]ConversationResponse, 0, len(threads))
	for i := range threads {
		resp = append(resp, toConversationResponse(&threads[i], 0))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SupportHandler) Close(c echo.Context) error {
	return h.setStatus(c, h.svc.Close)
}

func (h *SupportHandler) Reopen(c echo.Context) error {
	return h.setStatus(c, h.svc.Reopen)
}

func (h *SupportHandler) setStatus(c echo.Context, op func(ctx context.Context, convID uint64) error) error {
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	if err := op(c.Request().Context(), convID); err != nil {
		return h.supportError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SupportHandler) Delete(c echo.Context) error {
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	if err := h.svc.Delete(c.Request().Context(), convID); err != nil {
		return h.supportError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SupportHandler) Broadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	sent, err := h.svc.Broadcast(c.Request().Context(), req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]int{"sent": sent})
}

func (h *SupportHandler) RequestErasure(c echo.Context) error {
	caps, _ := c.Get("caps").(authz.Capabilities)
	targetUID := c.Param("uid")
	if err := h.svc.RequestErasure(c.Request().Context(), targetUID, caps.UID); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *SupportHandler) supportError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "support thread not found"))
	}
	if errors.Is(err, service.ErrForbidden) {
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not a support thread"))
	}
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "support operation failed"))
}
