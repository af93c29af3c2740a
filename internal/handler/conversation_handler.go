package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/service"
)

type ConversationHandler struct {
	svc service.ConversationService
}

func NewConversationHandler(svc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type ConversationResponse struct {
	ConversationID uint64  `json:"conversationId"`
	ListingID      *uint64 `json:"listingId"`
	SellerUID      string  `json:"sellerUid"`
	BuyerUID       string  `json:"buyerUid"`
	Status         string  `json:"status"`
	UnreadCount    int64   `json:"unreadCount,omitempty"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

func toConversationResponse(cv *model.Conversation, unread int64) ConversationResponse {
	return ConversationResponse{
		ConversationID: cv.ID,
		ListingID:      cv.ListingID,
		SellerUID:      cv.SellerUID,
		BuyerUID:       cv.BuyerUID,
		Status:         cv.Status,
		UnreadCount:    unread,
	}
}

// StartFromListing resolves or lazily creates the thread between the
// caller and the listing's seller.
func (h *ConversationHandler) StartFromListing(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	listingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	cv, err := h.svc.StartFromListing(c.Request().Context(), listingID, uid)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "listing not found"))
		}
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusOK, toConversationResponse(cv, 0))
}

// StartSupport resolves or creates the caller's persistent support thread.
func (h *ConversationHandler) StartSupport(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	cv, err := h.svc.GetOrCreateSupport(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not allowed"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to open support thread"))
	}
	return c.JSON(http.StatusOK, toConversationResponse(cv, 0))
}

func (h *ConversationHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	summaries, err := h.svc.ListByUser(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch conversations"))
	}
	resp := make([]ConversationResponse, 0, len(summaries))
	for i := range summaries {
		resp = append(resp, toConversationResponse(&summaries[i].Conversation, summaries[i].UnreadCount))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	cv, err := h.svc.Get(c.Request().Context(), convID, uid)
	if err != nil {
		return h.convError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(cv, 0))
}

// ListMessages returns the thread history ascending. The optional "after"
// query parameter is a message-id cursor for incremental fetches.
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	afterID, _ := strconv.ParseUint(c.QueryParam("after"), 10, 64)
	msgs, err := h.svc.ListMessages(c.Request().Context(), convID, uid, afterID)
	if err != nil {
		return h.convError(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	msg, err := h.svc.Send(c.Request().Context(), convID, uid, req.Body)
	if err != nil {
		if errors.Is(err, service.ErrConversationClosed) {
			return c.JSON(http.StatusConflict, NewErrorResponse("conversation_closed", "conversation is closed"))
		}
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrForbidden) {
			return h.convError(c, err)
		}
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	if err := h.svc.MarkRead(c.Request().Context(), convID, uid); err != nil {
		return h.convError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConversationHandler) convError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "conversation not found"))
	}
	if errors.Is(err, service.ErrForbidden) {
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not a participant"))
	}
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "conversation operation failed"))
}
