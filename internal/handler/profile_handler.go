package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/loopmarket/backend/internal/repository"
)

type ProfileHandler struct {
	profiles repository.ProfileRepository
}

func NewProfileHandler(profiles repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type PublicProfileResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	LastSeenAt  *string `json:"lastSeenAt,omitempty"`
}

// GetPublic is the display-name lookup for a user id; it exposes nothing
// private.
func (h *ProfileHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	p, err := h.profiles.FindByUID(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "profile not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch profile"))
	}
	resp := PublicProfileResponse{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
	if p.LastSeenAt != nil {
		s := p.LastSeenAt.Format(time.RFC3339)
		resp.LastSeenAt = &s
	}
	return c.JSON(http.StatusOK, resp)
}
