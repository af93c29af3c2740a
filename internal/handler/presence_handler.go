package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/loopmarket/backend/internal/presence"
	"github.com/loopmarket/backend/internal/repository"
)

type PresenceHandler struct {
	rdb      *redis.Client
	profiles repository.ProfileRepository
}

func NewPresenceHandler(rdb *redis.Client, profiles repository.ProfileRepository) *PresenceHandler {
	return &PresenceHandler{rdb: rdb, profiles: profiles}
}

type PresenceEntry struct {
	UID        string  `json:"uid"`
	Online     bool    `json:"online"`
	LastSeenAt *string `json:"lastSeenAt,omitempty"`
}

// Query answers "are these users online" in one request; offline users
// carry their durable last-seen timestamp for "seen N minutes ago"
// display.
func (h *PresenceHandler) Query(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("uids"))
	if raw == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "uids is required"))
	}
	var uids []string
	for _, uid := range strings.Split(raw, ",") {
		if uid = strings.TrimSpace(uid); uid != "" {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 || len(uids) > 100 {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "between 1 and 100 uids"))
	}

	online, err := presence.Query(c.Request().Context(), h.rdb, uids)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "presence lookup failed"))
	}

	lastSeen := make(map[string]*time.Time, len(uids))
	if profiles, err := h.profiles.FindByUIDs(c.Request().Context(), uids); err == nil {
		for i := range profiles {
			lastSeen[profiles[i].UID] = profiles[i].LastSeenAt
		}
	}

	resp := make([]PresenceEntry, 0, len(uids))
	for _, uid := range uids {
		entry := PresenceEntry{UID: uid, Online: online[uid]}
		if !entry.Online {
			if at := lastSeen[uid]; at != nil {
				s := at.Format(time.RFC3339)
				entry.LastSeenAt = &s
			}
		}
		resp = append(resp, entry)
	}
	return c.JSON(http.StatusOK, resp)
}
