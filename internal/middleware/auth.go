package middleware

import (
	"context"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/loopmarket/backend/internal/authz"
	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
)

type AuthMiddleware struct {
	authClient  *auth.Client
	profiles    repository.ProfileRepository
	adminEmails []string
}

func NewAuthMiddleware(ctx context.Context, projectID string, profiles repository.ProfileRepository, adminEmails []string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{authClient: client, profiles: profiles, adminEmails: adminEmails}, nil
}

// RequireAuth verifies the ID token, resolves capabilities once, and keeps
// the caller's profile row fresh. Browsers cannot set headers on WebSocket
// upgrades, so a token query parameter is accepted as a fallback there.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := ""
		if authHdr := c.Request().Header.Get("Authorization"); strings.HasPrefix(authHdr, "Bearer ") {
			tokenStr = strings.TrimPrefix(authHdr, "Bearer ")
		} else if qt := c.QueryParam("token"); qt != "" {
			tokenStr = qt
		}
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		token, err := m.authClient.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}

		caps := authz.Resolve(token, m.adminEmails)
		c.Set("uid", token.UID)
		c.Set("caps", caps)

		m.upsertProfile(c.Request().Context(), token)
		return next(c)
	}
}

// RequireCapability gates a route on a capability resolved by RequireAuth.
// Must be applied after it.
func RequireCapability(cap authz.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caps, ok := c.Get("caps").(authz.Capabilities)
			if !ok || !caps.Has(cap) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// upsertProfile mirrors the token's identity into the profiles table.
// Best-effort: an unavailable database must not fail authentication.
func (m *AuthMiddleware) upsertProfile(ctx context.Context, token *auth.Token) {
	if m.profiles == nil {
		return
	}
	p := &model.Profile{UID: token.UID}
	if name, ok := token.Claims["name"].(string); ok {
		p.DisplayName = name
	}
	if email, ok := token.Claims["email"].(string); ok {
		p.Email = email
		if p.DisplayName == "" {
			p.DisplayName = strings.SplitN(email, "@", 2)[0]
		}
	}
	if pic, ok := token.Claims["picture"].(string); ok && pic != "" {
		p.AvatarURL = &pic
	}
	_ = m.profiles.Upsert(ctx, p)
}

func (m *AuthMiddleware) Client() *auth.Client {
	return m.authClient
}
