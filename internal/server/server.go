package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/loopmarket/backend/internal/authz"
	"github.com/loopmarket/backend/internal/config"
	"github.com/loopmarket/backend/internal/handler"
	appmw "github.com/loopmarket/backend/internal/middleware"
	"github.com/loopmarket/backend/internal/presence"
	"github.com/loopmarket/backend/internal/realtime"
	"github.com/loopmarket/backend/internal/repository"
	"github.com/loopmarket/backend/internal/service"
	"github.com/loopmarket/backend/internal/storage"
)

type Server struct {
	e     *echo.Echo
	hub   *realtime.Hub
	sha   string
	build string
}

// New wires the repositories, services, and handlers onto an echo
// instance. images may be nil when no bucket is configured.
func New(ctx context.Context, conn *gorm.DB, rdb *redis.Client, cfg *config.Config, images *storage.ImageStore, log zerolog.Logger, sha, buildTime string) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	listingRepo := repository.NewListingRepository(conn)
	convRepo := repository.NewConversationRepository(conn)
	profileRepo := repository.NewProfileRepository(conn)
	notifRepo := repository.NewNotificationRepository(conn)
	reportRepo := repository.NewReportRepository(conn)
	erasureRepo := repository.NewErasureRepository(conn)

	hub := realtime.NewHub(rdb, log)
	tracker := presence.NewTracker(rdb, profileRepo, log)

	notifSvc := service.NewNotificationService(notifRepo)
	listingSvc := service.NewListingService(listingRepo)
	convSvc := service.NewConversationService(convRepo, listingRepo, notifSvc, hub, cfg.PlatformUID)
	supportSvc := service.NewSupportService(convRepo, erasureRepo, convSvc)
	reportSvc := service.NewReportService(reportRepo, listingRepo)

	listingHandler := handler.NewListingHandler(listingSvc, images)
	convHandler := handler.NewConversationHandler(convSvc)
	supportHandler := handler.NewSupportHandler(supportSvc)
	notifHandler := handler.NewNotificationHandler(notifSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	profileHandler := handler.NewProfileHandler(profileRepo)
	presenceHandler := handler.NewPresenceHandler(rdb, profileRepo)
	wsHandler := handler.NewWSHandler(hub, tracker, rdb, convSvc, log)

	authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID, profileRepo, cfg.AdminEmails)
	if err != nil {
		return nil, err
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})

	api := e.Group("/api")
	api.GET("/listings", listingHandler.List)
	api.GET("/listings/:id", listingHandler.Get)
	api.GET("/users/:uid/public", profileHandler.GetPublic)

	api.POST("/listings", listingHandler.Create, authMw.RequireAuth)
	api.POST("/listings/:id/image", listingHandler.UploadImage, authMw.RequireAuth)
	api.POST("/listings/:id/report", reportHandler.File, authMw.RequireAuth)
	api.GET("/me/listings", listingHandler.ListMine, authMw.RequireAuth)
	api.GET("/me/notifications", notifHandler.List, authMw.RequireAuth)
	api.POST("/me/notifications/read", notifHandler.MarkAllRead, authMw.RequireAuth)

	api.POST("/listings/:id/conversations", convHandler.StartFromListing, authMw.RequireAuth)
	api.POST("/support/conversations", convHandler.StartSupport, authMw.RequireAuth)
	api.GET("/conversations", convHandler.List, authMw.RequireAuth)
	api.GET("/conversations/:id", convHandler.Get, authMw.RequireAuth)
	api.GET("/conversations/:id/messages", convHandler.ListMessages, authMw.RequireAuth)
	api.POST("/conversations/:id/messages", convHandler.SendMessage, authMw.RequireAuth)
	api.POST("/conversations/:id/read", convHandler.MarkRead, authMw.RequireAuth)
	api.GET("/conversations/:id/ws", wsHandler.ServeConversation, authMw.RequireAuth)

	api.GET("/ws", wsHandler.ServePresence, authMw.RequireAuth)
	api.GET("/presence", presenceHandler.Query, authMw.RequireAuth)

	admin := api.Group("/admin", authMw.RequireAuth, appmw.RequireCapability(authz.CapModerate))
	admin.GET("/support", supportHandler.List)
	admin.POST("/support/:id/close", supportHandler.Close)
	admin.POST("/support/:id/reopen", supportHandler.Reopen)
	admin.DELETE("/support/:id", supportHandler.Delete)
	admin.POST("/broadcast", supportHandler.Broadcast, appmw.RequireCapability(authz.CapBroadcast))
	admin.GET("/reports", reportHandler.ListOpen)
	admin.POST("/reports/:id/resolve", reportHandler.Resolve)
	admin.POST("/users/:uid/erase", supportHandler.RequestErasure, appmw.RequireCapability(authz.CapErase))

	return &Server{e: e, hub: hub, sha: sha, build: buildTime}, nil
}

// Hub exposes the realtime hub so main can run its loops.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
