package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/emaillogs"
	"github.com/confreg/backend/internal/lookups"
	"github.com/confreg/backend/internal/middleware"
	"github.com/confreg/backend/internal/presenters"
	"github.com/confreg/backend/internal/registrations"
	"github.com/confreg/backend/internal/rsvp"
	"github.com/confreg/backend/pkg/response"
)

// Router builds the gin engine with every route.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	regHandler := registrations.NewHandler(a.Registrations, a.Sessions, a.Limiter, cfg.Email.OrganizerContact, a.Logger)
	rsvpHandler := rsvp.NewHandler(a.RSVP, a.Logger)
	lookupHandler := lookups.NewHandler(a.Lookups, a.Logger)
	emailHandler := emaillogs.NewHandler(a.EmailLogs, a.Logger)
	photoHandler := presenters.NewHandler(a.RegistrationRepo, a.Photos, cfg.Presenter.MaxBytes, a.Logger)
	organizer := middleware.RequireOrganizer()

	router := gin.New()
	// Validated by config.Validate; nil trusts no proxy.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		a.Logger.Error("invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.UIOrigin))
	router.Use(middleware.Logger(a.Logger))

	// Health
	router.GET("/health", a.health)

	api := router.Group("/api")
	api.Use(middleware.EdgeSeal(cfg.Server.InternalSecret))
	api.Use(middleware.Session(a.Sessions, a.RegistrationRepo, cfg.Server.UIOrigin, a.Logger))
	{
		api.GET("/config", photoHandler.Config)

		// Registrations
		api.POST("/registrations", regHandler.Create)
		api.GET("/registrations", organizer, regHandler.List)
		api.GET("/registrations/login", regHandler.Login)
		api.GET("/registrations/lost-pin", regHandler.LostPin)
		api.GET("/registrations/:id", regHandler.Get)
		api.PUT("/registrations/:id", regHandler.Update)

		// Session
		api.GET("/session", regHandler.Session)
		api.POST("/session/logout", regHandler.Logout)

		// RSVP (organizer only)
		api.POST("/rsvp/upload", organizer, rsvpHandler.Upload)
		api.POST("/rsvp/remind", organizer, rsvpHandler.Remind)
		api.GET("/rsvp/emails", organizer, emailHandler.List)

		// Validation tables
		api.GET("/validation-tables", lookupHandler.Values)
		api.GET("/validation-tables/:table", lookupHandler.Values)

		// Presenter photos
		api.GET("/presenters/:id/photo", photoHandler.Photo)
		api.POST("/presenters/:id/photo", middleware.RequireSession(), photoHandler.Upload)
	}
	return router
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.PingContext(ctx); err != nil {
		a.Logger.Error("health check failed", zap.Error(err))
		response.ServiceUnavailable(c, "database unavailable")
		return
	}
	response.OK(c, gin.H{"status": "ok", "db": a.DB.Dialect.String()})
}
