// Package router registers the HTTP surface on an echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/studio-box-office/internal/config"
	"github.com/iliyamo/studio-box-office/internal/handler"
	"github.com/iliyamo/studio-box-office/internal/middleware"
	"github.com/iliyamo/studio-box-office/internal/session"
)

// Deps is everything the routes need. Redis may be nil, which disables rate
// limiting and the seat map cache.
type Deps struct {
	Reservations *handler.ReservationHandler
	Orders       *handler.OrderHandler
	Tickets      *handler.TicketHandler
	DB           handler.Pinger
	Sessions     *session.Resolver
	JWTSecret    string
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Redis        *redis.Client
	Logger       *slog.Logger
}

// Register mounts the public customer routes and the staff routes under /v1.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))

	limit := middleware.RateLimit(d.RateLimit, d.Redis, d.Logger)
	cached := middleware.ResponseCache(d.Cache, d.Redis)

	// Public routes: optional bearer, then the session identity.
	pub := e.Group("/v1", middleware.OptionalJWT(d.JWTSecret), d.Sessions.Middleware())
	pub.POST("/reservations", d.Reservations.Create, limit)
	pub.GET("/reservations/:token", d.Reservations.Get)
	pub.DELETE("/reservations/:token", d.Reservations.Cancel)
	pub.DELETE("/shows/:id/reservation", d.Reservations.CancelForShow)
	pub.GET("/shows/:id/seats", d.Reservations.SeatMap, cached)
	pub.POST("/orders", d.Orders.Create, limit)
	pub.POST("/tickets/generate-pdf", d.Tickets.GeneratePDF, limit)
	pub.GET("/tickets/:id/download", d.Tickets.Download)
	pub.POST("/tickets/resend-email", d.Tickets.Resend, limit)

	// Staff routes are registered per route rather than as another /v1
	// group so unknown /v1 paths still answer 404 instead of 401.
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOwner),
	}
	e.POST("/v1/orders/:id/refund", d.Orders.Refund, admin...)
	e.GET("/v1/orders/:id", d.Orders.Get, admin...)
	e.POST("/v1/admin/orders/:id/resend", d.Tickets.AdminResend, admin...)

	door := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOwner, middleware.RoleStaff),
	}
	e.POST("/v1/tickets/scan", d.Tickets.Scan, door...)
}
