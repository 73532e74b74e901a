package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/Skotchmaster/campus_events/internal/middleware"
	"github.com/Skotchmaster/campus_events/internal/models"
)

type Deps struct {
	AuthHandler   *AuthHTTP
	AdminHandler  *AdminHTTP
	Authenticator *mw.Authenticator
	// Ready reports whether backing stores are reachable.
	Ready    func(ctx context.Context) error
	Gatherer prometheus.Gatherer
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready").SetInternal(err)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	required := d.Authenticator.Authenticate(true)
	optional := d.Authenticator.Authenticate(false)

	auth := e.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/oauth", d.AuthHandler.OAuth)
	auth.GET("/session", d.AuthHandler.Session, optional)

	private := auth.Group("", required)
	private.POST("/logout", d.AuthHandler.LogOut)
	private.POST("/logout-all", d.AuthHandler.LogOutAll)
	private.GET("/me", d.AuthHandler.Me)
	private.POST("/password", d.AuthHandler.ChangePassword)

	admin := e.Group("/admin", required)
	users := admin.Group("/users")
	users.POST("/:id/ban", d.AdminHandler.Ban, mw.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
	users.POST("/:id/unban", d.AdminHandler.Unban, mw.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
	users.PATCH("/:id/role", d.AdminHandler.ChangeRole, mw.RequireRole(models.RoleSuperAdmin))
}
