package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/campus_events/internal/logging"
	mw "github.com/Skotchmaster/campus_events/internal/middleware"
	"github.com/Skotchmaster/campus_events/internal/service"
)

type AuthHTTP struct {
	Svc      *service.AuthService
	Accounts *service.AccountService
	// SecureCookies is false only for local development over plain HTTP.
	SecureCookies bool
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type oauthRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHTTP) setRefreshCookie(c echo.Context, res *service.AuthResult) {
	c.SetCookie(CreateCookie(RefreshCookieName, res.RefreshToken, "/", res.RefreshExp, h.SecureCookies))
}

func (h *AuthHTTP) clearRefreshCookie(c echo.Context) {
	c.SetCookie(DeleteCookie(RefreshCookieName, "/", h.SecureCookies))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}

	h.setRefreshCookie(c, res)
	return c.JSON(http.StatusCreated, echo.Map{
		"user":        res.User,
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}

	h.setRefreshCookie(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"user":        res.User,
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		logging.FromContext(ctx).Warn("refresh_error", "handler", "auth_refresh", "status", 401, "reason", "no refresh cookie")
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	res, err := h.Svc.Refresh(ctx, cookie.Value)
	if err != nil {
		// Keep the cookie on storage failures so the client can retry.
		if errors.Is(err, service.ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		return httpError(err)
	}

	c.SetCookie(CreateCookie(RefreshCookieName, res.RefreshToken, "/", res.RefreshExp, h.SecureCookies))
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")
	id, _ := mw.IdentityFrom(c)

	if cookie, err := c.Cookie(RefreshCookieName); err == nil {
		if err := h.Svc.LogOut(ctx, id.ID, cookie.Value); err != nil {
			h.clearRefreshCookie(c)
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", err)
			return httpError(err)
		}
	}

	h.clearRefreshCookie(c)
	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func (h *AuthHTTP) LogOutAll(c echo.Context) error {
	ctx := c.Request().Context()
	id, _ := mw.IdentityFrom(c)

	if err := h.Svc.LogOutAll(ctx, id.ID); err != nil {
		return httpError(err)
	}

	h.clearRefreshCookie(c)
	logging.FromContext(ctx).Info("successful_logout_all", "handler", "auth_logout_all", "user_id", id.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out everywhere",
	})
}

func (h *AuthHTTP) OAuth(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_oauth")

	var req oauthRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("oauth_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.FederatedSignIn(ctx, req.Provider, req.Code)
	if err != nil {
		return httpError(err)
	}

	h.setRefreshCookie(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"user":        res.User,
		"accessToken": res.AccessToken,
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	id, _ := mw.IdentityFrom(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user": id,
	})
}

func (h *AuthHTTP) Session(c echo.Context) error {
	id, ok := mw.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{
			"authenticated": false,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"authenticated": true,
		"user":          id,
	})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	id, _ := mw.IdentityFrom(c)

	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Accounts.ChangePassword(ctx, id.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return httpError(err)
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "password changed",
	})
}
