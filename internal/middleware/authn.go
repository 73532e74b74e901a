package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/models"
	"github.com/Skotchmaster/campus_events/internal/tokens"
)

const CtxIdentity = "identity"

type AccountLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Authenticator struct {
	Tokens   *tokens.Codec
	Accounts AccountLookup
}

// Authenticate resolves the bearer access token into an identity. With
// required set, any failure ends the request with 401; otherwise the
// request continues anonymously.
func (a *Authenticator) Authenticate(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, reason := a.identify(c)
			if reason != "" {
				if !required {
					return next(c)
				}
				logging.FromContext(c.Request().Context()).Warn("auth_rejected", "reason", reason)
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			c.Set(CtxIdentity, id)
			return next(c)
		}
	}
}

func (a *Authenticator) identify(c echo.Context) (models.Identity, string) {
	raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return models.Identity{}, "missing bearer token"
	}
	claims, err := a.Tokens.VerifyAccessToken(raw)
	if err != nil {
		return models.Identity{}, "invalid access token"
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Identity{}, "malformed subject"
	}
	user, err := a.Accounts.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return models.Identity{}, "account lookup failed"
	}
	return user.Identity(), ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IdentityFrom returns the identity stored by Authenticate, if any.
func IdentityFrom(c echo.Context) (models.Identity, bool) {
	id, ok := c.Get(CtxIdentity).(models.Identity)
	return id, ok
}
