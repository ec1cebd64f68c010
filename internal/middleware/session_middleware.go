package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/utils"
	"github.com/labstack/echo/v4"
)

// SessionMiddleware makes sure every browser carries a sealed session cookie
// and stores the opened session in the context. Missing or tampered cookies
// are replaced by a fresh session.
func SessionMiddleware(sessions *services.SessionService, secureCookie bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/health" || strings.HasPrefix(path, "/static/") {
				return next(c)
			}

			if cookie, err := c.Cookie(utils.CookieName); err == nil {
				if session, err := sessions.Open(cookie.Value); err == nil {
					c.Set(utils.ContextKeySession, session)
					return next(c)
				}
				slog.Debug("replacing unreadable session cookie", "remote", c.RealIP())
			}

			session := sessions.NewSession()
			sealed, err := sessions.Seal(session)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start session").SetInternal(err)
			}
			c.SetCookie(&http.Cookie{
				Name:     utils.CookieName,
				Value:    sealed,
				Path:     "/",
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
			c.Set(utils.ContextKeySession, &session)
			return next(c)
		}
	}
}
