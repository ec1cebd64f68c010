package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/damacus/iron-archivos/internal/middleware"
	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/utils"
	"github.com/labstack/echo/v4"
)

// GetSession retrieves the browser session stored by the session middleware
func GetSession(c echo.Context) (*services.Session, error) {
	val := c.Get(utils.ContextKeySession)
	if val == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Session required")
	}
	session, ok := val.(*services.Session)
	if !ok || session == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Session required")
	}
	return session, nil
}

// CSRFToken returns the token the CSRF middleware issued for this request,
// or "" when the middleware did not run.
func CSRFToken(c echo.Context) string {
	token, _ := c.Get(middleware.CSRFContextKey).(string)
	return token
}

// HTMXRedirect sets the HX-Redirect header and returns a 200 OK response.
// This is used for HTMX requests that should trigger a client-side redirect.
func HTMXRedirect(c echo.Context, url string) error {
	c.Response().Header().Set("HX-Redirect", url)
	return c.NoContent(http.StatusOK)
}

// HTMXTrigger asks htmx to fire the given client-side events after the swap.
func HTMXTrigger(c echo.Context, events string) {
	c.Response().Header().Set("HX-Trigger", events)
}

// HTMXTriggerDetail fires one client-side event whose event.detail is detail.
func HTMXTriggerDetail(c echo.Context, event string, detail interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{event: detail})
	if err != nil {
		return err
	}
	c.Response().Header().Set("HX-Trigger", string(payload))
	return nil
}
