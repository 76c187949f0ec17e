package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper lets infrastructure routes and CORS preflights through
// without a bearer token. Browsers never attach credentials to a preflight.
func AuthSkipper(c echo.Context) bool {
	if c.Request().Method == http.MethodOptions && c.Request().Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
		return true
	}
	return publicPaths[c.Path()]
}
