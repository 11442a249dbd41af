// Package middleware holds Echo middleware specific to the mediathekdl API.
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// apiCSP forbids every resource type; responses are JSON or a websocket
// upgrade and never render in a browser.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityConfig selects which paths count as API responses.
type SecurityConfig struct {
	// NoStorePrefix marks paths whose responses must never be cached.
	// Defaults to "/api".
	NoStorePrefix string
}

// SecurityHeaders sets browser security headers for a JSON-only server.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	if cfg.NoStorePrefix == "" {
		cfg.NoStorePrefix = "/api"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", apiCSP)
			h.Set("Cross-Origin-Resource-Policy", "same-origin")

			// Download lists and progress change every second.
			if strings.HasPrefix(c.Request().URL.Path, cfg.NoStorePrefix) {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}
