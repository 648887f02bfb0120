package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/medialedger/common/clients"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ActorKey is the echo context key for the authenticated actor
	ActorKey ContextKey = "actor"
)

// ExtractActor extracts the X-User-ID header and stores it both in the echo
// context and in the request context, so services can stamp uploadedBy and
// audit fields without threading the identity explicitly.
func ExtractActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := c.Request().Header.Get("X-User-ID")

			if actor != "" {
				c.Set(string(ActorKey), actor)
				ctx := clients.WithActor(c.Request().Context(), actor)
				c.SetRequest(c.Request().WithContext(ctx))
			}

			return next(c)
		}
	}
}

// GetActor retrieves the actor from the echo context
// Returns empty string if not set
func GetActor(c echo.Context) string {
	actor := c.Get(string(ActorKey))
	if actor == nil {
		return ""
	}
	return actor.(string)
}
