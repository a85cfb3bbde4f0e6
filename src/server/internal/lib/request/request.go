package request

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/auth"
)

func Context(c echo.Context) context.Context {
	return c.Request().Context()
}

func AuthHeader(c echo.Context) (string, *api.Error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", api.CommitError(errors.New("No auth header on request"),
			auth.BadAuthorizationHeaderCode,
			"This request requires an Authorization header")
	}

	return authHeader, nil
}
