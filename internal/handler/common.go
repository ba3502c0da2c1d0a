package handler // handler defines the HTTP handlers of the floor API

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/middleware"
	"github.com/iliyamo/casino-floor/internal/repository"
	"github.com/iliyamo/casino-floor/internal/session"
)

// conflictCodes maps conflict sentinels to the error codes clients switch on.
var conflictCodes = []struct {
	err  error
	code string
}{
	{repository.ErrSeatTaken, "seat_taken"},
	{repository.ErrPlayerAlreadyRated, "player_already_rated"},
	{repository.ErrSessionNotFound, "session_not_found"},
	{repository.ErrAlreadyClosed, "already_closed"},
	{repository.ErrVisitClosed, "visit_closed"},
	{repository.ErrOpenVisitElsewhere, "open_visit_elsewhere"},
}

// writeError translates a domain error into a JSON response.  It is the
// only place that decides HTTP status codes for domain failures.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
	for _, cc := range conflictCodes {
		if errors.Is(err, cc.err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": cc.code, "message": err.Error()})
		}
	}

	var verr *repository.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": err.Error(), "problems": verr.Problems})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "token is for another casino"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, repository.ErrCasinoNotFound),
		errors.Is(err, repository.ErrPlayerNotFound),
		errors.Is(err, repository.ErrTableNotFound),
		errors.Is(err, repository.ErrVisitNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, repository.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store_unavailable", "message": "store unavailable, retry"})
	}
	log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}

// scoped returns the request context limited to the casino the token is
// pinned to.
func scoped(c echo.Context) context.Context {
	return session.WithCasinoScope(c.Request().Context(), middleware.CasinoID(c))
}

// badRequest answers 400 for malformed input.
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": message})
}

// list wraps items the way every list endpoint responds.
func list[T any](c echo.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
